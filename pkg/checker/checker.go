package checker

import (
	"time"

	"github.com/wardenhq/warden/pkg/types"
)

// Scope determines what an invariant's predicate is evaluated against
type Scope string

const (
	// ScopeNode evaluates the predicate once per node in the observation
	ScopeNode Scope = "node"

	// ScopeCluster evaluates the predicate once against the whole observation
	ScopeCluster Scope = "cluster"
)

// Predicate evaluates one invariant against an observation. For
// node-scoped invariants entityID names the node under test; for
// cluster-scoped invariants it is empty. It returns whether the
// invariant is violated and a human-readable message when it is.
type Predicate func(obs *types.Observation, entityID string) (violating bool, message string)

// Invariant is one configured condition the checker watches for
type Invariant struct {
	Name        string
	Scope       Scope
	Severity    types.Severity
	GracePeriod time.Duration
	Predicate   Predicate
}

// Checker turns observations into violations, applying per-invariant
// grace periods with hysteresis. The grace-period trackers are owned
// exclusively by one checker instance and are in-memory only: after a
// restart the timers start from zero, which delays but never prevents
// detection.
type Checker struct {
	invariants []Invariant
	trackers   map[string]time.Time // violation key -> violating since
	now        func() time.Time
}

// New creates a checker for the given invariant set
func New(invariants []Invariant) *Checker {
	return &Checker{
		invariants: invariants,
		trackers:   make(map[string]time.Time),
		now:        time.Now,
	}
}

// WithClock overrides the checker's time source (used by tests)
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// Check evaluates every invariant against the observation and returns
// the violations whose grace period has elapsed.
//
// The asymmetry is deliberate: a single healthy reading resets the
// tracker immediately, while an unhealthy reading only emits once the
// condition has held for the full grace period. Trackers for entities
// that disappeared from the observation are purged so the map cannot
// grow without bound.
func (c *Checker) Check(obs *types.Observation) []*types.Violation {
	now := c.now()
	live := make(map[string]bool)
	var violations []*types.Violation

	for i := range c.invariants {
		inv := &c.invariants[i]
		for _, entityID := range c.entities(inv, obs) {
			key := types.ViolationKey(inv.Name, entityID)
			live[key] = true

			violating, message := inv.Predicate(obs, entityID)
			if !violating {
				// Hysteresis: one healthy reading resets the timer
				delete(c.trackers, key)
				continue
			}

			start, tracked := c.trackers[key]
			if !tracked {
				start = now
				c.trackers[key] = start
			}
			if now.Sub(start) < inv.GracePeriod {
				continue
			}

			violations = append(violations, &types.Violation{
				Name:      inv.Name,
				Message:   message,
				EntityID:  entityID,
				Severity:  inv.Severity,
				FirstSeen: start,
				LastSeen:  now,
				Metrics:   entityMetrics(obs, entityID),
			})
		}
	}

	// Drop trackers for (invariant, entity) pairs no longer applicable,
	// e.g. nodes removed from the cluster
	for key := range c.trackers {
		if !live[key] {
			delete(c.trackers, key)
		}
	}

	return violations
}

// TrackedCount returns the number of active grace-period trackers
func (c *Checker) TrackedCount() int {
	return len(c.trackers)
}

func (c *Checker) entities(inv *Invariant, obs *types.Observation) []string {
	if inv.Scope == ScopeCluster {
		return []string{""}
	}
	ids := make([]string, 0, len(obs.Nodes))
	for _, n := range obs.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func entityMetrics(obs *types.Observation, entityID string) map[string]float64 {
	if entityID == "" {
		return obs.Aggregates
	}
	if n := obs.Node(entityID); n != nil {
		return n.Metrics
	}
	return nil
}
