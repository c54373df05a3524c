package checker

import (
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/types"
)

// NodeDown fires when a node reports State != Up. Its grace period is
// zero: an unreachable store node is never a transient blip worth
// debouncing.
func NodeDown() Invariant {
	return Invariant{
		Name:        "node_down",
		Scope:       ScopeNode,
		Severity:    types.SeverityCritical,
		GracePeriod: 0,
		Predicate: func(obs *types.Observation, entityID string) (bool, string) {
			n := obs.Node(entityID)
			if n == nil {
				return false, ""
			}
			if n.State == types.NodeStateUp {
				return false, ""
			}
			return true, fmt.Sprintf("node %s is %s", n.ID, n.State)
		},
	}
}

// LimiterSaturated fires when most tracked keys in a limiter fleet sit
// at their limit, which usually means a misconfigured default rather
// than organic traffic.
func LimiterSaturated() Invariant {
	return Invariant{
		Name:        "limiter_saturated",
		Scope:       ScopeCluster,
		Severity:    types.SeverityWarning,
		GracePeriod: 30 * time.Second,
		Predicate: func(obs *types.Observation, _ string) (bool, string) {
			keys := obs.Aggregates["tracked_keys"]
			atLimit := obs.Aggregates["keys_at_limit"]
			if keys < 1 {
				return false, ""
			}
			ratio := atLimit / keys
			if ratio <= 0.9 {
				return false, ""
			}
			return true, fmt.Sprintf("%.0f of %.0f tracked keys are at their limit", atLimit, keys)
		},
	}
}

// DefaultsFor returns the built-in invariants for a subject type
func DefaultsFor(t config.SubjectType) []Invariant {
	switch t {
	case config.SubjectTypeCluster:
		return []Invariant{NodeDown()}
	case config.SubjectTypeLimiterFleet:
		return []Invariant{NodeDown(), LimiterSaturated()}
	default:
		return nil
	}
}

// FromConfig builds threshold invariants from configuration. Config
// validation has already rejected malformed entries, so errors here
// indicate a programming mistake rather than user input.
func FromConfig(cfgs []config.InvariantConfig) ([]Invariant, error) {
	var out []Invariant
	for _, cfg := range cfgs {
		inv, err := thresholdInvariant(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func thresholdInvariant(cfg config.InvariantConfig) (Invariant, error) {
	cmp, err := comparator(cfg.Op)
	if err != nil {
		return Invariant{}, fmt.Errorf("invariant %s: %w", cfg.Name, err)
	}

	scope := ScopeNode
	if cfg.Scope == "cluster" {
		scope = ScopeCluster
	}

	metric := cfg.Metric
	op := cfg.Op
	threshold := cfg.Threshold
	message := cfg.Message

	return Invariant{
		Name:        cfg.Name,
		Scope:       scope,
		Severity:    types.Severity(cfg.Severity),
		GracePeriod: time.Duration(cfg.GracePeriodSeconds) * time.Second,
		Predicate: func(obs *types.Observation, entityID string) (bool, string) {
			var value float64
			var ok bool
			if scope == ScopeCluster {
				value, ok = obs.Aggregates[metric]
			} else {
				n := obs.Node(entityID)
				if n == nil {
					return false, ""
				}
				value, ok = n.Metrics[metric]
			}
			if !ok {
				// Missing metric is not a violation; the subject may
				// not report it on every sample
				return false, ""
			}
			if !cmp(value, threshold) {
				return false, ""
			}
			if message != "" {
				return true, fmt.Sprintf("%s (value=%.2f)", message, value)
			}
			return true, fmt.Sprintf("%s %s %.2f (value=%.2f)", metric, op, threshold, value)
		},
	}, nil
}

func comparator(op string) (func(value, threshold float64) bool, error) {
	switch op {
	case ">":
		return func(v, t float64) bool { return v > t }, nil
	case "<":
		return func(v, t float64) bool { return v < t }, nil
	case ">=":
		return func(v, t float64) bool { return v >= t }, nil
	case "<=":
		return func(v, t float64) bool { return v <= t }, nil
	case "==":
		return func(v, t float64) bool { return v == t }, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}
