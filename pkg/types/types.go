package types

import (
	"time"
)

// Severity classifies how urgent a violation is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// NodeState represents the reported state of a subject node
type NodeState string

const (
	NodeStateUp      NodeState = "Up"
	NodeStateDown    NodeState = "Down"
	NodeStateUnknown NodeState = "Unknown"
)

// NodeInfo is a per-node slice of an observation
type NodeInfo struct {
	ID      string             `json:"id"`
	Address string             `json:"address,omitempty"`
	State   NodeState          `json:"state"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Observation is a point-in-time snapshot of a monitored subject.
// It is transient: re-fetched every cycle and never persisted.
type Observation struct {
	Subject    string             `json:"subject"`
	ObservedAt time.Time          `json:"observed_at"`
	Nodes      []*NodeInfo        `json:"nodes,omitempty"`
	Aggregates map[string]float64 `json:"aggregates,omitempty"`
}

// Node returns the node with the given ID, or nil
func (o *Observation) Node(id string) *NodeInfo {
	for _, n := range o.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Violation is an invariant breach detected during one monitor cycle.
// FirstSeen is stable across cycles for the same (Name, EntityID) pair
// until the condition clears.
type Violation struct {
	Name      string             `json:"name"`
	Message   string             `json:"message"`
	EntityID  string             `json:"entity_id,omitempty"`
	Severity  Severity           `json:"severity"`
	FirstSeen time.Time          `json:"first_seen"`
	LastSeen  time.Time          `json:"last_seen"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Key returns the deduplication identity for the violation:
// "invariant:entity" when an entity is set, otherwise just the
// invariant name. The checker and the ticket store must agree on
// this derivation, so it lives here.
func (v *Violation) Key() string {
	return ViolationKey(v.Name, v.EntityID)
}

// ViolationKey derives the dedup identity from its parts
func ViolationKey(invariant, entityID string) string {
	if entityID != "" {
		return invariant + ":" + entityID
	}
	return invariant
}

// TicketStatus represents the lifecycle state of a ticket
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "open"
	TicketStatusAcknowledged TicketStatus = "acknowledged"
	TicketStatusDiagnosed    TicketStatus = "diagnosed"
	TicketStatusResolved     TicketStatus = "resolved"
)

// Ticket is the persistent record of a sustained invariant violation.
// At most one non-resolved ticket exists per ViolationKey at any time.
type Ticket struct {
	ID              string             `json:"id"`
	ViolationKey    string             `json:"violation_key"`
	InvariantName   string             `json:"invariant_name"`
	EntityID        string             `json:"entity_id,omitempty"`
	Status          TicketStatus       `json:"status"`
	Held            bool               `json:"held"`
	BatchKey        string             `json:"batch_key,omitempty"`
	OccurrenceCount int                `json:"occurrence_count"`
	FirstSeenAt     time.Time          `json:"first_seen_at"`
	LastSeenAt      time.Time          `json:"last_seen_at"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	Message         string             `json:"message"`
	Severity        Severity           `json:"severity"`
	Diagnosis       string             `json:"diagnosis,omitempty"`
	MetricSnapshot  map[string]float64 `json:"metric_snapshot,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Resolved reports whether the ticket has reached its terminal state
func (t *Ticket) Resolved() bool {
	return t.Status == TicketStatusResolved
}

// RateLimitResult is the outcome of a sliding-window rate limit check
type RateLimitResult struct {
	Allowed           bool    `json:"allowed"`
	CurrentCount      int     `json:"current_count"`
	Remaining         int     `json:"remaining"`
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
}

// ActionDefinition describes a remediation action a subject exposes.
// Warden only relays these; executing them belongs to external tooling.
type ActionDefinition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters,omitempty"`
}
