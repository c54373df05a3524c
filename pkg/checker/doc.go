/*
Package checker evaluates invariants against subject observations and
decides when a breach has persisted long enough to become a violation.

# Grace periods and hysteresis

Every invariant carries a grace period. The checker tracks, per
(invariant, entity) pair, the moment the predicate first turned true.
A violation is emitted only once the condition has held continuously
for the full grace period; its FirstSeen timestamp is the tracked
start, so it stays stable across cycles while the condition persists.

The debounce is asymmetric. A single healthy reading deletes the
tracker outright, so a condition that flaps never accumulates time
toward its grace period. Node-down class invariants use a zero grace
period and emit on the first unhealthy cycle.

Tracker state lives only in memory and only inside one checker
instance. The monitor loop owns its checker; nothing else reads the
trackers. After a restart the timers begin again from zero, which can
delay detection by at most one grace period.

# Invariant sets

NodeDown and LimiterSaturated are built in and selected per subject
type via DefaultsFor. Threshold invariants (metric, operator,
threshold, scope, severity, grace period) come from configuration
through FromConfig and can target per-node metrics or cluster
aggregates.
*/
package checker
