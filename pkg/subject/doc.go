// Package subject defines the observation sources Warden monitors.
//
// A Source produces a point-in-time Observation of some external
// system: per-node states and metrics plus cluster-wide aggregates.
// Observations are transient; the monitor loop fetches a fresh one
// every cycle and nothing downstream ever persists them.
//
// Two source implementations ship with Warden:
//
//   - ClusterSource scrapes a key-value cluster's status endpoint and
//     maps its stores to nodes.
//   - FleetSource probes a fleet of rate limiter instances, marking
//     unreachable instances Down and summing their window stats into
//     the aggregates.
//
// Sources also advertise ActionDefinitions, the remediation actions
// external tooling can run against the subject. Warden relays these
// definitions but never executes them.
package subject
