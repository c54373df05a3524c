/*
Package ticket persists the lifecycle of invariant violations as
deduplicated tickets backed by BoltDB.

# Lifecycle

	open → acknowledged → diagnosed → resolved

A diagnosis may be attached from any non-resolved state; resolution is
reachable from any non-resolved state. Resolved is terminal: tickets
are never reopened. When a violation of the same key recurs after its
ticket resolved, a new row is created, because the dedup index only
covers non-resolved tickets.

# Deduplication

The open_keys bucket maps violation key to ticket ID for non-resolved
tickets. Upsert consults it inside the same write transaction that
performs the insert or update, so at most one non-resolved ticket can
exist per key. A stale index entry (pointing at a deleted or resolved
row) is repaired in place instead of failing the upsert.

# Auto-resolution and holds

Reconcile receives the set of violation keys still active this cycle
and resolves every non-resolved ticket outside that set, stamping
ResolvedAt. A ticket with Held set is exempt: the hold is a manual
escape hatch for tickets under investigation, and only clearing it
makes the ticket eligible for auto-resolution again.

# Concurrency

BoltDB serializes write transactions, and each mutation here is one
Update transaction over a single row (plus its index entry). Readers
run in View transactions and observe either the previous or the next
version of a row. The monitor loop is the sole caller of Upsert and
Reconcile; Get, List, Acknowledge, AttachDiagnosis and SetHeld serve
concurrent external actors.
*/
package ticket
