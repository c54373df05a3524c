/*
Package monitor drives the detection loop for one monitored subject.

	observe → check → upsert → reconcile → sleep → observe → ...

Each cycle fetches a fresh observation (bounded by a timeout no longer
than the interval), runs the invariant checker, upserts a ticket per
violation, and reconciles: every non-held open ticket whose violation
key was absent this cycle auto-resolves.

The loop is built to survive its collaborators. A failed observation
skips the cycle; a failed upsert skips that ticket and the violation
is simply re-upserted next cycle; a failed reconcile is retried next
cycle. Nothing short of context cancellation stops the loop, and
cancellation is honored at the sleep boundary rather than mid-cycle.

One monitor per subject. Monitors share the ticket store, whose row
transactions tolerate concurrent writers; everything else, including
the checker's grace-period trackers, is private to the loop.
*/
package monitor
