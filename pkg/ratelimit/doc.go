/*
Package ratelimit implements a sliding-window rate limiter over a
shared BoltDB counter store, with an HTTP surface for the fleet's
callers.

# Algorithm

Each key maps to a time-ordered list of request timestamps. A check
prunes entries older than the window, inserts an entry for now, and
counts what remains, all inside one BoltDB write transaction. Because
BoltDB serializes write transactions, the prune-insert-count step is
indivisible: there is no check-then-act window between concurrent
callers on the same key. N concurrent checks against limit L within
one window yield exactly min(N, L) allowed results.

A denied check still reports when to come back: RetryAfterSeconds is
the time until the oldest in-window entry expires.

# Limit precedence

Explicit limit/window values on a check win. Otherwise a per-key
override stored via UpdateLimit applies, and absent that, the service
defaults. GetLimit reports the effective values under the same rules.

# Failure policy

The limiter fails open. If the counter store errors, the check logs a
warning, increments warden_limiter_store_failures_total and allows
the request. Rate limiting protects capacity; it is not a correctness
guarantee, and refusing all traffic because the counter store is down
would invert the damage.

# HTTP surface

	POST /check                  {key, limit, window_ms} -> result
	GET  /counters/{key}         -> current in-window count
	POST /counters/{key}/reset   -> {reset: bool}
	PUT  /limits/{key}           {limit, window_ms} -> confirmation
	GET  /limits/{key}           -> effective limit
	GET  /stats                  -> window stats across keys
	GET  /healthz                -> liveness

GET /counters is read-only and never mutates window state.
*/
package ratelimit
