// Package client provides an HTTP client for the Warden APIs.
//
// It wraps both server surfaces: the ticket API served by the monitor
// process and the rate limiter API. The CLI subcommands are its main
// consumer, but it is also suitable for embedding in other Go tools
// that need to query tickets or consume rate limit slots.
package client
