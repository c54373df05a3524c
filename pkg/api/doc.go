// Package api serves the ticket HTTP API.
//
// The monitor loop is the only writer of ticket state transitions
// driven by observations; this package exposes the external-actor
// transitions (acknowledge, diagnose, hold, release) plus read access
// and an NDJSON event stream. Invalid transitions map to 409, missing
// tickets to 404.
package api
