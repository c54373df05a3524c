/*
Package log provides structured logging for Warden using zerolog.

The package wraps zerolog behind a small surface: a global Logger
initialized once via Init, child-logger constructors that attach the
standard context fields (component, subject, ticket_id, invariant),
and level helpers for one-off messages.

Usage:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	monitorLog := log.WithComponent("monitor")
	monitorLog.Info().
		Str("subject", "kv-cluster").
		Int("violations", 3).
		Msg("cycle completed")

	log.Logger.Error().
		Err(err).
		Str("ticket_id", id).
		Msg("failed to resolve ticket")

JSON output is the production default; console output is for local
development. Every log line carries a timestamp. Use the typed field
builders (.Str, .Int, .Err) rather than string interpolation so logs
stay queryable downstream.
*/
package log
