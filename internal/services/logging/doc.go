// Package logging configures nudgeloop's structured logging.
//
// The package builds slog handlers based on configuration and can emit logs to
// multiple sinks:
//   - Console (human-friendly pretty output)
//   - File (JSON)
//
// Handlers are swapped atomically on config reload, so loggers handed out at
// startup stay valid for the process lifetime.
package logging
