// Package log provides structured event logging for the hub.
//
// The hub and its transport adapter emit Event values for connection state
// changes, processed commands, broadcasts and errors. Applications choose
// where events go by supplying a Logger implementation:
//
//   - NoopLogger discards everything (the default).
//   - FileLogger appends CBOR-encoded events to a file.
//   - SlogAdapter forwards events to a log/slog logger for console output.
//   - MultiLogger fans events out to several loggers at once.
//
// Reader reads events back from a FileLogger file, with optional filtering.
package log
