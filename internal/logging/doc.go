// Package logging assembles structured slog loggers and formatting helpers used
// across sweetexp.
//
// It owns the console/JSON handlers, level and output plumbing, a no-op logger
// for tests, and the audit log: the append-only, timestamp-prefixed event file
// the engine writes one line to per start, stop, and unlock.
package logging
