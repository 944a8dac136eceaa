// Package logging assembles structured slog loggers and formatting helpers used
// across punchsync components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing (including size-based rotation of the log file), and exposes
// context-aware helpers so pipeline code can tag log lines with sync run IDs
// and terminal names. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
