// Package logging assembles structured slog loggers used across the conveyor.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and worker code can tag
// log lines with transfer, attempt, and correlation identifiers. A no-op logger
// is provided for tests and wiring code that cannot fail.
package logging
