// Package logging assembles structured slog loggers and formatting helpers
// used across docket.
//
// It centralizes level and output plumbing and exposes context-aware helpers
// so stage code can automatically tag log lines with item keys, stages,
// remote domains, and correlation IDs. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
