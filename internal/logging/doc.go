// Package logging assembles structured slog loggers and formatting helpers used
// across assetcycle.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so decision and execution code
// can tag log lines with run IDs, campaigns and change request IDs. The
// package also provides a no-op logger for tests.
package logging
