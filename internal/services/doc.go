// Package services defines shared utilities consumed by the decision,
// execution and run orchestration layers.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, phases, campaigns and change request
//     IDs for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is and surface an operator hint.
package services
