// Package creative defines the closed vocabularies shared by the registry,
// decision engine, executor and platform adapters: asset types, provenance,
// liveness, performance labels and the opaque references an ad holds.
//
// Label ordering lives here so every consumer agrees that best-ever
// performance only moves upward (UNKNOWN < LOW < GOOD < BEST) and that
// PENDING/LEARNING observations never move it.
package creative
