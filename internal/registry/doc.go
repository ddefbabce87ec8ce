// Package registry persists the provenance and lifecycle of every creative
// asset the engine has seen.
//
// Records are keyed by the platform asset resource name and are never deleted;
// Archive hides them from candidate searches instead. Observe folds performance
// rows into a record: the current label is overwritten, the best-ever label
// only ratchets upward, and lifetime impressions never decrease. Protections
// keep whole creative concepts (or individual source IDs) out of replacement
// searches.
package registry
