// Package decision turns per-asset performance into typed change proposals.
//
// Rules is an immutable policy value built once from configuration. Engine
// classifies each live asset (skip, remove, replace), searches the registry
// for replacement material, and packages every actionable decision into a
// changes.Change whose Reason is self-sufficient for a human approver.
// Campaigns are analyzed independently; a failed campaign contributes no
// proposals and is reported in the run's error list.
package decision
