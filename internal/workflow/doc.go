// Package workflow runs the two scheduled batches: the analysis run and the
// execution sweep.
//
// The Runner takes the single-writer run lock, stamps a run id on the
// context, bounds the batch with the configured wall-clock budget, and drives
// the decision engine and the executor strictly one item at a time. Every
// executed change is checkpointed in the change store before the next one
// starts, so a run cut short by its budget resumes cleanly: terminal changes
// are never revisited and open ones are retried from scratch.
//
// Per-item failures never abort a batch. They are collected into the run
// summary, published through the notifier, and counted in the run metrics.
package workflow
