// Package executor applies change requests to ad asset collections.
//
// Every write follows read-mutate-write against a fresh read of the ad:
// the collection is re-read immediately before each mutation, count bounds
// are enforced on the fresh list, and the whole list is written back under a
// single-field mask. With verify-before-write enabled the collection is read
// a second time just before the write and the change aborts with
// concurrent_modification if anything moved in between.
//
// REPLACE runs ADD first and only attempts REMOVE after ADD succeeded. A
// failed REMOVE after a successful ADD is reported as partial_replace.
//
// Execute reports business outcomes in Result; the returned error is reserved
// for context cancellation, in which case the change should be left as-is
// and retried on the next sweep.
package executor
