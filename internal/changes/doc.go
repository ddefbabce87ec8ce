// Package changes persists change requests: the proposals the decision engine
// produces and the executor carries out.
//
// Every request moves through a small state machine. PENDING requests wait
// for a reviewer unless they were proposed with AUTO approval; APPROVED ones
// wait for the next execution sweep; EXECUTED, REJECTED and FAILED are
// terminal. Transitions are applied with conditional updates so a request can
// never leave a terminal state, and only status and reviewer note are open to
// external edits.
package changes
