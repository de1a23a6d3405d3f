// Package engine implements the Submission Service and Executor: the
// orchestration core that canonicalizes and deduplicates submissions, and
// locks, runs, and terminates individual jobs.
package engine

import "errors"

// ErrQueueBackend is returned when the Dispatch Queue backend cannot be
// reached (push or pop failure).
var ErrQueueBackend = errors.New("queue backend failure")

// ValidationError is a request schema or semantic violation. It surfaces to
// the client as HTTP 400 and never enters the job lifecycle.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// PreconditionFailure is reported by the kernel or gateway when required
// data is missing or configuration is invalid. Treated identically to a
// transient execution failure for retry purposes but recorded with a
// distinct reason.
type PreconditionFailure struct {
	Reason string
}

func (e *PreconditionFailure) Error() string { return e.Reason }
