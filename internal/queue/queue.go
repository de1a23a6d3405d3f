// Package queue defines the Dispatch Queue contract: a shared,
// approximately-FIFO hint of job identifiers with atomic blocking dequeue.
// The queue is never the source of truth for job state — see store.Store
// and the Executor, which re-read state under the optimistic version check
// before acting on any delivery.
package queue

import (
	"context"
	"time"
)

// Queue is the Dispatch Queue's contract.
type Queue interface {
	// Push appends a job id. Durable within the queue backend; never drops
	// on success.
	Push(ctx context.Context, jobID int64) error

	// Pop blocks up to timeout for a job id, returning (0, false) on
	// timeout. No two callers ever observe the same id from a single Push.
	Pop(ctx context.Context, timeout time.Duration) (jobID int64, ok bool, err error)
}
