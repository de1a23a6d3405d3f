// Package surrealqueue layers the Dispatch Queue's push/pop contract on top
// of a dedicated SurrealDB table, independent of the jobs table itself —
// the queue is a hint, not the Job Store, and losing or duplicating an
// entry here never corrupts job state (see DESIGN.md).
//
// A claim is a select-then-conditional-mutate pair, retried on contention,
// rather than a single atomic statement.
package surrealqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
)

const pollInterval = 150 * time.Millisecond

// Queue implements queue.Queue backed by SurrealDB.
type Queue struct {
	db     *surrealdb.DB
	logger *logging.Logger
}

// New bootstraps the dispatch_queue table; its id counter row is created by
// the first Push. db must already
// be signed in and have selected a namespace/database (shared with the Job
// Store's connection).
func New(ctx context.Context, db *surrealdb.DB, logger *logging.Logger) (*Queue, error) {
	if _, err := surrealdb.Query[any](ctx, db, "DEFINE TABLE IF NOT EXISTS dispatch_queue SCHEMALESS", nil); err != nil {
		return nil, fmt.Errorf("failed to define dispatch_queue table: %w", err)
	}
	return &Queue{db: db, logger: logger}, nil
}

type entryRow struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (q *Queue) nextEntryID(ctx context.Context) (int64, error) {
	sql := "UPSERT $rid SET value = (value OR 0) + 1 RETURN AFTER"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("counters", "dispatch_queue")}

	type counterRow struct {
		Value int64 `json:"value"`
	}
	rows, err := surrealdb.Query[[]counterRow](ctx, q.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to increment dispatch_queue counter: %w", err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return 0, fmt.Errorf("dispatch_queue counter: empty response")
	}
	return (*rows)[0].Result[0].Value, nil
}

// Push inserts a new entry row. Repeated pushes of the same job id are
// allowed and produce distinct rows — duplicate delivery is tolerated by
// the Executor's version-checked claim, not prevented here.
func (q *Queue) Push(ctx context.Context, jobID int64) error {
	id, err := q.nextEntryID(ctx)
	if err != nil {
		return err
	}

	sql := "CREATE $rid SET id = $id, job_id = $job_id, created_at = $now"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("dispatch_queue", id),
		"id":     id,
		"job_id": jobID,
		"now":    time.Now().UTC(),
	}
	if _, err := surrealdb.Query[any](ctx, q.db, sql, vars); err != nil {
		return fmt.Errorf("failed to push job %d onto dispatch queue: %w", jobID, err)
	}
	return nil
}

// Pop polls for the oldest entry and claims it with a delete-by-id, retrying
// the whole select-delete round on contention since a concurrent popper may
// have deleted the same row first. Blocks up to timeout.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (int64, bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		jobID, ok, err := q.tryClaimOldest(ctx)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return jobID, true, nil
		}
		if time.Now().After(deadline) {
			return 0, false, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
}

func (q *Queue) tryClaimOldest(ctx context.Context) (int64, bool, error) {
	selectSQL := "SELECT id, job_id, created_at FROM dispatch_queue ORDER BY created_at ASC LIMIT 1"
	rows, err := surrealdb.Query[[]entryRow](ctx, q.db, selectSQL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to select oldest dispatch queue entry: %w", err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return 0, false, nil
	}
	entry := (*rows)[0].Result[0]

	deleteSQL := "DELETE $rid RETURN BEFORE"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("dispatch_queue", entry.ID)}
	delRows, err := surrealdb.Query[[]entryRow](ctx, q.db, deleteSQL, vars)
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim dispatch queue entry %d: %w", entry.ID, err)
	}
	if delRows == nil || len(*delRows) == 0 || len((*delRows)[0].Result) == 0 {
		// Another popper claimed it first; caller's loop will retry.
		return 0, false, nil
	}
	return entry.JobID, true, nil
}
