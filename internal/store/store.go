// Package store defines the Job Store contract: transactional persistence
// of jobs, sweeps, results, and cached market data, plus the row-level
// concurrency primitives the Executor relies on for at-most-once execution.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
)

// Sentinel errors, checked with errors.Is against wrapped SurrealDB
// failures.
var (
	// ErrDuplicateKey is returned by CreateJob when dedup_key already exists.
	ErrDuplicateKey = errors.New("dedup key already exists")

	// ErrStaleVersion is returned by Save when the optimistic-concurrency
	// token observed does not match the stored token. Callers must treat
	// this as "another worker already handled it", never as a failure.
	ErrStaleVersion = errors.New("stale optimistic-concurrency token")

	// ErrNotFound is returned when a job, result, or sweep row does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the Job Store's full contract. A single implementation backs
// jobs, sweeps, and the Market-Data Gateway's persisted cache, since they
// share one transactional backend.
type Store interface {
	// CreateJob fails with ErrDuplicateKey when dedupKey already exists.
	CreateJob(ctx context.Context, spec domain.Spec, dedupKey string, parentSweepID *int64, priority int) (*domain.Job, error)

	// FindByDedupKey returns ErrNotFound when absent.
	FindByDedupKey(ctx context.Context, dedupKey string) (*domain.Job, error)

	// LockForUpdate returns the current row snapshot used to drive the
	// Executor's locked decision. Implementations without a true
	// pessimistic lock primitive (e.g. SurrealDB) instead combine this with
	// Save's conditional-update-on-version check to produce the same
	// serializable-update guarantee (see DESIGN.md).
	LockForUpdate(ctx context.Context, jobID int64) (*domain.Job, error)

	// Save rewrites mutable fields. Fails with ErrStaleVersion if job.Version
	// does not match the stored token; on success the stored token is
	// incremented.
	Save(ctx context.Context, job *domain.Job) error

	CountChildrenByState(ctx context.Context, sweepID int64, state domain.JobState) (int, error)
	ListChildren(ctx context.Context, sweepID int64) ([]*domain.Job, error)

	WriteResult(ctx context.Context, result *domain.Result) error

	// ReadResultsFor is a single bulk read keyed by the input set.
	ReadResultsFor(ctx context.Context, jobIDs []int64) ([]*domain.Result, error)

	// PurgeCompleted removes COMPLETED/FAILED jobs older than olderThan.
	PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error)

	// ResetStuckRunning resets jobs RUNNING longer than olderThan back to
	// QUEUED and bumps their attempt counter (Open Question "Stuck-RUNNING
	// recovery", decided in DESIGN.md).
	ResetStuckRunning(ctx context.Context, olderThan time.Time) (int, error)

	CreateSweep(ctx context.Context, sweep *domain.Sweep) error
	GetSweep(ctx context.Context, sweepID int64) (*domain.Sweep, error)
	SaveSweep(ctx context.Context, sweep *domain.Sweep) error

	// ReadMarketPoints returns cached bars for symbol within [start, end],
	// ordered by date ascending. Returns an empty slice, not an error, when
	// nothing is cached.
	ReadMarketPoints(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketPoint, error)

	// WriteMarketPoints upserts cached bars keyed by (symbol, date).
	WriteMarketPoints(ctx context.Context, points []*domain.MarketPoint) error
}
