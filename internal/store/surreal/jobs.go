package surreal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

const jobSelectFields = "id, dedup_key, strategy, symbol, start, end, params, initial_capital, " +
	"state, attempts, parent_sweep_id, version, failure_reason, priority, created_at, updated_at"

// jobRow mirrors the jobs table shape for SurrealDB struct decoding.
type jobRow struct {
	ID             int64     `json:"id"`
	DedupKey       string    `json:"dedup_key"`
	Strategy       string    `json:"strategy"`
	Symbol         string    `json:"symbol"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Params         string    `json:"params"`
	InitialCapital float64   `json:"initial_capital"`
	State          string    `json:"state"`
	Attempts       int       `json:"attempts"`
	ParentSweepID  *int64    `json:"parent_sweep_id"`
	Version        int64     `json:"version"`
	FailureReason  string    `json:"failure_reason"`
	Priority       int       `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:       r.ID,
		DedupKey: r.DedupKey,
		Spec: domain.Spec{
			Strategy:       r.Strategy,
			Symbol:         r.Symbol,
			Start:          r.Start,
			End:            r.End,
			Params:         unmarshalParams(r.Params),
			InitialCapital: r.InitialCapital,
		},
		State:         domain.JobState(r.State),
		Attempts:      r.Attempts,
		ParentSweepID: r.ParentSweepID,
		Version:       r.Version,
		FailureReason: r.FailureReason,
		Priority:      r.Priority,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (s *Store) CreateJob(ctx context.Context, spec domain.Spec, dedupKey string, parentSweepID *int64, priority int) (*domain.Job, error) {
	id, err := s.nextID(ctx, "jobs")
	if err != nil {
		return nil, err
	}

	paramsJSON, err := marshalParams(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	now := nowUTC()
	sql := `CREATE $rid SET
		id = $id, dedup_key = $dedup_key, strategy = $strategy, symbol = $symbol,
		start = $start, end = $end, params = $params, initial_capital = $capital,
		state = $state, attempts = 0, parent_sweep_id = $parent_sweep_id, version = 1,
		failure_reason = "", priority = $priority, created_at = $now, updated_at = $now`
	vars := map[string]any{
		"rid":             recordID(id),
		"id":              id,
		"dedup_key":       dedupKey,
		"strategy":        spec.Strategy,
		"symbol":          spec.Symbol,
		"start":           spec.Start,
		"end":             spec.End,
		"params":          paramsJSON,
		"capital":         spec.InitialCapital,
		"state":           string(domain.JobSubmitted),
		"parent_sweep_id": parentSweepID,
		"priority":        priority,
		"now":             now,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		if isUniqueConstraintErr(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return &domain.Job{
		ID:             id,
		DedupKey:       dedupKey,
		Spec:           spec,
		State:          domain.JobSubmitted,
		ParentSweepID:  parentSweepID,
		Version:        1,
		Priority:       priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Store) FindByDedupKey(ctx context.Context, dedupKey string) (*domain.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM jobs WHERE dedup_key = $dedup_key LIMIT 1"
	vars := map[string]any{"dedup_key": dedupKey}

	rows, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find job by dedup key: %w", err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}
	return (*rows)[0].Result[0].toDomain(), nil
}

// LockForUpdate returns the current row snapshot. The actual concurrency
// guarantee comes from Save's conditional update on Version (see
// store.Store docs and DESIGN.md) rather than a driver-level row lock,
// since the SurrealDB Go client exposes no SELECT ... FOR UPDATE primitive.
func (s *Store) LockForUpdate(ctx context.Context, jobID int64) (*domain.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM $rid"
	vars := map[string]any{"rid": recordID(jobID)}

	rows, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to lock job %d: %w", jobID, err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}
	return (*rows)[0].Result[0].toDomain(), nil
}

func (s *Store) Save(ctx context.Context, job *domain.Job) error {
	paramsJSON, err := marshalParams(job.Spec.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	now := nowUTC()
	sql := `UPDATE $rid SET
		state = $state, attempts = $attempts, version = version + 1,
		failure_reason = $failure_reason, priority = $priority, params = $params,
		updated_at = $now
		WHERE version = $expected_version`
	vars := map[string]any{
		"rid":              recordID(job.ID),
		"state":            string(job.State),
		"attempts":         job.Attempts,
		"failure_reason":   domain.Truncate(job.FailureReason),
		"priority":         job.Priority,
		"params":           paramsJSON,
		"now":              now,
		"expected_version": job.Version,
	}

	rows, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to save job %d: %w", job.ID, err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		// The conditional WHERE matched nothing: either the job vanished or
		// another writer already bumped its version first.
		return store.ErrStaleVersion
	}

	job.Version = (*rows)[0].Result[0].Version
	job.UpdatedAt = now
	return nil
}

func (s *Store) CountChildrenByState(ctx context.Context, sweepID int64, state domain.JobState) (int, error) {
	sql := "SELECT count() AS cnt FROM jobs WHERE parent_sweep_id = $sweep_id AND state = $state GROUP ALL"
	vars := map[string]any{"sweep_id": sweepID, "state": string(state)}

	type countRow struct {
		Cnt int `json:"cnt"`
	}

	rows, err := surrealdb.Query[[]countRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count sweep children: %w", err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return 0, nil
	}
	return (*rows)[0].Result[0].Cnt, nil
}

func (s *Store) ListChildren(ctx context.Context, sweepID int64) ([]*domain.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM jobs WHERE parent_sweep_id = $sweep_id ORDER BY id ASC"
	vars := map[string]any{"sweep_id": sweepID}

	rows, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep children: %w", err)
	}
	if rows == nil || len(*rows) == 0 {
		return nil, nil
	}
	out := make([]*domain.Job, 0, len((*rows)[0].Result))
	for _, r := range (*rows)[0].Result {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	sql := "DELETE FROM jobs WHERE state IN [$completed, $failed] AND updated_at < $cutoff RETURN BEFORE"
	vars := map[string]any{
		"completed": string(domain.JobCompleted),
		"failed":    string(domain.JobFailed),
		"cutoff":    olderThan,
	}

	rows, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	if rows == nil || len(*rows) == 0 {
		return 0, nil
	}
	return len((*rows)[0].Result), nil
}

// ResetStuckRunning requeues jobs stuck in RUNNING past a staleness cutoff,
// called once at Worker Pool startup to recover from a previous crash.
func (s *Store) ResetStuckRunning(ctx context.Context, olderThan time.Time) (int, error) {
	sql := `UPDATE jobs SET state = $queued, attempts = attempts + 1, version = version + 1, updated_at = $now
		WHERE state = $running AND updated_at < $cutoff RETURN AFTER`
	vars := map[string]any{
		"queued":  string(domain.JobQueued),
		"running": string(domain.JobRunning),
		"cutoff":  olderThan,
		"now":     nowUTC(),
	}

	rows, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck running jobs: %w", err)
	}
	if rows == nil || len(*rows) == 0 {
		return 0, nil
	}
	return len((*rows)[0].Result), nil
}

func isUniqueConstraintErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "already contains") || strings.Contains(msg, "index")
}
