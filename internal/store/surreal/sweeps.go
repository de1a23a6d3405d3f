package surreal

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

type sweepRow struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	State           string    `json:"state"`
	TotalChildren   int       `json:"total_children"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	OptimizeMetric  string    `json:"optimize_metric"`
	BestJobID       *int64    `json:"best_job_id"`
	BestMetricValue *float64  `json:"best_metric_value"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r sweepRow) toDomain() *domain.Sweep {
	return &domain.Sweep{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		State:           domain.JobState(r.State),
		TotalChildren:   r.TotalChildren,
		Completed:       r.Completed,
		Failed:          r.Failed,
		OptimizeMetric:  r.OptimizeMetric,
		BestJobID:       r.BestJobID,
		BestMetricValue: r.BestMetricValue,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const sweepSelectFields = "id, name, description, state, total_children, completed, failed, " +
	"optimize_metric, best_job_id, best_metric_value, created_at, updated_at"

func (s *Store) CreateSweep(ctx context.Context, sweep *domain.Sweep) error {
	id, err := s.nextID(ctx, "sweeps")
	if err != nil {
		return err
	}

	now := nowUTC()
	sql := `CREATE $rid SET
		id = $id, name = $name, description = $description, state = $state,
		total_children = $total, completed = 0, failed = 0, optimize_metric = $metric,
		best_job_id = NONE, best_metric_value = NONE, created_at = $now, updated_at = $now`
	vars := map[string]any{
		"rid":         sweepRecordID(id),
		"id":          id,
		"name":        sweep.Name,
		"description": sweep.Description,
		"state":       string(domain.JobQueued),
		"total":       sweep.TotalChildren,
		"metric":      sweep.OptimizeMetric,
		"now":         now,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create sweep: %w", err)
	}

	sweep.ID = id
	sweep.State = domain.JobQueued
	sweep.CreatedAt = now
	sweep.UpdatedAt = now
	return nil
}

func (s *Store) GetSweep(ctx context.Context, sweepID int64) (*domain.Sweep, error) {
	sql := "SELECT " + sweepSelectFields + " FROM $rid"
	vars := map[string]any{"rid": sweepRecordID(sweepID)}

	rows, err := surrealdb.Query[[]sweepRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep %d: %w", sweepID, err)
	}
	if rows == nil || len(*rows) == 0 || len((*rows)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}
	return (*rows)[0].Result[0].toDomain(), nil
}

// SaveSweep overwrites the sweep's mutable fields. No additional sweep-row
// lock is taken — OnChildTerminal recomputes counters from fresh COUNT
// queries on every notification, which is self-healing under concurrent or
// lost notifications (Open Question "Sweep-coordinator update under
// concurrent child completions", decided in DESIGN.md).
func (s *Store) SaveSweep(ctx context.Context, sweep *domain.Sweep) error {
	now := nowUTC()
	sql := `UPDATE $rid SET
		state = $state, completed = $completed, failed = $failed,
		best_job_id = $best_job_id, best_metric_value = $best_metric_value, updated_at = $now`
	vars := map[string]any{
		"rid":               sweepRecordID(sweep.ID),
		"state":             string(sweep.State),
		"completed":         sweep.Completed,
		"failed":            sweep.Failed,
		"best_job_id":       sweep.BestJobID,
		"best_metric_value": sweep.BestMetricValue,
		"now":               now,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save sweep %d: %w", sweep.ID, err)
	}
	sweep.UpdatedAt = now
	return nil
}
