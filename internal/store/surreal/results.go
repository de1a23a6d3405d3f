package surreal

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
)

type resultRow struct {
	ID              int64   `json:"id"`
	JobID           int64   `json:"job_id"`
	TotalReturn     float64 `json:"total_return"`
	CAGR            float64 `json:"cagr"`
	Volatility      float64 `json:"volatility"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	SortinoRatio    float64 `json:"sortino_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	WinRate         float64 `json:"win_rate"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	TradeLog        string  `json:"trade_log"`
}

func (r resultRow) toDomain() *domain.Result {
	tradeLog, _ := base64.StdEncoding.DecodeString(r.TradeLog)
	return &domain.Result{
		ID:              r.ID,
		JobID:           r.JobID,
		TotalReturn:     r.TotalReturn,
		CAGR:            r.CAGR,
		Volatility:      r.Volatility,
		SharpeRatio:     r.SharpeRatio,
		SortinoRatio:    r.SortinoRatio,
		MaxDrawdown:     r.MaxDrawdown,
		WinRate:         r.WinRate,
		ExecutionTimeMS: r.ExecutionTimeMS,
		TradeLog:        tradeLog,
	}
}

// WriteResult appends a new result row (Open Question "superseded result
// rows", decided: append rather than delete — see DESIGN.md).
func (s *Store) WriteResult(ctx context.Context, result *domain.Result) error {
	id, err := s.nextID(ctx, "results")
	if err != nil {
		return err
	}

	sql := `CREATE $rid SET
		id = $id, job_id = $job_id, total_return = $total_return, cagr = $cagr,
		volatility = $volatility, sharpe_ratio = $sharpe_ratio, sortino_ratio = $sortino_ratio,
		max_drawdown = $max_drawdown, win_rate = $win_rate, execution_time_ms = $exec_ms,
		trade_log = $trade_log`
	vars := map[string]any{
		"rid":           resultRecordID(id),
		"id":            id,
		"job_id":        result.JobID,
		"total_return":  result.TotalReturn,
		"cagr":          result.CAGR,
		"volatility":    result.Volatility,
		"sharpe_ratio":  result.SharpeRatio,
		"sortino_ratio": result.SortinoRatio,
		"max_drawdown":  result.MaxDrawdown,
		"win_rate":      result.WinRate,
		"exec_ms":       result.ExecutionTimeMS,
		"trade_log":     base64.StdEncoding.EncodeToString(result.TradeLog),
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to write result for job %d: %w", result.JobID, err)
	}
	result.ID = id
	return nil
}

// ReadResultsFor is a single bulk read keyed by the input set. When a job
// has more than one result row (retries), the most recently created row is
// returned.
func (s *Store) ReadResultsFor(ctx context.Context, jobIDs []int64) ([]*domain.Result, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	sql := "SELECT id, job_id, total_return, cagr, volatility, sharpe_ratio, sortino_ratio, " +
		"max_drawdown, win_rate, execution_time_ms, trade_log FROM results WHERE job_id IN $job_ids ORDER BY id DESC"
	vars := map[string]any{"job_ids": jobIDs}

	rows, err := surrealdb.Query[[]resultRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk read results: %w", err)
	}
	if rows == nil || len(*rows) == 0 {
		return nil, nil
	}

	seen := make(map[int64]bool, len(jobIDs))
	var out []*domain.Result
	for _, r := range (*rows)[0].Result {
		if seen[r.JobID] {
			continue // keep only the most recent row per job (ORDER BY id DESC above)
		}
		seen[r.JobID] = true
		out = append(out, r.toDomain())
	}
	return out, nil
}
