// Package surreal implements store.Store on top of SurrealDB: a connect/
// bootstrap sequence plus a select-then-conditional-update claim idiom
// generalized into the optimistic-token Save primitive.
package surreal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/config"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

// Store implements store.Store using SurrealDB as the Job Store's
// transactional backend.
type Store struct {
	db     *surrealdb.DB
	logger *logging.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to SurrealDB, signs in, selects the namespace/database, and
// ensures the jobs/results/sweeps/counters/market_data tables exist —
// mirrors surrealdb.Manager.NewManager's bootstrap sequence.
func New(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (*Store, error) {
	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{"jobs", "results", "sweeps", "counters", "market_data"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	// Unique index on dedup_key enforces the "one job per deduplication key"
	// invariant at the storage layer: a race between two concurrent
	// CreateJob calls for the same key is resolved by the index rejecting
	// the loser's insert.
	indexes := []string{
		"DEFINE INDEX IF NOT EXISTS idx_jobs_dedup_key ON jobs FIELDS dedup_key UNIQUE",
		"DEFINE INDEX IF NOT EXISTS idx_market_data_symbol_date ON market_data FIELDS symbol, date UNIQUE",
	}
	for _, idx := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, idx, nil); err != nil {
			return nil, fmt.Errorf("failed to define index: %w", err)
		}
	}

	logger.Info().
		Str("address", cfg.Address).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("SurrealDB job store initialized")

	return &Store{db: db, logger: logger}, nil
}

// Close disconnects from SurrealDB.
func (s *Store) Close() error {
	s.db.Close(context.Background())
	return nil
}

// DB exposes the underlying connection for components that need to run
// their own queries against the same database (the Dispatch Queue's
// surrealqueue backend).
func (s *Store) DB() *surrealdb.DB {
	return s.db
}

// nextID atomically increments and returns the named monotonic counter,
// used to assign opaque monotonic integer identities to jobs, results, and
// sweeps.
func (s *Store) nextID(ctx context.Context, counter string) (int64, error) {
	sql := "UPSERT $rid SET value = (value OR 0) + 1 RETURN AFTER"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("counters", counter),
	}

	type counterRow struct {
		Value int64 `json:"value"`
	}

	results, err := surrealdb.Query[[]counterRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", counter, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, fmt.Errorf("counter %s: empty response", counter)
	}
	return (*results)[0].Result[0].Value, nil
}

func marshalParams(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalParams(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func recordID(jobID int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("jobs", jobID)
}

func sweepRecordID(sweepID int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("sweeps", sweepID)
}

func resultRecordID(resultID int64) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("results", resultID)
}

// nowUTC is a small helper kept for readability at call sites.
func nowUTC() time.Time { return time.Now().UTC() }
