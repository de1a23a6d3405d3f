// Package memstore is an in-process Job Store backed by mutex-guarded maps,
// used for fast unit tests that don't need a real SurrealDB instance.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	nextJobID    int64
	nextResultID int64
	nextSweepID  int64

	jobs       map[int64]*domain.Job
	dedupIndex map[string]int64
	results    map[int64][]*domain.Result
	sweeps     map[int64]*domain.Sweep
	market     map[marketKey]*domain.MarketPoint
}

type marketKey struct {
	symbol string
	date   time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		jobs:       make(map[int64]*domain.Job),
		dedupIndex: make(map[string]int64),
		results:    make(map[int64][]*domain.Result),
		sweeps:     make(map[int64]*domain.Sweep),
		market:     make(map[marketKey]*domain.MarketPoint),
	}
}

func (s *Store) CreateJob(ctx context.Context, spec domain.Spec, dedupKey string, parentSweepID *int64, priority int) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dedupKey != "" {
		if existingID, ok := s.dedupIndex[dedupKey]; ok {
			_ = existingID
			return nil, store.ErrDuplicateKey
		}
	}

	s.nextJobID++
	now := time.Now()
	job := &domain.Job{
		ID:            s.nextJobID,
		DedupKey:      dedupKey,
		Spec:          spec,
		State:         domain.JobSubmitted,
		ParentSweepID: parentSweepID,
		Priority:      priority,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.jobs[job.ID] = job
	if dedupKey != "" {
		s.dedupIndex[dedupKey] = job.ID
	}

	cp := *job
	return &cp, nil
}

func (s *Store) FindByDedupKey(ctx context.Context, dedupKey string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.dedupIndex[dedupKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.jobs[id]
	return &cp, nil
}

func (s *Store) LockForUpdate(ctx context.Context, jobID int64) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Store) Save(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Version != job.Version {
		return store.ErrStaleVersion
	}

	cp := *job
	cp.Version = existing.Version + 1
	cp.UpdatedAt = time.Now()
	s.jobs[job.ID] = &cp

	out := cp
	*job = out
	return nil
}

func (s *Store) CountChildrenByState(ctx context.Context, sweepID int64, state domain.JobState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, j := range s.jobs {
		if j.ParentSweepID != nil && *j.ParentSweepID == sweepID && j.State == state {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListChildren(ctx context.Context, sweepID int64) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Job
	for _, j := range s.jobs {
		if j.ParentSweepID != nil && *j.ParentSweepID == sweepID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *Store) WriteResult(ctx context.Context, result *domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextResultID++
	cp := *result
	cp.ID = s.nextResultID
	s.results[result.JobID] = append(s.results[result.JobID], &cp)
	result.ID = cp.ID
	return nil
}

func (s *Store) ReadResultsFor(ctx context.Context, jobIDs []int64) ([]*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Result
	for _, id := range jobIDs {
		rows := s.results[id]
		if len(rows) == 0 {
			continue
		}
		// Most recent result row is authoritative (see store.Store docs).
		cp := *rows[len(rows)-1]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, j := range s.jobs {
		if j.State.IsTerminal() && j.UpdatedAt.Before(olderThan) {
			delete(s.jobs, id)
			if j.DedupKey != "" {
				delete(s.dedupIndex, j.DedupKey)
			}
			delete(s.results, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) ResetStuckRunning(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, j := range s.jobs {
		if j.State == domain.JobRunning && j.UpdatedAt.Before(olderThan) {
			j.State = domain.JobQueued
			j.Attempts++
			j.Version++
			j.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateSweep(ctx context.Context, sweep *domain.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSweepID++
	sweep.ID = s.nextSweepID
	now := time.Now()
	sweep.CreatedAt = now
	sweep.UpdatedAt = now
	cp := *sweep
	s.sweeps[sweep.ID] = &cp
	return nil
}

func (s *Store) GetSweep(ctx context.Context, sweepID int64) (*domain.Sweep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sweep, ok := s.sweeps[sweepID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sweep
	return &cp, nil
}

func (s *Store) SaveSweep(ctx context.Context, sweep *domain.Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sweeps[sweep.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *sweep
	cp.UpdatedAt = time.Now()
	s.sweeps[sweep.ID] = &cp
	return nil
}

func (s *Store) ReadMarketPoints(ctx context.Context, symbol string, start, end time.Time) ([]*domain.MarketPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.MarketPoint
	for k, p := range s.market {
		if k.symbol != symbol {
			continue
		}
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Date.Before(out[k].Date) })
	return out, nil
}

func (s *Store) WriteMarketPoints(ctx context.Context, points []*domain.MarketPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		cp := *p
		s.market[marketKey{symbol: p.Symbol, date: p.Date}] = &cp
	}
	return nil
}

// Jobs exposes a snapshot of all jobs, for tests that need direct
// visibility.
func (s *Store) Jobs() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}
