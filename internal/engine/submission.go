package engine

import (
	"context"
	"fmt"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine/canon"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/events"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel/strategies"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

// SubmissionResult is the Submission Service's single response shape.
type SubmissionResult struct {
	JobID          int64
	State          domain.JobState
	IsExisting     bool
	EmbeddedResult *domain.Result
}

// Submission accepts new jobs, deduplicates against existing state, and
// hands new work to the Dispatch Queue.
type Submission struct {
	store      store.Store
	queue      queue.Queue
	strategies *strategies.Registry
	hub        *events.Hub
	logger     *logging.Logger
}

// NewSubmission constructs a Submission service.
func NewSubmission(st store.Store, q queue.Queue, reg *strategies.Registry, hub *events.Hub, logger *logging.Logger) *Submission {
	return &Submission{store: st, queue: q, strategies: reg, hub: hub, logger: logger}
}

// Submit validates, canonicalizes, deduplicates, and (for new specs)
// enqueues a backtest request.
func (s *Submission) Submit(ctx context.Context, spec domain.Spec) (SubmissionResult, error) {
	if err := s.validate(spec); err != nil {
		return SubmissionResult{}, err
	}

	dedupKey := canon.DedupKey(canon.Bytes(spec))

	existing, err := s.store.FindByDedupKey(ctx, dedupKey)
	if err == nil {
		return s.respondExisting(ctx, existing)
	}
	if err != store.ErrNotFound {
		return SubmissionResult{}, fmt.Errorf("submission lookup failed: %w", err)
	}

	job, err := s.store.CreateJob(ctx, spec, dedupKey, nil, 0)
	if err != nil {
		if err == store.ErrDuplicateKey {
			// Lost the race to a concurrent submitter; the loser re-reads
			// and returns the winner's job rather than erroring.
			existing, findErr := s.store.FindByDedupKey(ctx, dedupKey)
			if findErr != nil {
				return SubmissionResult{}, fmt.Errorf("submission dedup race lookup failed: %w", findErr)
			}
			return s.respondExisting(ctx, existing)
		}
		return SubmissionResult{}, fmt.Errorf("submission create failed: %w", err)
	}

	if err := s.pushAndTransition(ctx, job); err != nil {
		return SubmissionResult{}, err
	}

	return SubmissionResult{JobID: job.ID, State: job.State, IsExisting: false}, nil
}

// pushAndTransition pushes a freshly-created SUBMITTED job onto the
// Dispatch Queue and transitions it to QUEUED. Workers tolerate observing a
// non-terminal state for this id even if the push races the save.
func (s *Submission) pushAndTransition(ctx context.Context, job *domain.Job) error {
	if err := s.queue.Push(ctx, job.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueBackend, err)
	}

	job.State = domain.JobQueued
	if err := s.store.Save(ctx, job); err != nil {
		return fmt.Errorf("submission queue transition failed: %w", err)
	}

	if s.hub != nil {
		s.hub.Broadcast(events.JobEvent{JobID: job.ID, State: job.State})
	}
	return nil
}

func (s *Submission) respondExisting(ctx context.Context, job *domain.Job) (SubmissionResult, error) {
	result := SubmissionResult{JobID: job.ID, State: job.State, IsExisting: true}

	if job.State == domain.JobCompleted {
		results, err := s.store.ReadResultsFor(ctx, []int64{job.ID})
		if err != nil {
			return SubmissionResult{}, fmt.Errorf("failed to read existing result: %w", err)
		}
		if len(results) > 0 {
			result.EmbeddedResult = results[0]
		}
	}
	return result, nil
}

func (s *Submission) validate(spec domain.Spec) error {
	if spec.Strategy == "" {
		return &ValidationError{Reason: "strategy name is required"}
	}
	if !s.strategies.Known(spec.Strategy) {
		return &ValidationError{Reason: fmt.Sprintf("unknown strategy %q", spec.Strategy)}
	}
	if spec.Symbol == "" {
		return &ValidationError{Reason: "symbol is required"}
	}
	if !spec.End.After(spec.Start) {
		return &ValidationError{Reason: "end date must be after start date"}
	}
	if spec.InitialCapital <= 0 {
		return &ValidationError{Reason: "initial capital must be positive"}
	}
	return nil
}
