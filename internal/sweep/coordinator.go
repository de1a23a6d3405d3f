// Package sweep is the Sweep Coordinator: expands a parameter-sweep request
// into child jobs, tracks their completion, and selects the best result.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine/canon"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/events"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel/strategies"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

// Request is the caller-facing sweep submission shape.
type Request struct {
	Name           string
	Description    string
	Symbol         string
	Start, End     time.Time
	InitialCapital float64
	OptimizeMetric string
	Strategies     []domain.SweepStrategySpec
}

// SubmitResult reports the outcome of a sweep submission.
type SubmitResult struct {
	SweepID       int64
	ChildrenCount int
}

// Coordinator expands sweeps and aggregates child completions.
type Coordinator struct {
	store      store.Store
	queue      queue.Queue
	strategies *strategies.Registry
	hub        *events.Hub
	logger     *logging.Logger
}

// New constructs a Coordinator.
func New(st store.Store, q queue.Queue, reg *strategies.Registry, hub *events.Hub, logger *logging.Logger) *Coordinator {
	return &Coordinator{store: st, queue: q, strategies: reg, hub: hub, logger: logger}
}

// SubmitSweep enumerates the cartesian set of (strategy, parameter
// combination) pairs, creates the parent Sweep row, and creates + enqueues
// one child job per pair.
func (c *Coordinator) SubmitSweep(ctx context.Context, req Request) (SubmitResult, error) {
	for _, ss := range req.Strategies {
		if !c.strategies.Known(ss.Strategy) {
			return SubmitResult{}, fmt.Errorf("unknown strategy %q in sweep request", ss.Strategy)
		}
	}

	total := 0
	for _, ss := range req.Strategies {
		total += len(ss.Combinations)
	}
	if total == 0 {
		return SubmitResult{}, fmt.Errorf("sweep request expands to zero child jobs")
	}

	sweepRow := &domain.Sweep{
		Name:           req.Name,
		Description:    req.Description,
		State:          domain.JobQueued,
		TotalChildren:  total,
		OptimizeMetric: req.OptimizeMetric,
	}
	if err := c.store.CreateSweep(ctx, sweepRow); err != nil {
		return SubmitResult{}, fmt.Errorf("sweep create failed: %w", err)
	}

	for _, ss := range req.Strategies {
		for _, params := range ss.Combinations {
			childSpec := domain.Spec{
				Strategy:       ss.Strategy,
				Symbol:         req.Symbol,
				Start:          req.Start,
				End:            req.End,
				Params:         params,
				InitialCapital: req.InitialCapital,
			}
			dedupKey := canon.DedupKey(canon.SweepChildBytes(sweepRow.ID, childSpec))

			sweepID := sweepRow.ID
			job, err := c.store.CreateJob(ctx, childSpec, dedupKey, &sweepID, 0)
			if err != nil {
				if err == store.ErrDuplicateKey {
					existing, findErr := c.store.FindByDedupKey(ctx, dedupKey)
					if findErr != nil {
						return SubmitResult{}, fmt.Errorf("sweep child dedup race lookup failed: %w", findErr)
					}
					job = existing
				} else {
					return SubmitResult{}, fmt.Errorf("sweep child create failed: %w", err)
				}
			} else {
				if err := c.queue.Push(ctx, job.ID); err != nil {
					return SubmitResult{}, fmt.Errorf("sweep child enqueue failed: %w", err)
				}
				job.State = domain.JobQueued
				if err := c.store.Save(ctx, job); err != nil {
					return SubmitResult{}, fmt.Errorf("sweep child queue transition failed: %w", err)
				}
			}

			if c.hub != nil {
				c.hub.Broadcast(events.JobEvent{JobID: job.ID, State: job.State})
			}
		}
	}

	return SubmitResult{SweepID: sweepRow.ID, ChildrenCount: total}, nil
}

// OnChildTerminal is invoked by the Executor whenever a sweep child reaches
// COMPLETED or FAILED. It recounts from the child set on every call, which
// makes it self-healing under lost or duplicate notifications.
func (c *Coordinator) OnChildTerminal(ctx context.Context, sweepID int64) error {
	sweepRow, err := c.store.GetSweep(ctx, sweepID)
	if err != nil {
		return fmt.Errorf("sweep lookup failed for %d: %w", sweepID, err)
	}

	completed, err := c.store.CountChildrenByState(ctx, sweepID, domain.JobCompleted)
	if err != nil {
		return fmt.Errorf("sweep completed count failed for %d: %w", sweepID, err)
	}
	failed, err := c.store.CountChildrenByState(ctx, sweepID, domain.JobFailed)
	if err != nil {
		return fmt.Errorf("sweep failed count failed for %d: %w", sweepID, err)
	}

	sweepRow.Completed = completed
	sweepRow.Failed = failed

	if completed+failed < sweepRow.TotalChildren {
		sweepRow.State = domain.JobRunning
		if err := c.store.SaveSweep(ctx, sweepRow); err != nil {
			return fmt.Errorf("sweep running-state save failed for %d: %w", sweepID, err)
		}
		return nil
	}

	if err := c.selectBest(ctx, sweepRow); err != nil {
		return fmt.Errorf("sweep best-child selection failed for %d: %w", sweepID, err)
	}
	sweepRow.State = domain.JobCompleted
	if err := c.store.SaveSweep(ctx, sweepRow); err != nil {
		return fmt.Errorf("sweep completed-state save failed for %d: %w", sweepID, err)
	}
	c.logger.Info().Int64("sweep_id", sweepID).Int("completed", completed).Int("failed", failed).Msg("sweep finished")
	return nil
}

// selectBest bulk-reads every completed child's result and picks the
// maximal metric value, ties broken by smaller child id.
func (c *Coordinator) selectBest(ctx context.Context, sweepRow *domain.Sweep) error {
	children, err := c.store.ListChildren(ctx, sweepRow.ID)
	if err != nil {
		return fmt.Errorf("listing children failed: %w", err)
	}

	var completedIDs []int64
	for _, child := range children {
		if child.State == domain.JobCompleted {
			completedIDs = append(completedIDs, child.ID)
		}
	}
	if len(completedIDs) == 0 {
		// Every child failed; no best candidate exists.
		return nil
	}

	results, err := c.store.ReadResultsFor(ctx, completedIDs)
	if err != nil {
		return fmt.Errorf("bulk result read failed: %w", err)
	}

	var bestJobID int64
	var bestValue float64
	haveBest := false
	for _, r := range results {
		value, _ := r.Metric(sweepRow.OptimizeMetric)
		switch {
		case !haveBest:
			bestJobID, bestValue, haveBest = r.JobID, value, true
		case value > bestValue:
			bestJobID, bestValue = r.JobID, value
		case value == bestValue && r.JobID < bestJobID:
			bestJobID = r.JobID
		}
	}

	if haveBest {
		sweepRow.BestJobID = &bestJobID
		sweepRow.BestMetricValue = &bestValue
	}
	return nil
}
