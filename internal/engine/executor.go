package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/events"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/gateway"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel/strategies"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

// SweepNotifier is implemented by the Sweep Coordinator. The Executor
// depends only on this narrow interface to avoid importing the sweep
// package directly.
type SweepNotifier interface {
	OnChildTerminal(ctx context.Context, sweepID int64) error
}

// Executor is the single entry point consumed by workers: it locks a job,
// transitions its state, invokes the computation kernel, persists the
// result, and applies the retry policy.
type Executor struct {
	store       store.Store
	queue       queue.Queue
	gateway     *gateway.Gateway
	strategies  *strategies.Registry
	sweeps      SweepNotifier
	hub         *events.Hub
	logger      *logging.Logger
	maxAttempts int
}

// NewExecutor constructs an Executor. sweeps may be nil until the Sweep
// Coordinator is wired (tests exercising only single-job jobs don't need one).
func NewExecutor(st store.Store, q queue.Queue, gw *gateway.Gateway, reg *strategies.Registry, sweeps SweepNotifier, hub *events.Hub, logger *logging.Logger, maxAttempts int) *Executor {
	return &Executor{
		store:       st,
		queue:       q,
		gateway:     gw,
		strategies:  reg,
		sweeps:      sweeps,
		hub:         hub,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Execute runs the full lock → inspect → run → commit/fail protocol for a
// single job id. jobID may refer to a row that no longer exists, is
// already terminal, or is RUNNING under another worker — all such
// deliveries are handled without error (queue is a hint, not a source of
// truth).
func (e *Executor) Execute(ctx context.Context, jobID int64) error {
	job, err := e.store.LockForUpdate(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			e.logger.Debug().Int64("job_id", jobID).Msg("dispatch queue delivered a vanished job id, dropping")
			return nil
		}
		return fmt.Errorf("executor lock failed for job %d: %w", jobID, err)
	}

	switch job.State {
	case domain.JobCompleted:
		e.logger.Debug().Int64("job_id", jobID).Msg("duplicate dispatch of completed job, ignoring")
		return nil
	case domain.JobRunning:
		e.logger.Warn().Int64("job_id", jobID).Msg("job already RUNNING, assuming orphaned lock or concurrent holder")
		return nil
	case domain.JobFailed, domain.JobSubmitted, domain.JobQueued:
		// proceed
	}

	job.State = domain.JobRunning
	if err := e.store.Save(ctx, job); err != nil {
		if err == store.ErrStaleVersion {
			e.logger.Debug().Int64("job_id", jobID).Msg("stale version transitioning to RUNNING, another worker already handled it")
			return nil
		}
		return fmt.Errorf("executor RUNNING transition failed for job %d: %w", jobID, err)
	}
	if e.hub != nil {
		e.hub.Broadcast(events.JobEvent{JobID: job.ID, State: job.State})
	}

	result, runErr := e.runKernel(ctx, job)
	if runErr != nil {
		return e.handleFailure(ctx, jobID, runErr)
	}

	result.JobID = job.ID
	if err := e.store.WriteResult(ctx, &result); err != nil {
		return fmt.Errorf("executor result write failed for job %d: %w", jobID, err)
	}

	job.State = domain.JobCompleted
	if err := e.store.Save(ctx, job); err != nil {
		if err == store.ErrStaleVersion {
			e.logger.Debug().Int64("job_id", jobID).Msg("stale version transitioning to COMPLETED, another worker already handled it")
			return nil
		}
		return fmt.Errorf("executor COMPLETED transition failed for job %d: %w", jobID, err)
	}
	if e.hub != nil {
		e.hub.Broadcast(events.JobEvent{JobID: job.ID, State: job.State})
	}

	if job.ParentSweepID != nil && e.sweeps != nil {
		if err := e.sweeps.OnChildTerminal(ctx, *job.ParentSweepID); err != nil {
			e.logger.Warn().Int64("sweep_id", *job.ParentSweepID).Err(err).Msg("sweep notification failed")
		}
	}
	return nil
}

// runKernel fetches the series, builds the strategy, and runs the
// backtest. Validation-class errors (empty series, unknown strategy) are
// wrapped as PreconditionFailure; anything else is a transient failure.
func (e *Executor) runKernel(ctx context.Context, job *domain.Job) (domain.Result, error) {
	series, err := e.gateway.Load(ctx, job.Spec.Symbol, job.Spec.Start, job.Spec.End)
	if err != nil {
		return domain.Result{}, fmt.Errorf("gateway load failed: %w", err)
	}
	if len(series) == 0 {
		return domain.Result{}, &PreconditionFailure{Reason: fmt.Sprintf("no market data for %s in [%s, %s]", job.Spec.Symbol, job.Spec.Start.Format("2006-01-02"), job.Spec.End.Format("2006-01-02"))}
	}

	strategy, err := e.strategies.Build(job.Spec.Strategy, job.Spec.Params)
	if err != nil {
		return domain.Result{}, &PreconditionFailure{Reason: fmt.Sprintf("strategy instantiation failed: %v", err)}
	}

	start := time.Now()
	kernelResult, err := kernel.Run(kernel.Config{Strategy: strategy, Series: series, InitialCapital: job.Spec.InitialCapital})
	if err != nil {
		if errors.Is(err, kernel.ErrEmptySeries) {
			return domain.Result{}, &PreconditionFailure{Reason: "kernel returned no result: empty series"}
		}
		return domain.Result{}, fmt.Errorf("kernel execution failed: %w", err)
	}
	elapsed := time.Since(start)

	tradeLog, err := marshalTradeLog(kernelResult.TradeLog)
	if err != nil {
		return domain.Result{}, fmt.Errorf("trade log serialization failed: %w", err)
	}

	return domain.Result{
		TotalReturn:     kernelResult.TotalReturn,
		CAGR:            kernelResult.CAGR,
		Volatility:      kernelResult.Volatility,
		SharpeRatio:     kernelResult.SharpeRatio,
		SortinoRatio:    kernelResult.SortinoRatio,
		MaxDrawdown:     kernelResult.MaxDrawdown,
		WinRate:         kernelResult.WinRate,
		ExecutionTimeMS: elapsed.Milliseconds(),
		TradeLog:        tradeLog,
	}, nil
}

// handleFailure runs the failure handler against a freshly re-locked row,
// independent of whatever state the main execution path left in memory —
// the success path and failure path never share a transaction, since a
// kernel-thrown fault must not roll back a failure-state write.
func (e *Executor) handleFailure(ctx context.Context, jobID int64, runErr error) error {
	job, err := e.store.LockForUpdate(ctx, jobID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("executor failure handler lock failed for job %d: %w", jobID, err)
	}

	job.FailureReason = domain.Truncate(runErr.Error())
	job.Attempts++

	if job.Attempts < e.maxAttempts {
		job.State = domain.JobQueued
		if err := e.store.Save(ctx, job); err != nil {
			if err == store.ErrStaleVersion {
				return nil
			}
			return fmt.Errorf("executor failure requeue save failed for job %d: %w", jobID, err)
		}
		if pushErr := e.queue.Push(ctx, job.ID); pushErr != nil {
			// Cannot retry without delivery: downgrade to FAILED rather
			// than leaving a phantom QUEUED row.
			job.State = domain.JobFailed
			if saveErr := e.store.Save(ctx, job); saveErr != nil && saveErr != store.ErrStaleVersion {
				return fmt.Errorf("executor failure downgrade save failed for job %d: %w", jobID, saveErr)
			}
			e.notifySweepIfTerminal(ctx, job)
			return fmt.Errorf("%w: %v", ErrQueueBackend, pushErr)
		}
		if e.hub != nil {
			e.hub.Broadcast(events.JobEvent{JobID: job.ID, State: job.State})
		}
		return nil
	}

	job.State = domain.JobFailed
	if err := e.store.Save(ctx, job); err != nil {
		if err == store.ErrStaleVersion {
			return nil
		}
		return fmt.Errorf("executor terminal-failure save failed for job %d: %w", jobID, err)
	}
	if e.hub != nil {
		e.hub.Broadcast(events.JobEvent{JobID: job.ID, State: job.State})
	}
	e.notifySweepIfTerminal(ctx, job)
	return nil
}

func (e *Executor) notifySweepIfTerminal(ctx context.Context, job *domain.Job) {
	if job.ParentSweepID == nil || e.sweeps == nil {
		return
	}
	if err := e.sweeps.OnChildTerminal(ctx, *job.ParentSweepID); err != nil {
		e.logger.Warn().Int64("sweep_id", *job.ParentSweepID).Err(err).Msg("sweep notification failed")
	}
}
