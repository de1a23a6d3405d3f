// Package worker is the Worker Pool: a fixed-size collection of long-running
// consumers that pop from the Dispatch Queue, hand jobs to the Executor,
// and apply per-attempt backoff.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine/retry"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
)

// Config controls the pool's degree of parallelism and polling behavior.
type Config struct {
	Count          int
	PollTimeout    time.Duration
	RecoveryDelay  time.Duration
	ShutdownGrace  time.Duration
	StuckThreshold time.Duration
	BackoffTable   []int
}

// Pool is a fixed-size collection of worker goroutines.
type Pool struct {
	executor *engine.Executor
	queue    queue.Queue
	store    store.Store
	backoff  *retry.TableBackOff
	logger   *logging.Logger
	cfg      Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool constructs a Pool.
func NewPool(executor *engine.Executor, q queue.Queue, st store.Store, logger *logging.Logger, cfg Config) *Pool {
	if cfg.Count <= 0 {
		cfg.Count = 3
	}
	return &Pool{
		executor: executor,
		queue:    q,
		store:    st,
		backoff:  retry.New(cfg.BackoffTable),
		logger:   logger,
		cfg:      cfg,
	}
}

// safeGo launches a goroutine with panic recovery and logging.
func (p *Pool) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in worker goroutine")
			}
		}()
		fn()
	}()
}

// Start launches Count worker goroutines, plus a startup janitor run that
// requeues jobs stuck RUNNING from a previous crash.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if count, err := p.store.ResetStuckRunning(ctx, time.Now().Add(-p.cfg.stuckThreshold())); err != nil {
		p.logger.Warn().Err(err).Msg("failed to reset orphaned RUNNING jobs on startup")
	} else if count > 0 {
		p.logger.Info().Int("count", count).Msg("reset orphaned RUNNING jobs to QUEUED")
	}

	for i := 0; i < p.cfg.Count; i++ {
		name := fmt.Sprintf("worker-%d", i)
		p.safeGo(name, func() { p.loop(runCtx) })
	}

	p.logger.Info().Int("count", p.cfg.Count).Msg("worker pool started")
}

// Stop signals all workers to finish their in-flight call and exit, waiting
// up to ShutdownGrace before returning regardless.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		p.logger.Warn().Msg("worker pool shutdown grace period elapsed, returning without waiting for in-flight jobs")
	}
}

// loop is a single worker's consume cycle: pop, lock-free backoff preamble,
// execute, repeat.
func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok, err := p.queue.Pop(ctx, p.cfg.PollTimeout)
		if err != nil {
			p.logger.Warn().Err(err).Msg("dispatch queue pop failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.RecoveryDelay):
			}
			continue
		}
		if !ok {
			continue
		}

		// Lock-free read of the attempt counter only informs the backoff
		// sleep; the authoritative decision happens inside Executor under
		// lock. A stale read here only shortens or lengthens the sleep.
		if job, err := p.store.LockForUpdate(ctx, jobID); err == nil && job.Attempts > 0 {
			delay := p.backoff.ForAttempt(job.Attempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		if err := p.executor.Execute(ctx, jobID); err != nil {
			p.logger.Warn().Int64("job_id", jobID).Err(err).Msg("executor reported a worker-level failure")
		}
	}
}

func (c Config) stuckThreshold() time.Duration {
	if c.StuckThreshold <= 0 {
		return 5 * time.Minute
	}
	return c.StuckThreshold
}
