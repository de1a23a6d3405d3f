package worker

import (
	"context"
	"testing"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/events"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/gateway"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel/strategies"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue/channelqueue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store/memstore"
)

func testSpec() domain.Spec {
	return domain.Spec{
		Strategy:       "BuyAndHold",
		Symbol:         "AAPL",
		Start:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 1000,
	}
}

func newTestPool(t *testing.T, cfg Config) (*Pool, *memstore.Store, *channelqueue.Queue) {
	t.Helper()
	st := memstore.New()
	q := channelqueue.New(16)
	reg := strategies.Default()
	gw := gateway.New(st, logging.Silent(), time.Minute, 1000, gateway.PolicySynthetic)
	hub := events.NewHub(logging.Silent())
	go hub.Run()
	exec := engine.NewExecutor(st, q, gw, reg, nil, hub, logging.Silent(), 3)
	return NewPool(exec, q, st, logging.Silent(), cfg), st, q
}

func TestPool_ProcessesQueuedJobToCompletion(t *testing.T) {
	cfg := Config{Count: 2, PollTimeout: 20 * time.Millisecond, RecoveryDelay: 10 * time.Millisecond, ShutdownGrace: time.Second}
	pool, st, q := newTestPool(t, cfg)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, testSpec(), "pool-key-1", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job.State = domain.JobQueued
	if err := st.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Push(ctx, job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pool.Start(ctx)
	defer pool.Stop()

	deadline := time.After(2 * time.Second)
	for {
		current, err := st.LockForUpdate(ctx, job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if current.State.IsTerminal() {
			if current.State != domain.JobCompleted {
				t.Fatalf("expected COMPLETED, got %v (reason: %s)", current.State, current.FailureReason)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job to reach a terminal state, last seen %v", current.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPool_StartResetsOrphanedRunningJobs(t *testing.T) {
	cfg := Config{Count: 1, PollTimeout: 20 * time.Millisecond, RecoveryDelay: 10 * time.Millisecond, ShutdownGrace: time.Second, StuckThreshold: 50 * time.Millisecond}
	pool, st, _ := newTestPool(t, cfg)
	ctx := context.Background()

	job, _ := st.CreateJob(ctx, testSpec(), "pool-key-2", nil, 0)
	job.State = domain.JobRunning
	_ = st.Save(ctx, job)

	// Backdate manually via ResetStuckRunning's own threshold semantics: give
	// the janitor a small threshold and let real wall-clock time pass it.
	time.Sleep(60 * time.Millisecond)

	pool.Start(ctx)
	defer pool.Stop()

	deadline := time.After(2 * time.Second)
	for {
		current, err := st.LockForUpdate(ctx, job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if current.State == domain.JobQueued || current.State.IsTerminal() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected orphaned RUNNING job to be reset by the startup janitor, still %v", current.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPool_StopReturnsPromptlyWhenNoWorkInFlight(t *testing.T) {
	cfg := Config{Count: 2, PollTimeout: 20 * time.Millisecond, RecoveryDelay: 10 * time.Millisecond, ShutdownGrace: time.Second}
	pool, _, _ := newTestPool(t, cfg)

	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Stop to return well within the shutdown grace period when idle")
	}
}

func TestStuckThreshold_DefaultsWhenUnset(t *testing.T) {
	cfg := Config{}
	if got := cfg.stuckThreshold(); got != 5*time.Minute {
		t.Errorf("expected default 5m stuck threshold, got %v", got)
	}
}

func TestStuckThreshold_UsesConfiguredValue(t *testing.T) {
	cfg := Config{StuckThreshold: 90 * time.Second}
	if got := cfg.stuckThreshold(); got != 90*time.Second {
		t.Errorf("expected configured 90s stuck threshold, got %v", got)
	}
}
