// Package app wires the backtest job orchestration subsystem's components
// together: config, logger, storage, queue, gateway, kernel registry,
// executor, sweep coordinator, submission service, worker pool, and HTTP
// server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/config"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/events"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/gateway"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel/strategies"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue/surrealqueue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/server"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
	storesurreal "github.com/pradneshsanderan/quant-backtest-engine/internal/store/surreal"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/sweep"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/worker"
)

// App holds every initialized component of the backtest engine.
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Store      store.Store
	Queue      queue.Queue
	Hub        *events.Hub
	Strategies *strategies.Registry
	Gateway    *gateway.Gateway
	Sweeps     *sweep.Coordinator
	Executor   *engine.Executor
	Submission *engine.Submission
	Pool       *worker.Pool
	Server     *server.Server

	StartupTime time.Time
}

// New initializes and wires every component. configPaths are merged in
// order (later overrides earlier); missing files are skipped.
func New(ctx context.Context, configPaths ...string) (*App, error) {
	startupStart := time.Now()

	cfg, err := config.Load(configPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level)

	surrealStore, err := storesurreal.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	dispatchQueue, err := surrealqueue.New(ctx, surrealStore.DB(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dispatch queue: %w", err)
	}

	hub := events.NewHub(logger)
	go hub.Run()

	registry := strategies.Default()

	gw := gateway.New(
		surrealStore,
		logger,
		cfg.Gateway.GetCacheTTL(),
		cfg.Gateway.RateLimitPerSec,
		gateway.MissingDataPolicy(cfg.Gateway.MissingDataPolicy),
	)

	sweeps := sweep.New(surrealStore, dispatchQueue, registry, hub, logger)

	executor := engine.NewExecutor(surrealStore, dispatchQueue, gw, registry, sweeps, hub, logger, cfg.Retry.MaxAttempts)

	submission := engine.NewSubmission(surrealStore, dispatchQueue, registry, hub, logger)

	pool := worker.NewPool(executor, dispatchQueue, surrealStore, logger, worker.Config{
		Count:          cfg.Worker.Count,
		PollTimeout:    cfg.Worker.GetPollTimeout(),
		RecoveryDelay:  cfg.Worker.GetRecoveryDelay(),
		ShutdownGrace:  cfg.Worker.GetShutdownGrace(),
		StuckThreshold: cfg.Worker.GetStuckJobThreshold(),
		BackoffTable:   cfg.Retry.BackoffTable,
	})

	srv := server.NewServer(cfg.Server, submission, sweeps, surrealStore, logger)

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Store:       surrealStore,
		Queue:       dispatchQueue,
		Hub:         hub,
		Strategies:  registry,
		Gateway:     gw,
		Sweeps:      sweeps,
		Executor:    executor,
		Submission:  submission,
		Pool:        pool,
		Server:      srv,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")
	return a, nil
}

// StartWorkers launches the worker pool if enabled in config.
func (a *App) StartWorkers(ctx context.Context) {
	if !a.Config.Worker.Enabled {
		a.Logger.Info().Msg("worker pool disabled by config, running submission-only")
		return
	}
	a.Pool.Start(ctx)
}

// Close releases every resource held by the App. Shutdown order: stop the
// worker pool, stop the event hub, close storage.
func (a *App) Close() {
	if a.Config.Worker.Enabled {
		a.Pool.Stop()
	}
	a.Hub.Stop()
	if closer, ok := a.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("storage close failed")
		}
	}
}
