package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/app"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/banner"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/version"
)

func main() {
	version.LoadFromFile()

	configPath := os.Getenv("BACKTEST_CONFIG")
	if configPath == "" {
		configPath = "config/backtest.toml"
	}

	ctx := context.Background()

	a, err := app.New(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	banner.Print(a.Config, a.Logger)

	a.StartWorkers(ctx)

	go func() {
		if err := a.Server.Start(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")
	banner.PrintShutdown(a.Logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	a.Close()
	a.Logger.Info().Msg("backtestd stopped")
}
