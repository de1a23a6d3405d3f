package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/config"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/sweep"
)

// Server wraps the HTTP server and its wired services.
type Server struct {
	submission *engine.Submission
	sweeps     *sweep.Coordinator
	store      store.Store
	logger     *logging.Logger
	server     *http.Server
}

// NewServer creates the REST API server for the backtest job orchestration
// surface.
func NewServer(cfg config.ServerConfig, submission *engine.Submission, sweeps *sweep.Coordinator, st store.Store, logger *logging.Logger) *Server {
	s := &Server{
		submission: submission,
		sweeps:     sweeps,
		store:      st,
		logger:     logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	handler := applyMiddleware(mux, logger)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting backtest REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
