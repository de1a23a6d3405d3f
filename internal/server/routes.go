package server

import (
	"net/http"
	"strings"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	mux.HandleFunc("/api/backtests/sweeps", s.handleSubmitSweep)
	mux.HandleFunc("/api/backtests/sweeps/", s.routeSweeps)
	mux.HandleFunc("/api/backtests/", s.routeBacktests)
	mux.HandleFunc("/api/backtests", s.handleSubmitBacktest)
}

// routeBacktests dispatches /api/backtests/{id} and /api/backtests/{id}/chart.png.
func (s *Server) routeBacktests(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/backtests/")
	if path == "" {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if idx := strings.Index(path, "/"); idx >= 0 {
		id := path[:idx]
		suffix := path[idx+1:]
		if suffix == "chart.png" {
			s.handleBacktestChart(w, r, id)
			return
		}
		WriteError(w, http.StatusNotFound, "not found")
		return
	}

	s.handleGetBacktest(w, r, path)
}

// routeSweeps dispatches /api/backtests/sweeps/{id}.
func (s *Server) routeSweeps(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/backtests/sweeps/")
	if id == "" {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}
	s.handleGetSweep(w, r, id)
}
