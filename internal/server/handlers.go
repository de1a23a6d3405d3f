package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/report"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/sweep"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/version"
)

type submitRequest struct {
	Strategy       string         `json:"strategy"`
	Symbol         string         `json:"symbol"`
	Start          string         `json:"start"`
	End            string         `json:"end"`
	Parameters     map[string]any `json:"parameters"`
	InitialCapital float64        `json:"initialCapital"`
}

type submitResponse struct {
	JobID      int64           `json:"jobId"`
	State      domain.JobState `json:"state"`
	IsExisting bool            `json:"isExisting"`
	Result     *domain.Result  `json:"result,omitempty"`
}

func (s *Server) handleSubmitBacktest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req submitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "start must be an RFC-3339 date (YYYY-MM-DD)")
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "end must be an RFC-3339 date (YYYY-MM-DD)")
		return
	}

	spec := domain.Spec{
		Strategy:       req.Strategy,
		Symbol:         req.Symbol,
		Start:          start,
		End:            end,
		Params:         req.Parameters,
		InitialCapital: req.InitialCapital,
	}

	result, err := s.submission.Submit(r.Context(), spec)
	if err != nil {
		s.writeSubmissionError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, submitResponse{
		JobID:      result.JobID,
		State:      result.State,
		IsExisting: result.IsExisting,
		Result:     result.EmbeddedResult,
	})
}

func (s *Server) writeSubmissionError(w http.ResponseWriter, err error) {
	var validation *engine.ValidationError
	if errors.As(err, &validation) {
		WriteError(w, http.StatusBadRequest, validation.Error())
		return
	}
	if errors.Is(err, engine.ErrQueueBackend) {
		WriteError(w, http.StatusServiceUnavailable, "dispatch queue unavailable, try again")
		return
	}
	s.logger.Error().Err(err).Msg("backtest submission failed")
	WriteError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request, idStr string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.store.LockForUpdate(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error().Err(err).Int64("job_id", id).Msg("job lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := map[string]any{
		"id":            job.ID,
		"state":         job.State,
		"attempts":      job.Attempts,
		"failureReason": job.FailureReason,
		"spec":          job.Spec,
	}

	if job.State == domain.JobCompleted {
		results, err := s.store.ReadResultsFor(r.Context(), []int64{job.ID})
		if err == nil && len(results) > 0 {
			resp["result"] = results[0]
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBacktestChart(w http.ResponseWriter, r *http.Request, idStr string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	results, err := s.store.ReadResultsFor(r.Context(), []int64{id})
	if err != nil || len(results) == 0 {
		WriteError(w, http.StatusNotFound, "no completed result for this job")
		return
	}

	png, err := report.RenderTradeChart(results[0].TradeLog)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type sweepRequest struct {
	Name           string                     `json:"name"`
	Description    string                     `json:"description"`
	Symbol         string                     `json:"symbol"`
	Start          string                     `json:"start"`
	End            string                     `json:"end"`
	InitialCapital float64                    `json:"initialCapital"`
	OptimizeMetric string                     `json:"optimizationMetric"`
	Strategies     []domain.SweepStrategySpec `json:"strategies"`
}

func (s *Server) handleSubmitSweep(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req sweepRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "start must be an RFC-3339 date (YYYY-MM-DD)")
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "end must be an RFC-3339 date (YYYY-MM-DD)")
		return
	}

	result, err := s.sweeps.SubmitSweep(r.Context(), sweep.Request{
		Name:           req.Name,
		Description:    req.Description,
		Symbol:         req.Symbol,
		Start:          start,
		End:            end,
		InitialCapital: req.InitialCapital,
		OptimizeMetric: req.OptimizeMetric,
		Strategies:     req.Strategies,
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"sweepId":       result.SweepID,
		"childrenCount": result.ChildrenCount,
	})
}

func (s *Server) handleGetSweep(w http.ResponseWriter, r *http.Request, idStr string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid sweep id")
		return
	}

	sweepRow, err := s.store.GetSweep(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			WriteError(w, http.StatusNotFound, "sweep not found")
			return
		}
		s.logger.Error().Err(err).Int64("sweep_id", id).Msg("sweep lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	children, err := s.store.ListChildren(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("sweep_id", id).Msg("sweep children lookup failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"sweep":    sweepRow,
		"children": children,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"build":   version.Build,
		"commit":  version.GitCommit,
	})
}
