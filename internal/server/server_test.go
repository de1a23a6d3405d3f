package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/pradneshsanderan/quant-backtest-engine/internal/config"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/domain"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/engine"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/events"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/kernel/strategies"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/logging"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/queue/channelqueue"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/store/memstore"
	"github.com/pradneshsanderan/quant-backtest-engine/internal/sweep"
)

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	q := channelqueue.New(16)
	reg := strategies.Default()
	hub := events.NewHub(logging.Silent())
	go hub.Run()

	sub := engine.NewSubmission(st, q, reg, hub, logging.Silent())
	coord := sweep.New(st, q, reg, hub, logging.Silent())

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, sub, coord, st, logging.Silent())
	return srv, st
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealth_RejectsPost(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodPost, "/api/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleVersion_ReturnsBuildInfo(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/version", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if _, ok := body["version"]; !ok {
		t.Error("expected a version field in the response")
	}
}

func TestHandleSubmitBacktest_Success(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{"strategy":"BuyAndHold","symbol":"AAPL","start":"2020-01-01","end":"2020-12-31","initialCapital":10000}`)
	rec := doRequest(srv, http.MethodPost, "/api/backtests", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if resp.JobID == 0 {
		t.Error("expected a non-zero job id")
	}
	if resp.State != domain.JobQueued {
		t.Errorf("expected state QUEUED, got %v", resp.State)
	}
	if resp.IsExisting {
		t.Error("expected a brand-new submission")
	}
}

func TestHandleSubmitBacktest_InvalidDateReturns400(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{"strategy":"BuyAndHold","symbol":"AAPL","start":"not-a-date","end":"2020-12-31","initialCapital":10000}`)
	rec := doRequest(srv, http.MethodPost, "/api/backtests", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSubmitBacktest_ValidationErrorReturns400(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{"strategy":"doesNotExist","symbol":"AAPL","start":"2020-01-01","end":"2020-12-31","initialCapital":10000}`)
	rec := doRequest(srv, http.MethodPost, "/api/backtests", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown strategy, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmitBacktest_MalformedJSONReturns400(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodPost, "/api/backtests", []byte("not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSubmitBacktest_RejectsGet(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/backtests", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleGetBacktest_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/backtests/99999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetBacktest_InvalidIDReturns400(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/backtests/not-a-number", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetBacktest_FoundWithoutResult(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, validTestSpec(), "key-1", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/backtests/"+strconv.FormatInt(job.ID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if _, hasResult := body["result"]; hasResult {
		t.Error("expected no embedded result for a non-completed job")
	}
}

func TestHandleGetBacktest_CompletedJobEmbedsResult(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, validTestSpec(), "key-2", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	job.State = domain.JobCompleted
	if err := st.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.WriteResult(ctx, &domain.Result{JobID: job.ID, TotalReturn: 0.1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/backtests/"+strconv.FormatInt(job.ID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if _, hasResult := body["result"]; !hasResult {
		t.Error("expected an embedded result for a completed job")
	}
}

func TestHandleBacktestChart_NoResultReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/backtests/42/chart.png", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleBacktestChart_InsufficientTradesReturns422(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, validTestSpec(), "key-3", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tradeLog := []byte(`[{"date":"2020-01-01T00:00:00Z","action":"BUY","price":100,"shares":1}]`)
	if err := st.WriteResult(ctx, &domain.Result{JobID: job.ID, TradeLog: tradeLog}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/backtests/"+strconv.FormatInt(job.ID, 10)+"/chart.png", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBacktestChart_RendersPNGForCompletedResult(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	job, err := st.CreateJob(ctx, validTestSpec(), "key-4", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tradeLog := []byte(`[
		{"date":"2020-01-01T00:00:00Z","action":"BUY","price":100,"shares":10},
		{"date":"2020-02-01T00:00:00Z","action":"SELL","price":120,"shares":10}
	]`)
	if err := st.WriteResult(ctx, &domain.Result{JobID: job.ID, TradeLog: tradeLog}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := doRequest(srv, http.MethodGet, "/api/backtests/"+strconv.FormatInt(job.ID, 10)+"/chart.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected Content-Type image/png, got %q", ct)
	}
	pngSignature := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngSignature) {
		t.Error("expected response body to start with the PNG file signature")
	}
}

func TestHandleSubmitSweep_Success(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{
		"name":"ma grid",
		"symbol":"AAPL",
		"start":"2020-01-01",
		"end":"2020-12-31",
		"initialCapital":10000,
		"optimizationMetric":"sharpeRatio",
		"strategies":[
			{"strategy":"BuyAndHold","parameterCombinations":[{}]}
		]
	}`)
	rec := doRequest(srv, http.MethodPost, "/api/backtests/sweeps", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if body["childrenCount"].(float64) != 1 {
		t.Errorf("expected childrenCount=1, got %v", body["childrenCount"])
	}
}

func TestHandleSubmitSweep_UnknownStrategyReturns400(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{
		"symbol":"AAPL",
		"start":"2020-01-01",
		"end":"2020-12-31",
		"initialCapital":10000,
		"strategies":[
			{"strategy":"notAThing","parameterCombinations":[{}]}
		]
	}`)
	rec := doRequest(srv, http.MethodPost, "/api/backtests/sweeps", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetSweep_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/backtests/sweeps/12345", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetSweep_Found(t *testing.T) {
	srv, _ := newTestServer(t)

	payload := []byte(`{
		"symbol":"AAPL",
		"start":"2020-01-01",
		"end":"2020-12-31",
		"initialCapital":10000,
		"strategies":[
			{"strategy":"BuyAndHold","parameterCombinations":[{}]}
		]
	}`)
	submitRec := doRequest(srv, http.MethodPost, "/api/backtests/sweeps", payload)
	if submitRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", submitRec.Code, submitRec.Body.String())
	}
	var submitBody map[string]any
	if err := json.Unmarshal(submitRec.Body.Bytes(), &submitBody); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	sweepID := int64(submitBody["sweepId"].(float64))

	rec := doRequest(srv, http.MethodGet, "/api/backtests/sweeps/"+strconv.FormatInt(sweepID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if _, ok := body["children"]; !ok {
		t.Error("expected a children field in the response")
	}
}

func TestMiddleware_CORSPreflightReturnsNoContent(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/backtests", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected permissive CORS origin header")
	}
}

func TestMiddleware_CorrelationIDGeneratedWhenAbsent(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/health", nil)
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id in the response header")
	}
}

func TestMiddleware_CorrelationIDPropagatedFromRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "req-abc-123" {
		t.Errorf("expected correlation id to be propagated from the request, got %q", got)
	}
}

func TestMiddleware_RecoversFromPanicAndReturns500(t *testing.T) {
	handler := applyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), logging.Silent())

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after recovering from a panic, got %d", rec.Code)
	}
}

func validTestSpec() domain.Spec {
	return domain.Spec{
		Strategy:       "BuyAndHold",
		Symbol:         "AAPL",
		Start:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
	}
}
