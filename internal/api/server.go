package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vela/internal/backtest"
	"vela/internal/domain"
	"vela/internal/progress"
	"vela/internal/store"
	"vela/internal/strategy"
)

// Defaults are server-side fill-model values applied to requests that leave
// the corresponding fields unset.
type Defaults struct {
	SlippagePct    float64
	CommissionFlat float64
	CommissionPct  float64
	BarsPerYear    int
	MaxGapDays     int
}

// Server serves the backtest HTTP API.
type Server struct {
	runner   *backtest.Runner
	tracker  *progress.Tracker
	results  store.ResultStore
	bars     store.BarStore
	registry *strategy.Registry
	defaults Defaults
	log      *slog.Logger
}

// NewServer creates a Server wired to the given runner, tracker, stores, and
// strategy registry.
func NewServer(runner *backtest.Runner, tracker *progress.Tracker, results store.ResultStore, bars store.BarStore, registry *strategy.Registry, defaults Defaults) *Server {
	return &Server{
		runner:   runner,
		tracker:  tracker,
		results:  results,
		bars:     bars,
		registry: registry,
		defaults: defaults,
		log:      slog.Default().With("component", "api"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtests", s.handleSubmit)
	mux.HandleFunc("GET /api/backtests", s.handleList)
	mux.HandleFunc("GET /api/backtests/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/backtests/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/backtests/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/backtests/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/bars/{symbol}", s.handleBars)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// buildConfig maps a submission onto a run config, filling omitted fill-model
// fields from server defaults. Explicit values are kept as sent, including
// explicit zeros.
func (s *Server) buildConfig(req SubmitRequest) domain.BacktestConfig {
	cfg := domain.BacktestConfig{
		Strategy:       req.Strategy,
		Params:         req.Params,
		Symbols:        req.Symbols,
		Start:          req.Start,
		End:            req.End,
		InitialCapital: req.InitialCapital,
		SlippagePct:    s.defaults.SlippagePct,
		CommissionFlat: s.defaults.CommissionFlat,
		CommissionPct:  s.defaults.CommissionPct,
		BarsPerYear:    s.defaults.BarsPerYear,
		MaxGapDays:     s.defaults.MaxGapDays,
		Benchmark:      req.Benchmark,
	}
	if req.SlippagePct != nil {
		cfg.SlippagePct = *req.SlippagePct
	}
	if req.CommissionFlat != nil {
		cfg.CommissionFlat = *req.CommissionFlat
	}
	if req.CommissionPct != nil {
		cfg.CommissionPct = *req.CommissionPct
	}
	if req.BarsPerYear != nil {
		cfg.BarsPerYear = *req.BarsPerYear
	}
	if req.MaxGapDays != nil {
		cfg.MaxGapDays = *req.MaxGapDays
	}
	return cfg
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	cfg := s.buildConfig(req)

	// Start only fails on validation: bad range, unknown strategy, or
	// parameter violations. Data problems surface later through the run
	// status. The run must outlive the request, so it does not inherit the
	// request context.
	id, err := s.runner.Start(context.Background(), cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info("backtest accepted", "id", id, "strategy", cfg.Strategy)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id, Status: domain.StatusPending})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Live runs are answered from the tracker; finished runs fall through
	// to the result store.
	if snap, ok := s.tracker.Get(id); ok {
		writeJSON(w, http.StatusOK, StatusResponse{
			ID:         snap.ID,
			Strategy:   snap.Strategy,
			Status:     snap.Status,
			CurrentBar: snap.CurrentBar,
			TotalBars:  snap.TotalBars,
			Equity:     snap.Equity,
			StartedAt:  snap.StartedAt,
		})
		return
	}

	res, err := s.results.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("backtest %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading result")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sums, err := s.results.ListResults(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing results")
		return
	}
	if sums == nil {
		sums = []store.ResultSummary{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Results: sums})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.results.DeleteResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("backtest %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "deleting result")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if !s.tracker.Cancel(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("backtest %s is not running", id))
		return
	}
	s.log.Info("backtest cancelled", "id", id)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id, Status: domain.StatusCancelled})
}

// handleEvents streams a live run's progress snapshots as server-sent events.
// The stream ends when the run reaches a terminal status or the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	snap, ok := s.tracker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("backtest %s is not running", id))
		return
	}

	subID, events := s.tracker.Subscribe(64)
	defer s.tracker.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(snap progress.Snapshot) bool {
		data, err := json.Marshal(snap)
		if err != nil {
			s.log.Error("encoding progress event", "id", id, "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// The current snapshot opens the stream so late subscribers do not wait
	// for the next bar.
	if !writeEvent(snap) {
		return
	}
	if terminal(snap.Status) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.ID != id {
				continue
			}
			if !writeEvent(ev.Snapshot) {
				return
			}
			if terminal(ev.Status) {
				return
			}
		}
	}
}

func terminal(status domain.RunStatus) bool {
	switch status {
	case domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled:
		return true
	}
	return false
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	names := s.registry.List()
	infos := make([]StrategyInfo, 0, len(names))
	for _, name := range names {
		schema, _ := s.registry.Schema(name)
		infos = append(infos, StrategyInfo{Name: name, Params: schema})
	}
	writeJSON(w, http.StatusOK, StrategiesResponse{Strategies: infos})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	syms, err := s.bars.ListSymbols(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing symbols")
		return
	}
	if syms == nil {
		syms = []string{}
	}
	writeJSON(w, http.StatusOK, SymbolsResponse{Symbols: syms})
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	start, err := parseDateParam(r, "start", time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDateParam(r, "end", time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, err := s.bars.ReadBars(r.Context(), symbol, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading bars")
		return
	}
	if len(bars) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no bars for %s", symbol))
		return
	}
	writeJSON(w, http.StatusOK, BarsResponse{Symbol: symbol, Bars: bars})
}

// parseDateParam reads a query param as either RFC 3339 or a plain date,
// returning fallback when absent.
func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD, got %q", name, v)
	}
	return t, nil
}
