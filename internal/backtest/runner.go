package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vela/internal/domain"
	"vela/internal/progress"
	"vela/internal/series"
	"vela/internal/store"
	"vela/internal/strategy"
)

// DefaultFitLookback is how far before the test window the runner reads
// history for strategies that need a training pass.
const DefaultFitLookback = 2 * 365 * 24 * time.Hour

// Runner executes backtests end to end: it validates the configuration,
// builds the strategy, prefetches all bar data (no I/O happens inside the
// bar loop), runs the engine, computes metrics, and persists the result.
type Runner struct {
	bars     store.BarStore
	registry *strategy.Registry
	results  store.ResultStore // optional; nil disables persistence
	tracker  *progress.Tracker // optional; nil disables progress reporting
	log      *slog.Logger

	// FitLookback bounds the pre-window history handed to strategies that
	// implement Fitter. Training data always ends strictly before the test
	// window starts.
	FitLookback time.Duration
}

// NewRunner creates a Runner reading bars from the given store and looking
// up strategies in the registry. Results and tracker may be nil.
func NewRunner(bars store.BarStore, registry *strategy.Registry, results store.ResultStore, tracker *progress.Tracker) *Runner {
	return &Runner{
		bars:        bars,
		registry:    registry,
		results:     results,
		tracker:     tracker,
		log:         slog.Default().With("component", "runner"),
		FitLookback: DefaultFitLookback,
	}
}

// validate checks everything that must fail before a run reaches running:
// the date range, capital, symbols, and strategy parameters. It returns the
// constructed strategy on success.
func (r *Runner) validate(cfg *domain.BacktestConfig) (strategy.Strategy, error) {
	if err := series.ValidateRange(cfg.Start, cfg.End); err != nil {
		return nil, err
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("no symbols configured")
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if cfg.SlippagePct < 0 || cfg.CommissionFlat < 0 || cfg.CommissionPct < 0 {
		return nil, errors.New("slippage and commission must be non-negative")
	}
	if cfg.BarsPerYear == 0 {
		cfg.BarsPerYear = DefaultBarsPerYear
	}
	if cfg.MaxGapDays == 0 {
		cfg.MaxGapDays = 30
	}
	return r.registry.Build(cfg.Strategy, cfg.Params)
}

// Run executes one backtest synchronously. Configuration and data errors are
// returned before the run starts; failures inside the simulation produce a
// result with failed (or cancelled) status instead of an error.
func (r *Runner) Run(ctx context.Context, cfg domain.BacktestConfig) (*domain.BacktestResult, error) {
	strat, err := r.validate(&cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if r.tracker != nil {
		ctxRun, cancel := context.WithCancel(ctx)
		defer cancel()
		ctx = ctxRun
		r.tracker.Register(id, cfg.Strategy, 0, cancel)
		defer r.tracker.Remove(id)
	}
	return r.run(ctx, id, cfg, strat)
}

// Start validates the configuration, registers the run as pending, and
// launches it on its own goroutine. The returned id can be polled through
// the tracker and, once finished, loaded from the result store. The run is
// cancellable via the tracker.
func (r *Runner) Start(ctx context.Context, cfg domain.BacktestConfig) (string, error) {
	strat, err := r.validate(&cfg)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	if r.tracker != nil {
		r.tracker.Register(id, cfg.Strategy, 0, cancel)
	}

	go func() {
		defer cancel()
		if _, err := r.run(runCtx, id, cfg, strat); err != nil {
			r.log.Error("backtest failed before running", "id", id, "error", err)
			// The caller only has the id. Persist a failed result so the
			// failure stays resolvable after the tracker entry is removed.
			r.persistSetupFailure(id, cfg, err)
			if r.tracker != nil {
				r.tracker.SetStatus(id, domain.StatusFailed)
			}
		}
		if r.tracker != nil {
			r.tracker.Remove(id)
		}
	}()
	return id, nil
}

// persistSetupFailure stores a failed result for a run that never reached its
// first bar, carrying the failure kind and message. LastBar -1 means no bar
// completed.
func (r *Runner) persistSetupFailure(id string, cfg domain.BacktestConfig, cause error) {
	if r.results == nil {
		return
	}
	now := time.Now().UTC()
	res := &domain.BacktestResult{
		ID:     id,
		Config: cfg,
		Status: domain.StatusFailed,
		Failure: &domain.RunFailure{
			Kind:    FailSetup,
			Message: cause.Error(),
			LastBar: -1,
		},
		StartedAt:   now,
		CompletedAt: now,
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.results.SaveResult(saveCtx, res); err != nil {
		r.log.Error("persisting setup failure", "id", id, "error", err)
	}
}

// run is the shared core of Run and Start: prefetch, fit, simulate, compute
// metrics, persist.
func (r *Runner) run(ctx context.Context, id string, cfg domain.BacktestConfig, strat strategy.Strategy) (*domain.BacktestResult, error) {
	startedAt := time.Now().UTC()

	// Prefetch every symbol's bars for the window. No coverage is fatal
	// before the run reaches running.
	var list []*series.Series
	for _, sym := range cfg.Symbols {
		bars, err := r.bars.ReadBars(ctx, sym, cfg.Start, cfg.End)
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s: %w", sym, err)
		}
		if len(bars) == 0 {
			return nil, &series.DataGapError{Symbol: sym, Start: cfg.Start, End: cfg.End}
		}
		s, err := series.New(sym, bars)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	set, err := series.NewSet(list...)
	if err != nil {
		return nil, err
	}

	// Train fittable strategies on history strictly before the window.
	if fitter, ok := strat.(strategy.Fitter); ok {
		history := make(map[string][]domain.Bar, len(cfg.Symbols))
		fitStart := cfg.Start.Add(-r.FitLookback)
		fitEnd := cfg.Start.Add(-time.Nanosecond)
		for _, sym := range cfg.Symbols {
			bars, err := r.bars.ReadBars(ctx, sym, fitStart, fitEnd)
			if err != nil {
				return nil, fmt.Errorf("reading training bars for %s: %w", sym, err)
			}
			history[sym] = bars
		}
		if err := fitter.Fit(history); err != nil {
			return nil, fmt.Errorf("fitting %s: %w", strat.Name(), err)
		}
	}

	// Benchmark closes for alpha/beta, supplied to the calculator from the
	// store; the calculator itself never fetches.
	var benchmark []domain.EquityPoint
	if cfg.Benchmark != "" {
		bars, err := r.bars.ReadBars(ctx, cfg.Benchmark, cfg.Start, cfg.End)
		if err != nil {
			return nil, fmt.Errorf("reading benchmark %s: %w", cfg.Benchmark, err)
		}
		if len(bars) == 0 {
			return nil, &series.DataGapError{Symbol: cfg.Benchmark, Start: cfg.Start, End: cfg.End}
		}
		for _, b := range bars {
			benchmark = append(benchmark, domain.EquityPoint{Timestamp: b.Timestamp, Value: b.Close})
		}
	}

	if r.tracker != nil {
		r.tracker.SetTotalBars(id, set.Len())
		r.tracker.SetStatus(id, domain.StatusRunning)
	}
	r.log.Info("run starting", "id", id, "strategy", cfg.Strategy,
		"symbols", cfg.Symbols, "bars", set.Len())

	engine := NewEngine(set, strat, cfg)
	if r.tracker != nil {
		engine.OnBar = func(t int, equity float64) {
			r.tracker.UpdateBar(id, t, equity)
		}
	}
	outcome := engine.Run(ctx)

	res := &domain.BacktestResult{
		ID:          id,
		Config:      cfg,
		Status:      outcome.Status,
		Failure:     outcome.Failure,
		Warnings:    outcome.Warnings,
		EquityCurve: outcome.EquityCurve,
		Trades:      outcome.Trades,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
	if outcome.Status == domain.StatusCompleted {
		res.Metrics = ComputeMetrics(
			outcome.EquityCurve, outcome.Trades,
			cfg.InitialCapital, cfg.BarsPerYear, benchmark)
	}

	if r.results != nil {
		// Persist with a fresh context: the run context may already be
		// cancelled, and a cancelled run's partial result is still kept.
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.results.SaveResult(saveCtx, res); err != nil {
			r.log.Error("persisting result", "id", id, "error", err)
		}
	}
	if r.tracker != nil {
		r.tracker.SetStatus(id, outcome.Status)
	}

	r.log.Info("run finished", "id", id, "status", outcome.Status,
		"trades", len(outcome.Trades), "warnings", len(outcome.Warnings))
	return res, nil
}
