package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"vela/internal/domain"
	"vela/internal/series"
	"vela/internal/strategy"
)

// Failure kinds reported on a RunFailure.
const (
	FailStrategyEvaluation = "strategy_evaluation"
	FailCancelled          = "cancelled"
	// FailSetup marks runs that died before their first bar: prefetch, model
	// fitting, or benchmark loading.
	FailSetup = "setup"
)

// Outcome is what one simulation produces: the terminal status, the complete
// (or partial, for failed/cancelled runs) equity curve and trade log, the
// accumulated warnings, and the final portfolio state. Open positions at the
// end of the run stay open; they are marked to market in the final equity
// value, never force-closed.
type Outcome struct {
	Status      domain.RunStatus
	Failure     *domain.RunFailure
	EquityCurve []domain.EquityPoint
	Trades      []domain.Fill
	Warnings    []domain.Warning
	Positions   []domain.Position
	FinalCash   float64
}

// Engine is the execution simulator for one run: a strictly sequential state
// machine over the merged bar timeline. Signals emitted at bar t are filled
// against bar t+1's open, never the bar that produced them. An Engine is
// single-use; build a new one per run.
type Engine struct {
	set   *series.Set
	strat strategy.Strategy
	cfg   domain.BacktestConfig

	ledger    *Ledger
	trades    []domain.Fill
	curve     []domain.EquityPoint
	warnings  []domain.Warning
	pending   []domain.Signal
	lastClose map[string]float64
	log       *slog.Logger

	// OnBar, when set, is called after each completed bar with the timeline
	// index and the equity just recorded. Used for progress reporting; it
	// must not block.
	OnBar func(t int, equity float64)
}

// NewEngine builds an engine over a prefetched series set. No I/O happens
// inside the bar loop; everything the loop touches is already in memory.
func NewEngine(set *series.Set, strat strategy.Strategy, cfg domain.BacktestConfig) *Engine {
	return &Engine{
		set:       set,
		strat:     strat,
		cfg:       cfg,
		ledger:    NewLedger(cfg.InitialCapital),
		lastClose: make(map[string]float64),
		log:       slog.Default().With("component", "engine", "strategy", strat.Name()),
	}
}

// Ledger exposes the engine's portfolio ledger for mid-run snapshot reads.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Run executes the simulation. Cancellation is cooperative: the context is
// checked once per bar boundary, and a cancelled run keeps whatever equity
// curve and trades it had recorded. A strategy evaluation error is fatal and
// yields a failed outcome with the bar index preserved; the run is never
// silently truncated and reported as completed.
func (e *Engine) Run(ctx context.Context) *Outcome {
	if warns := e.set.ScanGaps(e.cfg.MaxGapDays); len(warns) > 0 {
		e.warnings = append(e.warnings, warns...)
	}

	n := e.set.Len()
	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			e.log.Info("run cancelled", "bar", t)
			return e.outcome(domain.StatusCancelled, &domain.RunFailure{
				Kind:    FailCancelled,
				Message: err.Error(),
				LastBar: t - 1,
			})
		}

		// 1. Fill signals queued at earlier bars against this bar's open.
		e.fillPending(t)

		// 2. Track last known closes for mark-to-market valuation.
		for _, sym := range e.set.Symbols() {
			if bar, ok := e.set.BarAt(sym, t); ok {
				e.lastClose[sym] = bar.Close
			}
		}

		// 3. Ask the strategy for new signals with history ending at t.
		signals, err := e.strat.Evaluate(ctx, e.set.Window(t))
		if err != nil {
			e.log.Error("strategy evaluation failed", "bar", t, "error", err)
			return e.outcome(domain.StatusFailed, &domain.RunFailure{
				Kind:    FailStrategyEvaluation,
				Message: err.Error(),
				LastBar: t - 1,
			})
		}
		e.pending = append(e.pending, signals...)

		// 4. Record the equity point for this bar.
		equity := e.ledger.MarkToMarket(e.lastClose)
		e.curve = append(e.curve, domain.EquityPoint{
			Timestamp: e.set.TimestampAt(t),
			Value:     equity,
		})
		if e.OnBar != nil {
			e.OnBar(t, equity)
		}
	}

	return e.outcome(domain.StatusCompleted, nil)
}

func (e *Engine) outcome(status domain.RunStatus, failure *domain.RunFailure) *Outcome {
	return &Outcome{
		Status:      status,
		Failure:     failure,
		EquityCurve: e.curve,
		Trades:      e.trades,
		Warnings:    e.warnings,
		Positions:   e.ledger.Positions(),
		FinalCash:   e.ledger.Cash(),
	}
}

// fillPending executes queued signals whose symbol has a bar at timeline
// index t, using that bar's open. Signals whose symbol has no bar at t stay
// queued until its next bar. Signals still pending when the timeline ends are
// never executed.
func (e *Engine) fillPending(t int) {
	if len(e.pending) == 0 {
		return
	}

	var still []domain.Signal
	for _, sig := range e.pending {
		bar, ok := e.set.BarAt(sig.Symbol, t)
		if !ok {
			still = append(still, sig)
			continue
		}
		e.execute(t, sig, bar)
	}
	e.pending = still
}

// execute turns one signal into at most one fill at bar's open, applying
// slippage and commission, clipping against available cash or position, and
// appending the trade to the log.
func (e *Engine) execute(t int, sig domain.Signal, bar domain.Bar) {
	base := bar.Open

	// Slippage is adverse: entries pay up, exits receive less.
	price := base
	switch sig.Action {
	case domain.ActionBuy, domain.ActionCover:
		price = base * (1 + e.cfg.SlippagePct)
	case domain.ActionSell, domain.ActionShort:
		price = base * (1 - e.cfg.SlippagePct)
	}

	qty, warning := e.resolveQuantity(sig, price)
	if qty <= 0 {
		if warning != "" {
			e.warn(t, bar, sig, warning, "order dropped: "+warning)
		}
		return
	}

	commission := e.cfg.CommissionFlat + e.cfg.CommissionPct*price*qty
	fill := domain.Fill{
		Timestamp:  bar.Timestamp,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		Price:      price,
		Quantity:   qty,
		Commission: commission,
		Slippage:   (price - base) * qty,
		Reason:     sig.Reason,
		Warning:    warning,
	}
	if fill.Slippage < 0 {
		fill.Slippage = -fill.Slippage
	}

	if err := e.ledger.ApplyFill(&fill); err != nil {
		// Position-direction conflicts reach here (buy while short etc).
		e.warn(t, bar, sig, domain.WarnConflictingPosition, err.Error())
		return
	}

	if warning != "" {
		e.warn(t, bar, sig, warning,
			fmt.Sprintf("order clipped to %v shares", qty))
	}
	e.trades = append(e.trades, fill)
}

// resolveQuantity converts a signal's size into a concrete share quantity at
// the fill price, clipping to the maximum affordable (buys/covers) or
// available (sells/covers) quantity. A non-empty warning kind is returned
// when clipping occurred.
func (e *Engine) resolveQuantity(sig domain.Signal, price float64) (float64, string) {
	var qty float64
	switch sig.SizeMode {
	case domain.SizePortfolioPct:
		equity := e.ledger.MarkToMarket(e.lastClose)
		qty = equity * sig.Size / price
	default:
		qty = sig.Size
	}

	switch sig.Action {
	case domain.ActionBuy:
		// Affordable quantity: price*q + flat + pct*price*q <= cash.
		cash := e.ledger.Cash()
		maxQty := (cash - e.cfg.CommissionFlat) / (price * (1 + e.cfg.CommissionPct))
		if maxQty < 0 {
			maxQty = 0
		}
		if qty > maxQty {
			return maxQty, domain.WarnInsufficientFunds
		}
		return qty, ""

	case domain.ActionSell:
		pos, ok := e.ledger.Position(sig.Symbol)
		if !ok || pos.Quantity <= 0 {
			return 0, domain.WarnInsufficientPosition
		}
		if qty == 0 || qty > pos.Quantity {
			// Size 0 means close the whole position; oversells clip to it.
			if qty > pos.Quantity {
				return pos.Quantity, domain.WarnInsufficientPosition
			}
			return pos.Quantity, ""
		}
		return qty, ""

	case domain.ActionShort:
		return qty, ""

	case domain.ActionCover:
		pos, ok := e.ledger.Position(sig.Symbol)
		if !ok || pos.Quantity >= 0 {
			return 0, domain.WarnInsufficientPosition
		}
		open := -pos.Quantity
		warning := ""
		if qty == 0 {
			qty = open
		} else if qty > open {
			qty = open
			warning = domain.WarnInsufficientPosition
		}
		// Covering also spends cash.
		cash := e.ledger.Cash()
		maxQty := (cash - e.cfg.CommissionFlat) / (price * (1 + e.cfg.CommissionPct))
		if maxQty < 0 {
			maxQty = 0
		}
		if qty > maxQty {
			return maxQty, domain.WarnInsufficientFunds
		}
		return qty, warning

	default:
		return 0, ""
	}
}

func (e *Engine) warn(t int, bar domain.Bar, sig domain.Signal, kind, msg string) {
	e.log.Warn("order warning",
		"bar", t, "symbol", sig.Symbol, "action", sig.Action, "kind", kind, "msg", msg)
	e.warnings = append(e.warnings, domain.Warning{
		Kind:      kind,
		Bar:       t,
		Timestamp: bar.Timestamp,
		Message:   fmt.Sprintf("%s %s: %s", sig.Action, sig.Symbol, msg),
	})
}
