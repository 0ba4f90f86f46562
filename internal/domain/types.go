// Package domain defines the core data types shared across the vela
// backtesting platform: bars, signals, fills, positions, equity curves, and
// backtest results.
package domain

import "time"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV sample for a fixed time interval. Bars are immutable once
// loaded; the engine never mutates them.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalAction is the trade intent emitted by a strategy.
type SignalAction string

const (
	ActionBuy   SignalAction = "buy"   // open or add to a long position
	ActionSell  SignalAction = "sell"  // close or reduce a long position
	ActionShort SignalAction = "short" // open or add to a short position
	ActionCover SignalAction = "cover" // close or reduce a short position
)

// SizeMode selects how Signal.Size is interpreted.
type SizeMode string

const (
	// SizeShares means Size is an absolute share quantity (fractional allowed).
	SizeShares SizeMode = "shares"
	// SizePortfolioPct means Size is a fraction of current portfolio value
	// (0.1 = 10%) to be converted to shares at the fill price.
	SizePortfolioPct SizeMode = "portfolio_pct"
)

// Signal is a trade intent produced by a strategy for the current bar. The
// simulator fills it against the NEXT bar's open, never the bar that
// generated it.
type Signal struct {
	Symbol   string       `json:"symbol"`
	Action   SignalAction `json:"action"`
	Size     float64      `json:"size"`
	SizeMode SizeMode     `json:"size_mode"`
	Reason   string       `json:"reason,omitempty"`
}

// ---------------------------------------------------------------------------
// Fills and positions
// ---------------------------------------------------------------------------

// Fill is an executed trade: the append-only trade-log entry created exactly
// once per applied signal. Immutable after creation.
type Fill struct {
	Timestamp  time.Time    `json:"timestamp"`
	Symbol     string       `json:"symbol"`
	Action     SignalAction `json:"action"`
	Price      float64      `json:"price"`    // execution price, slippage included
	Quantity   float64      `json:"quantity"` // always positive
	Commission float64      `json:"commission"`
	Slippage   float64      `json:"slippage"` // total adverse price deviation paid, in dollars
	// RealizedPnL is set only when the fill closes or reduces a position:
	// (exit - avg entry) * quantity, sign-flipped for shorts. Commissions are
	// accounted in cash, not here.
	RealizedPnL *float64 `json:"realized_pnl,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	// Warning is set when the order was clipped (insufficient funds or
	// position); empty otherwise.
	Warning string `json:"warning,omitempty"`
}

// Position is an open holding, owned exclusively by the portfolio ledger.
// Quantity is signed: positive long, negative short.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Side reports "long" or "short" based on the sign of Quantity.
func (p Position) Side() string {
	if p.Quantity < 0 {
		return "short"
	}
	return "long"
}

// EquityPoint is one sample of total portfolio value (cash plus positions
// marked to market), recorded once per simulated bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ---------------------------------------------------------------------------
// Run lifecycle
// ---------------------------------------------------------------------------

// RunStatus is a backtest run's lifecycle state.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Warning kinds accumulated on a result. Non-fatal: the run continues.
const (
	WarnInsufficientFunds    = "insufficient_funds"
	WarnInsufficientPosition = "insufficient_position"
	WarnConflictingPosition  = "conflicting_position"
	WarnDataGap              = "data_gap"
)

// Warning records a non-fatal condition observed during a run.
type Warning struct {
	Kind      string    `json:"kind"`
	Bar       int       `json:"bar"` // timeline index at which it was observed
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// RunFailure describes why a run transitioned to failed. LastBar is the last
// timeline index that completed cleanly.
type RunFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	LastBar int    `json:"last_bar"`
}

// ---------------------------------------------------------------------------
// Configuration and results
// ---------------------------------------------------------------------------

// BacktestConfig describes one backtest run.
type BacktestConfig struct {
	Strategy       string         `json:"strategy"`
	Params         map[string]any `json:"params,omitempty"`
	Symbols        []string       `json:"symbols"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	InitialCapital float64        `json:"initial_capital"`

	// Fill model. Slippage is an adverse fraction of the fill price
	// (0.001 = 0.1%); commission is a flat fee per fill plus a fraction of
	// notional. All default to zero.
	SlippagePct    float64 `json:"slippage_pct,omitempty"`
	CommissionFlat float64 `json:"commission_flat,omitempty"`
	CommissionPct  float64 `json:"commission_pct,omitempty"`

	// BarsPerYear annualizes metrics; 0 means 252 (US daily bars).
	BarsPerYear int `json:"bars_per_year,omitempty"`
	// MaxGapDays is the calendar-day span between consecutive bars beyond
	// which a data-gap warning is recorded; 0 means 30.
	MaxGapDays int `json:"max_gap_days,omitempty"`
	// Benchmark is an optional symbol whose bars supply the alpha/beta
	// regression; empty disables alpha/beta.
	Benchmark string `json:"benchmark,omitempty"`
}

// Metrics is the performance table computed from a completed run. All ratios
// are fractions, not percentages. Pointer fields are nil where the metric is
// undefined (no losing trades, no benchmark).
type Metrics struct {
	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	Volatility       float64  `json:"volatility"`
	SharpeRatio      float64  `json:"sharpe_ratio"`
	SortinoRatio     float64  `json:"sortino_ratio"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	WinRate          float64  `json:"win_rate"`
	ProfitFactor     *float64 `json:"profit_factor"`
	Alpha            *float64 `json:"alpha"`
	Beta             *float64 `json:"beta"`
	TotalTrades      int      `json:"total_trades"`
	FinalEquity      float64  `json:"final_equity"`
}

// BacktestResult is the immutable outcome of one run: configuration, status,
// full equity curve and trade log, warnings, and the computed metrics
// (populated only for completed runs).
type BacktestResult struct {
	ID          string         `json:"id"`
	Config      BacktestConfig `json:"config"`
	Status      RunStatus      `json:"status"`
	Failure     *RunFailure    `json:"failure,omitempty"`
	Warnings    []Warning      `json:"warnings,omitempty"`
	EquityCurve []EquityPoint  `json:"equity_curve"`
	Trades      []Fill         `json:"trades"`
	Metrics     *Metrics       `json:"metrics,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
