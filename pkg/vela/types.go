package vela

import "time"

// Status is the lifecycle state of a backtest run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the run has finished in any way.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Float returns a pointer to v, for BacktestConfig's optional fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for BacktestConfig's optional fields.
func Int(v int) *int { return &v }

// BacktestConfig is a backtest submission. The fill-model fields are pointers
// so an explicit zero reaches the server instead of being dropped by
// omitempty; nil leaves the server default in charge. Use Float and Int for
// literals.
type BacktestConfig struct {
	Strategy       string         `json:"strategy"`
	Params         map[string]any `json:"params,omitempty"`
	Symbols        []string       `json:"symbols"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	InitialCapital float64        `json:"initial_capital"`
	SlippagePct    *float64       `json:"slippage_pct,omitempty"`
	CommissionFlat *float64       `json:"commission_flat,omitempty"`
	CommissionPct  *float64       `json:"commission_pct,omitempty"`
	BarsPerYear    *int           `json:"bars_per_year,omitempty"`
	MaxGapDays     *int           `json:"max_gap_days,omitempty"`
	Benchmark      string         `json:"benchmark,omitempty"`
}

// Bar is one daily OHLCV bar.
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

// Fill is one executed trade.
type Fill struct {
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	Action      string    `json:"action"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	Commission  float64   `json:"commission"`
	Slippage    float64   `json:"slippage"`
	RealizedPnL *float64  `json:"realized_pnl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Warning     string    `json:"warning,omitempty"`
}

// EquityPoint is one sample of portfolio value over time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Warning is a non-fatal condition recorded during a run.
type Warning struct {
	Kind      string    `json:"kind"`
	Bar       int       `json:"bar"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// RunFailure describes why a failed run stopped.
type RunFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	LastBar int    `json:"last_bar"`
}

// Metrics are the performance statistics of a finished run. ProfitFactor is
// nil when the run had no losing trades; Alpha and Beta are nil without a
// benchmark.
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

// BacktestResult is the full stored outcome of a run.
type BacktestResult struct {
	ID          string         `json:"id"`
	Config      BacktestConfig `json:"config"`
	Status      Status         `json:"status"`
	Failure     *RunFailure    `json:"failure,omitempty"`
	Warnings    []Warning      `json:"warnings,omitempty"`
	EquityCurve []EquityPoint  `json:"equity_curve"`
	Trades      []Fill         `json:"trades"`
	Metrics     *Metrics       `json:"metrics,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// ResultSummary is one row of a result listing.
type ResultSummary struct {
	ID          string    `json:"id"`
	Strategy    string    `json:"strategy"`
	Symbols     []string  `json:"symbols"`
	Status      Status    `json:"status"`
	TotalReturn float64   `json:"total_return"`
	SharpeRatio float64   `json:"sharpe_ratio"`
	MaxDrawdown float64   `json:"max_drawdown"`
	WinRate     float64   `json:"win_rate"`
	TotalTrades int       `json:"total_trades"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParamSpec describes one strategy parameter.
type ParamSpec struct {
	Type    string   `json:"type"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
	Default any      `json:"default"`
}

// ParamSchema maps parameter names to their specs.
type ParamSchema map[string]ParamSpec

// StrategyInfo describes one registered strategy and its parameter schema.
type StrategyInfo struct {
	Name   string      `json:"name"`
	Params ParamSchema `json:"params"`
}

// RunStatus is the tracker view of a live backtest.
type RunStatus struct {
	ID         string    `json:"id"`
	Strategy   string    `json:"strategy"`
	Status     Status    `json:"status"`
	CurrentBar int       `json:"current_bar"`
	TotalBars  int       `json:"total_bars"`
	Equity     float64   `json:"equity"`
	StartedAt  time.Time `json:"started_at"`
}
