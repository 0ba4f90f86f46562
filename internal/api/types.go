// Package api provides the HTTP REST API for submitting backtests, polling
// their progress, and browsing stored results and market data.
package api

import (
	"time"

	"vela/internal/domain"
	"vela/internal/store"
	"vela/internal/strategy"
)

// SubmitRequest is the backtest submission body. The fill-model fields are
// pointers so an explicit zero (client opts out of a server default) is
// distinguishable from an omitted field (server default applies).
type SubmitRequest struct {
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

// SubmitResponse acknowledges an accepted backtest request.
type SubmitResponse struct {
	ID     string           `json:"id"`
	Status domain.RunStatus `json:"status"`
}

// StatusResponse reports a run still tracked in memory.
type StatusResponse struct {
	ID         string           `json:"id"`
	Strategy   string           `json:"strategy"`
	Status     domain.RunStatus `json:"status"`
	CurrentBar int              `json:"current_bar"`
	TotalBars  int              `json:"total_bars"`
	Equity     float64          `json:"equity"`
	StartedAt  time.Time        `json:"started_at"`
}

// ListResponse wraps stored result summaries.
type ListResponse struct {
	Results []store.ResultSummary `json:"results"`
}

// StrategyInfo describes one registered strategy and its parameter schema.
type StrategyInfo struct {
	Name   string               `json:"name"`
	Params strategy.ParamSchema `json:"params"`
}

// StrategiesResponse lists the registered strategies.
type StrategiesResponse struct {
	Strategies []StrategyInfo `json:"strategies"`
}

// SymbolsResponse lists symbols available in the bar store.
type SymbolsResponse struct {
	Symbols []string `json:"symbols"`
}

// BarsResponse wraps bars for one symbol over a range.
type BarsResponse struct {
	Symbol string       `json:"symbol"`
	Bars   []domain.Bar `json:"bars"`
}
