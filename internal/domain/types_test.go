package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 || bar.TradeCount != 0 || bar.VWAP != 0 {
		t.Error("expected zero Volume/TradeCount/VWAP for zero-value Bar")
	}

	// Verify Fill can be instantiated with zero values.
	fill := Fill{}
	if fill.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Fill")
	}
	if fill.Price != 0 || fill.Quantity != 0 || fill.Commission != 0 {
		t.Error("expected zero Price/Quantity/Commission for zero-value Fill")
	}
	if fill.RealizedPnL != nil {
		t.Error("expected nil RealizedPnL for zero-value Fill")
	}

	// Verify enum constants are defined correctly.
	if ActionBuy != "buy" || ActionSell != "sell" {
		t.Error("long-side action constants have unexpected values")
	}
	if ActionShort != "short" || ActionCover != "cover" {
		t.Error("short-side action constants have unexpected values")
	}
	if StatusPending != "pending" || StatusCompleted != "completed" {
		t.Error("run status constants have unexpected values")
	}
	if SizeShares != "shares" || SizePortfolioPct != "portfolio_pct" {
		t.Error("size mode constants have unexpected values")
	}

	// Verify structs can be constructed with real values.
	now := time.Now()
	sig := Signal{
		Symbol:   "AAPL",
		Action:   ActionBuy,
		Size:     10,
		SizeMode: SizeShares,
		Reason:   "breakout",
	}
	if sig.Action != ActionBuy {
		t.Errorf("sig.Action = %q, want %q", sig.Action, ActionBuy)
	}

	pos := Position{
		Symbol:        "AAPL",
		Quantity:      100,
		AvgEntryPrice: 185.5,
		OpenedAt:      now,
	}
	if pos.Side() != "long" {
		t.Errorf("pos.Side() = %q, want %q", pos.Side(), "long")
	}
	pos.Quantity = -100
	if pos.Side() != "short" {
		t.Errorf("pos.Side() = %q, want %q", pos.Side(), "short")
	}
}

func TestBacktestResultConstruction(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

	res := BacktestResult{
		ID: "run-1",
		Config: BacktestConfig{
			Strategy:       "trend-following",
			Symbols:        []string{"AAPL"},
			Start:          start,
			End:            end,
			InitialCapital: 10000,
		},
		Status: StatusCompleted,
		EquityCurve: []EquityPoint{
			{Timestamp: start, Value: 10000},
		},
	}

	if res.Config.InitialCapital != 10000 {
		t.Errorf("InitialCapital = %v, want 10000", res.Config.InitialCapital)
	}
	if res.EquityCurve[0].Value != res.Config.InitialCapital {
		t.Error("first equity point should equal initial capital")
	}
	if res.Metrics != nil {
		t.Error("Metrics should be nil until computed")
	}
	if res.Failure != nil {
		t.Error("Failure should be nil for a completed run")
	}
}
