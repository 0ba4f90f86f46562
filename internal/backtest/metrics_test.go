package backtest

import (
	"math"
	"testing"
	"time"

	"vela/internal/domain"
)

func curveOf(values ...float64) []domain.EquityPoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Timestamp: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

func closedTrade(pnl float64) domain.Fill {
	return domain.Fill{Action: domain.ActionSell, RealizedPnL: &pnl}
}

func TestMetricsTotalAndAnnualizedReturn(t *testing.T) {
	curve := curveOf(10000, 10500, 11000)
	m := ComputeMetrics(curve, nil, 10000, 252, nil)

	if math.Abs(m.TotalReturn-0.1) > 1e-9 {
		t.Errorf("total return = %v, want 0.1", m.TotalReturn)
	}
	want := math.Pow(1.1, 252.0/3.0) - 1
	if math.Abs(m.AnnualizedReturn-want) > 1e-9 {
		t.Errorf("annualized = %v, want %v", m.AnnualizedReturn, want)
	}
	if m.FinalEquity != 11000 {
		t.Errorf("final equity = %v, want 11000", m.FinalEquity)
	}
}

func TestMetricsFlatCurveSharpeIsZero(t *testing.T) {
	curve := curveOf(10000, 10000, 10000, 10000)
	m := ComputeMetrics(curve, nil, 10000, 252, nil)

	if m.SharpeRatio != 0 {
		t.Errorf("flat-curve Sharpe = %v, want 0, never NaN", m.SharpeRatio)
	}
	if math.IsNaN(m.SharpeRatio) || math.IsNaN(m.Volatility) || math.IsNaN(m.SortinoRatio) {
		t.Error("degenerate inputs must not produce NaN")
	}
	if m.Volatility != 0 {
		t.Errorf("flat-curve volatility = %v, want 0", m.Volatility)
	}
}

func TestMetricsSortinoZeroWithoutNegativeReturns(t *testing.T) {
	curve := curveOf(10000, 10100, 10250, 10400)
	m := ComputeMetrics(curve, nil, 10000, 252, nil)
	if m.SortinoRatio != 0 {
		t.Errorf("Sortino with no losing bars = %v, want 0", m.SortinoRatio)
	}
}

func TestMetricsSharpeKnownValue(t *testing.T) {
	curve := curveOf(10000, 10100, 9999)
	m := ComputeMetrics(curve, nil, 10000, 252, nil)

	r1, r2 := 0.01, 9999.0/10100.0-1
	mean := (r1 + r2) / 2
	std := math.Sqrt(((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 2)
	want := mean / std * math.Sqrt(252)
	if math.Abs(m.SharpeRatio-want) > 1e-9 {
		t.Errorf("Sharpe = %v, want %v", m.SharpeRatio, want)
	}
}

func TestMetricsMaxDrawdown(t *testing.T) {
	// Peak 12000 -> trough 9000 = 25% drawdown.
	curve := curveOf(10000, 12000, 9000, 11000)
	m := ComputeMetrics(curve, nil, 10000, 252, nil)

	if math.Abs(m.MaxDrawdown-0.25) > 1e-9 {
		t.Errorf("max drawdown = %v, want 0.25", m.MaxDrawdown)
	}
	if m.MaxDrawdown < 0 || m.MaxDrawdown > 1 {
		t.Errorf("drawdown %v outside [0, 1]", m.MaxDrawdown)
	}
}

func TestMetricsMonotonicCurveHasZeroDrawdown(t *testing.T) {
	curve := curveOf(10000, 10100, 10200, 10300)
	m := ComputeMetrics(curve, nil, 10000, 252, nil)
	if m.MaxDrawdown != 0 {
		t.Errorf("rising curve drawdown = %v, want 0", m.MaxDrawdown)
	}
}

func TestMetricsWinRateAndProfitFactor(t *testing.T) {
	trades := []domain.Fill{
		closedTrade(100),
		closedTrade(-40),
		closedTrade(60),
		{Action: domain.ActionBuy}, // opening fill: not a closing trade
	}
	m := ComputeMetrics(curveOf(10000, 10120), trades, 10000, 252, nil)

	if m.TotalTrades != 3 {
		t.Errorf("total trades = %d, want 3 closing", m.TotalTrades)
	}
	if math.Abs(m.WinRate-2.0/3.0) > 1e-9 {
		t.Errorf("win rate = %v, want 2/3", m.WinRate)
	}
	if m.ProfitFactor == nil || math.Abs(*m.ProfitFactor-4) > 1e-9 {
		t.Errorf("profit factor = %v, want 4 (160/40)", m.ProfitFactor)
	}
}

func TestMetricsProfitFactorNilWithoutLosses(t *testing.T) {
	trades := []domain.Fill{closedTrade(100), closedTrade(50)}
	m := ComputeMetrics(curveOf(10000, 10150), trades, 10000, 252, nil)

	if m.ProfitFactor != nil {
		t.Errorf("profit factor = %v, want nil, not infinity", *m.ProfitFactor)
	}
	if m.WinRate != 1 {
		t.Errorf("win rate = %v, want 1", m.WinRate)
	}
}

func TestMetricsNoClosingTrades(t *testing.T) {
	m := ComputeMetrics(curveOf(10000, 10100), nil, 10000, 252, nil)
	if m.WinRate != 0 {
		t.Errorf("win rate with no trades = %v, want 0", m.WinRate)
	}
	if m.TotalTrades != 0 {
		t.Errorf("total trades = %d, want 0", m.TotalTrades)
	}
}

func TestMetricsAlphaBeta(t *testing.T) {
	// Strategy returns exactly 2* the benchmark: beta 2, alpha ~0.
	bench := curveOf(100, 101, 102.01, 100.9899, 102.999799)
	strat := make([]domain.EquityPoint, len(bench))
	strat[0] = domain.EquityPoint{Timestamp: bench[0].Timestamp, Value: 1000}
	for i := 1; i < len(bench); i++ {
		r := bench[i].Value/bench[i-1].Value - 1
		strat[i] = domain.EquityPoint{
			Timestamp: bench[i].Timestamp,
			Value:     strat[i-1].Value * (1 + 2*r),
		}
	}

	m := ComputeMetrics(strat, nil, 1000, 252, bench)
	if m.Beta == nil || m.Alpha == nil {
		t.Fatal("alpha/beta should be computed when a benchmark is supplied")
	}
	if math.Abs(*m.Beta-2) > 1e-6 {
		t.Errorf("beta = %v, want 2", *m.Beta)
	}
	if math.Abs(*m.Alpha) > 1e-6 {
		t.Errorf("alpha = %v, want ~0", *m.Alpha)
	}
}

func TestMetricsAlphaBetaNilWithoutBenchmark(t *testing.T) {
	m := ComputeMetrics(curveOf(10000, 10100), nil, 10000, 252, nil)
	if m.Alpha != nil || m.Beta != nil {
		t.Error("alpha/beta must be nil when no benchmark is supplied")
	}
}

func TestMetricsEmptyCurve(t *testing.T) {
	m := ComputeMetrics(nil, nil, 10000, 252, nil)
	if m.TotalReturn != 0 || m.SharpeRatio != 0 {
		t.Errorf("empty curve metrics = %+v, want zeros", m)
	}
}
