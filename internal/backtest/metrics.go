package backtest

import (
	"math"
	"time"

	"vela/internal/domain"
)

// DefaultBarsPerYear annualizes daily-bar metrics (US trading days).
const DefaultBarsPerYear = 252

// ComputeMetrics derives the performance table from a completed run's equity
// curve and trade log. It is a pure function: inputs are never mutated and no
// external data is fetched. A benchmark close series (aligned by timestamp)
// enables alpha/beta; pass nil to leave them undefined.
//
// All ratios are fractions. Degenerate inputs take defined values rather than
// NaN: a flat curve has Sharpe 0, a run without losing trades has a nil
// profit factor, a run without closing trades has win rate 0.
func ComputeMetrics(
	curve []domain.EquityPoint,
	trades []domain.Fill,
	initialCapital float64,
	barsPerYear int,
	benchmark []domain.EquityPoint,
) *domain.Metrics {
	if barsPerYear <= 0 {
		barsPerYear = DefaultBarsPerYear
	}

	m := &domain.Metrics{}
	if len(curve) == 0 || initialCapital <= 0 {
		return m
	}

	final := curve[len(curve)-1].Value
	m.FinalEquity = final
	m.TotalReturn = final/initialCapital - 1

	if n := len(curve); n > 0 && 1+m.TotalReturn > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, float64(barsPerYear)/float64(n)) - 1
	} else {
		m.AnnualizedReturn = -1
	}

	returns := periodReturns(curve)
	mean, std := meanStd(returns)
	sqrtYear := math.Sqrt(float64(barsPerYear))

	m.Volatility = std * sqrtYear
	if std > 0 {
		m.SharpeRatio = mean / std * sqrtYear
	}

	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	if len(negative) > 0 {
		_, downStd := meanStd(negative)
		if downStd > 0 {
			m.SortinoRatio = mean / downStd * sqrtYear
		}
	}

	m.MaxDrawdown = maxDrawdown(curve)

	wins, losses := 0, 0
	var grossProfit, grossLoss float64
	for _, tr := range trades {
		if tr.RealizedPnL == nil {
			continue
		}
		m.TotalTrades++
		pnl := *tr.RealizedPnL
		if pnl > 0 {
			wins++
			grossProfit += pnl
		} else if pnl < 0 {
			losses++
			grossLoss += -pnl
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(wins) / float64(m.TotalTrades)
	}
	if grossLoss > 0 {
		pf := grossProfit / grossLoss
		m.ProfitFactor = &pf
	}

	if len(benchmark) > 1 {
		alpha, beta, ok := alphaBeta(curve, benchmark, barsPerYear)
		if ok {
			m.Alpha = &alpha
			m.Beta = &beta
		}
	}

	return m
}

// periodReturns computes per-bar simple returns equity[i]/equity[i-1] - 1.
func periodReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, curve[i].Value/prev-1)
	}
	return out
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	v := sq / float64(len(xs))
	if v < 0 {
		v = 0
	}
	return mean, math.Sqrt(v)
}

// maxDrawdown returns the largest peak-to-trough decline as a positive
// fraction of the running peak.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	var maxDD float64
	peak := curve[0].Value
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (peak - p.Value) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// alphaBeta regresses strategy per-bar returns against benchmark per-bar
// returns over timestamps present in both series. Beta is the regression
// slope; alpha is the intercept annualized by barsPerYear. Returns ok=false
// when fewer than two common observations exist or the benchmark has zero
// variance.
func alphaBeta(curve, benchmark []domain.EquityPoint, barsPerYear int) (alpha, beta float64, ok bool) {
	benchByTS := make(map[time.Time]float64, len(benchmark))
	for _, p := range benchmark {
		benchByTS[p.Timestamp] = p.Value
	}

	// Paired per-bar returns over the intersection of timestamps.
	var stratR, benchR []float64
	var prevEquity, prevBench float64
	havePrev := false
	for _, p := range curve {
		bv, found := benchByTS[p.Timestamp]
		if !found {
			continue
		}
		if havePrev && prevEquity != 0 && prevBench != 0 {
			stratR = append(stratR, p.Value/prevEquity-1)
			benchR = append(benchR, bv/prevBench-1)
		}
		prevEquity, prevBench = p.Value, bv
		havePrev = true
	}
	if len(stratR) < 2 {
		return 0, 0, false
	}

	meanS, _ := meanStd(stratR)
	meanB, _ := meanStd(benchR)

	var cov, varB float64
	for i := range stratR {
		cov += (stratR[i] - meanS) * (benchR[i] - meanB)
		varB += (benchR[i] - meanB) * (benchR[i] - meanB)
	}
	if varB == 0 {
		return 0, 0, false
	}

	beta = cov / varB
	alpha = (meanS - beta*meanB) * float64(barsPerYear)
	return alpha, beta, true
}
