package builtins

import (
	"context"
	"fmt"
	"math"

	"vela/internal/domain"
	"vela/internal/indicator"
	"vela/internal/series"
	"vela/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*TrendFollowing)(nil)

// TrendFollowingSchema declares the trend-following strategy's parameters.
var TrendFollowingSchema = strategy.ParamSchema{
	"fast_period":  {Type: strategy.TypeInt, Min: strategy.Bound(2), Max: strategy.Bound(200), Default: 10},
	"slow_period":  {Type: strategy.TypeInt, Min: strategy.Bound(3), Max: strategy.Bound(500), Default: 30},
	"ma_type":      {Type: strategy.TypeString, Options: []string{"sma", "ema"}, Default: "sma"},
	"atr_period":   {Type: strategy.TypeInt, Min: strategy.Bound(2), Max: strategy.Bound(200), Default: 14},
	"atr_mult":     {Type: strategy.TypeFloat, Min: strategy.Bound(0.5), Max: strategy.Bound(10), Default: 2.0},
	"risk_pct":     {Type: strategy.TypeFloat, Min: strategy.Bound(0.001), Max: strategy.Bound(0.2), Default: 0.02},
	"position_pct": {Type: strategy.TypeFloat, Min: strategy.Bound(0.01), Max: strategy.Bound(1), Default: 0.25},
}

// TrendFollowing trades moving-average crossovers: it goes long when the fast
// average crosses above the slow one and exits when it crosses back below.
// Entries are sized so that risk_pct of equity is at risk over an
// atr_mult * ATR stop distance, capped at position_pct of equity.
type TrendFollowing struct {
	fastPeriod  int
	slowPeriod  int
	maType      string
	atrPeriod   int
	atrMult     float64
	riskPct     float64
	positionPct float64

	long map[string]bool
}

// NewTrendFollowing constructs the strategy from validated parameters. The
// fast period must be strictly shorter than the slow period.
func NewTrendFollowing(p strategy.Params) (strategy.Strategy, error) {
	fast, slow := p.Int("fast_period"), p.Int("slow_period")
	if fast >= slow {
		return nil, &strategy.InvalidParameterError{
			Strategy: "trend-following",
			Violations: []string{
				fmt.Sprintf("fast_period: %d must be less than slow_period %d", fast, slow),
			},
		}
	}
	return &TrendFollowing{
		fastPeriod:  fast,
		slowPeriod:  slow,
		maType:      p.String("ma_type"),
		atrPeriod:   p.Int("atr_period"),
		atrMult:     p.Float("atr_mult"),
		riskPct:     p.Float("risk_pct"),
		positionPct: p.Float("position_pct"),
		long:        make(map[string]bool),
	}, nil
}

// Name returns "trend-following".
func (s *TrendFollowing) Name() string { return "trend-following" }

// Evaluate detects fast/slow crossovers at the window's final bar.
func (s *TrendFollowing) Evaluate(_ context.Context, w *series.Window) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, sym := range w.Symbols() {
		if _, ok := w.Current(sym); !ok {
			continue
		}
		closes := w.Closes(sym)
		need := s.slowPeriod + 1
		if s.atrPeriod+1 > need {
			need = s.atrPeriod + 1
		}
		if len(closes) < need {
			continue
		}

		fast := s.average(closes, s.fastPeriod)
		slow := s.average(closes, s.slowPeriod)

		i := len(closes) - 1
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) ||
			math.IsNaN(fast[i-1]) || math.IsNaN(slow[i-1]) {
			continue
		}

		crossedUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
		crossedDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]

		switch {
		case !s.long[sym] && crossedUp:
			atr := indicator.ATR(w.Highs(sym), w.Lows(sym), closes, s.atrPeriod)
			if math.IsNaN(atr[i]) || atr[i] <= 0 {
				continue
			}
			// Size off the signal bar's close; the fill happens at the next
			// open, and the simulator clips against actual cash there.
			price := closes[i]
			shares := strategy.RiskSize(1, s.riskPct, s.atrMult*atr[i]) // per unit equity
			sizePct := shares * price
			if sizePct > s.positionPct {
				sizePct = s.positionPct
			}
			if sizePct <= 0 {
				continue
			}
			s.long[sym] = true
			signals = append(signals, domain.Signal{
				Symbol:   sym,
				Action:   domain.ActionBuy,
				Size:     sizePct,
				SizeMode: domain.SizePortfolioPct,
				Reason:   fmt.Sprintf("%s %d/%d crossed up", s.maType, s.fastPeriod, s.slowPeriod),
			})
		case s.long[sym] && crossedDown:
			s.long[sym] = false
			signals = append(signals, domain.Signal{
				Symbol:   sym,
				Action:   domain.ActionSell,
				Size:     0,
				SizeMode: domain.SizeShares,
				Reason:   fmt.Sprintf("%s %d/%d crossed down", s.maType, s.fastPeriod, s.slowPeriod),
			})
		}
	}
	return signals, nil
}

func (s *TrendFollowing) average(x []float64, period int) []float64 {
	if s.maType == "ema" {
		return indicator.EMA(x, period)
	}
	return indicator.SMA(x, period)
}
