// Package builtins provides the built-in strategy implementations that ship
// with the vela platform and registers them with a strategy registry.
package builtins

import (
	"context"
	"math"

	"vela/internal/domain"
	"vela/internal/indicator"
	"vela/internal/series"
	"vela/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversionSchema declares the mean-reversion strategy's parameters.
var MeanReversionSchema = strategy.ParamSchema{
	"window":       {Type: strategy.TypeInt, Min: strategy.Bound(2), Max: strategy.Bound(500), Default: 20},
	"num_std":      {Type: strategy.TypeFloat, Min: strategy.Bound(0.1), Max: strategy.Bound(10), Default: 2.0},
	"rsi_period":   {Type: strategy.TypeInt, Min: strategy.Bound(2), Max: strategy.Bound(200), Default: 14},
	"oversold":     {Type: strategy.TypeFloat, Min: strategy.Bound(0), Max: strategy.Bound(100), Default: 30.0},
	"overbought":   {Type: strategy.TypeFloat, Min: strategy.Bound(0), Max: strategy.Bound(100), Default: 70.0},
	"position_pct": {Type: strategy.TypeFloat, Min: strategy.Bound(0.01), Max: strategy.Bound(1), Default: 0.2},
}

// MeanReversion buys when price falls below the lower Bollinger band with an
// oversold RSI, and sells the position back when price rises above the upper
// band with an overbought RSI. Signals are emitted only on entering or
// leaving the position, not on every bar the condition holds.
type MeanReversion struct {
	window      int
	numStd      float64
	rsiPeriod   int
	oversold    float64
	overbought  float64
	positionPct float64

	long map[string]bool // per-symbol in-position flag
}

// NewMeanReversion constructs the strategy from validated parameters.
func NewMeanReversion(p strategy.Params) (strategy.Strategy, error) {
	return &MeanReversion{
		window:      p.Int("window"),
		numStd:      p.Float("num_std"),
		rsiPeriod:   p.Int("rsi_period"),
		oversold:    p.Float("oversold"),
		overbought:  p.Float("overbought"),
		positionPct: p.Float("position_pct"),
		long:        make(map[string]bool),
	}, nil
}

// Name returns "mean-reversion".
func (s *MeanReversion) Name() string { return "mean-reversion" }

// Evaluate checks each symbol's Bollinger band and RSI at the window's final
// bar and emits entry/exit signals on state transitions.
func (s *MeanReversion) Evaluate(_ context.Context, w *series.Window) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, sym := range w.Symbols() {
		if _, ok := w.Current(sym); !ok {
			continue // symbol has no bar at this step
		}
		closes := w.Closes(sym)
		need := s.window
		if s.rsiPeriod+1 > need {
			need = s.rsiPeriod + 1
		}
		if len(closes) < need {
			continue
		}

		_, upper, lower := indicator.Bollinger(closes, s.window, s.numStd)
		rsi := indicator.RSI(closes, s.rsiPeriod)

		i := len(closes) - 1
		if math.IsNaN(upper[i]) || math.IsNaN(rsi[i]) {
			continue
		}

		price := closes[i]
		switch {
		case !s.long[sym] && price < lower[i] && rsi[i] < s.oversold:
			s.long[sym] = true
			signals = append(signals, domain.Signal{
				Symbol:   sym,
				Action:   domain.ActionBuy,
				Size:     s.positionPct,
				SizeMode: domain.SizePortfolioPct,
				Reason:   "close below lower band, RSI oversold",
			})
		case s.long[sym] && price > upper[i] && rsi[i] > s.overbought:
			s.long[sym] = false
			signals = append(signals, domain.Signal{
				Symbol:   sym,
				Action:   domain.ActionSell,
				Size:     0, // 0 = close the whole position
				SizeMode: domain.SizeShares,
				Reason:   "close above upper band, RSI overbought",
			})
		}
	}
	return signals, nil
}
