package builtins

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"vela/internal/domain"
	"vela/internal/series"
	"vela/internal/strategy"
)

// barsFromCloses builds daily bars with a small intrabar range around each
// close.
func barsFromCloses(symbol string, closes []float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      c * 0.999,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func setFromCloses(t *testing.T, symbol string, closes []float64) *series.Set {
	t.Helper()
	s, err := series.New(symbol, barsFromCloses(symbol, closes))
	if err != nil {
		t.Fatalf("series.New: %v", err)
	}
	set, err := series.NewSet(s)
	if err != nil {
		t.Fatalf("series.NewSet: %v", err)
	}
	return set
}

// evaluateAll walks the full timeline and collects every emitted signal,
// keyed by the bar index it was emitted at.
func evaluateAll(t *testing.T, s strategy.Strategy, set *series.Set) map[int][]domain.Signal {
	t.Helper()
	out := make(map[int][]domain.Signal)
	for i := 0; i < set.Len(); i++ {
		sigs, err := s.Evaluate(context.Background(), set.Window(i))
		if err != nil {
			t.Fatalf("Evaluate at bar %d: %v", i, err)
		}
		if len(sigs) > 0 {
			out[i] = sigs
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// mean-reversion
// ---------------------------------------------------------------------------

func TestMeanReversionEntersOnOversoldBelowBand(t *testing.T) {
	// Stable prices, then a sharp collapse: close drops below the lower band
	// while RSI goes oversold.
	closes := make([]float64, 0, 40)
	for i := 0; i < 30; i++ {
		closes = append(closes, 100+0.1*float64(i%3))
	}
	for i := 0; i < 6; i++ {
		closes = append(closes, 96-3*float64(i))
	}

	s, err := NewMeanReversion(mustValidate(t, MeanReversionSchema, nil))
	if err != nil {
		t.Fatalf("NewMeanReversion: %v", err)
	}
	set := setFromCloses(t, "AAPL", closes)
	signals := evaluateAll(t, s, set)

	var buys int
	for _, sigs := range signals {
		for _, sig := range sigs {
			if sig.Action == domain.ActionBuy {
				buys++
				if sig.SizeMode != domain.SizePortfolioPct {
					t.Errorf("buy SizeMode = %q, want portfolio_pct", sig.SizeMode)
				}
			}
		}
	}
	if buys != 1 {
		t.Errorf("buy signals = %d, want exactly 1 (transition, not every bar)", buys)
	}
}

func TestMeanReversionNoSignalsOnFlatSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	s, err := NewMeanReversion(mustValidate(t, MeanReversionSchema, nil))
	if err != nil {
		t.Fatalf("NewMeanReversion: %v", err)
	}
	set := setFromCloses(t, "AAPL", closes)
	signals := evaluateAll(t, s, set)
	if len(signals) != 0 {
		t.Errorf("flat series produced signals: %v", signals)
	}
}

// ---------------------------------------------------------------------------
// trend-following
// ---------------------------------------------------------------------------

func TestTrendFollowingCrossoverRoundTrip(t *testing.T) {
	// Downtrend, then a strong uptrend (fast crosses above slow), then a
	// collapse (fast crosses back below).
	var closes []float64
	p := 100.0
	for i := 0; i < 25; i++ {
		p -= 0.3
		closes = append(closes, p)
	}
	for i := 0; i < 25; i++ {
		p += 1.2
		closes = append(closes, p)
	}
	for i := 0; i < 25; i++ {
		p -= 1.5
		closes = append(closes, p)
	}

	s, err := NewTrendFollowing(mustValidate(t, TrendFollowingSchema, map[string]any{
		"fast_period": 5,
		"slow_period": 15,
	}))
	if err != nil {
		t.Fatalf("NewTrendFollowing: %v", err)
	}
	set := setFromCloses(t, "MSFT", closes)
	signals := evaluateAll(t, s, set)

	var buyBar, sellBar = -1, -1
	for bar, sigs := range signals {
		for _, sig := range sigs {
			switch sig.Action {
			case domain.ActionBuy:
				if buyBar != -1 {
					t.Error("more than one buy signal")
				}
				buyBar = bar
				if sig.Size <= 0 || sig.Size > 0.25 {
					t.Errorf("buy size = %v, want in (0, 0.25]", sig.Size)
				}
			case domain.ActionSell:
				if sellBar != -1 {
					t.Error("more than one sell signal")
				}
				sellBar = bar
			}
		}
	}
	if buyBar == -1 || sellBar == -1 {
		t.Fatalf("expected one buy and one sell, got buy=%d sell=%d", buyBar, sellBar)
	}
	if sellBar <= buyBar {
		t.Errorf("sell at bar %d not after buy at bar %d", sellBar, buyBar)
	}
}

func TestTrendFollowingRejectsFastNotBelowSlow(t *testing.T) {
	_, err := NewTrendFollowing(mustValidate(t, TrendFollowingSchema, map[string]any{
		"fast_period": 30,
		"slow_period": 10,
	}))
	var ipe *strategy.InvalidParameterError
	if !errors.As(err, &ipe) {
		t.Fatalf("error type = %T, want *InvalidParameterError", err)
	}
}

// ---------------------------------------------------------------------------
// ml-predictor
// ---------------------------------------------------------------------------

func trainingHistory(symbol string, n int) map[string][]domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + 0.05*float64(i)
	}
	return map[string][]domain.Bar{symbol: barsFromCloses(symbol, closes)}
}

func TestMLPredictorUnfittedEvaluateFails(t *testing.T) {
	s, err := NewMLPredictor(mustValidate(t, MLPredictorSchema, nil))
	if err != nil {
		t.Fatalf("NewMLPredictor: %v", err)
	}
	set := setFromCloses(t, "SPY", make60Closes())

	_, err = s.Evaluate(context.Background(), set.Window(set.Len()-1))
	if !errors.Is(err, ErrNotFitted) {
		t.Errorf("Evaluate on unfitted model: err = %v, want ErrNotFitted", err)
	}
}

func TestMLPredictorDeterministicAcrossFits(t *testing.T) {
	history := trainingHistory("SPY", 200)
	set := setFromCloses(t, "SPY", make60Closes())

	run := func() map[int][]domain.Signal {
		s, err := NewMLPredictor(mustValidate(t, MLPredictorSchema, map[string]any{
			"seed":   7,
			"epochs": 10,
		}))
		if err != nil {
			t.Fatalf("NewMLPredictor: %v", err)
		}
		if err := s.(*MLPredictor).Fit(history); err != nil {
			t.Fatalf("Fit: %v", err)
		}
		return evaluateAll(t, s, set)
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("signal bars differ: %d vs %d", len(a), len(b))
	}
	for bar, sigs := range a {
		other, ok := b[bar]
		if !ok || len(sigs) != len(other) {
			t.Fatalf("signals at bar %d differ", bar)
		}
		for i := range sigs {
			if sigs[i] != other[i] {
				t.Errorf("signal %d at bar %d differs: %+v vs %+v", i, bar, sigs[i], other[i])
			}
		}
	}
}

func TestMLPredictorFitTooShort(t *testing.T) {
	s, err := NewMLPredictor(mustValidate(t, MLPredictorSchema, nil))
	if err != nil {
		t.Fatalf("NewMLPredictor: %v", err)
	}
	short := map[string][]domain.Bar{"SPY": barsFromCloses("SPY", []float64{1, 2, 3})}
	if err := s.(*MLPredictor).Fit(short); err == nil {
		t.Error("Fit on 3 bars should fail")
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func mustValidate(t *testing.T, schema strategy.ParamSchema, raw map[string]any) strategy.Params {
	t.Helper()
	p, err := schema.Validate("test", raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return p
}

func make60Closes() []float64 {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/5)
	}
	return closes
}
