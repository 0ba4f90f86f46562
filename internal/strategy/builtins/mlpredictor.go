package builtins

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"vela/internal/domain"
	"vela/internal/indicator"
	"vela/internal/series"
	"vela/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*MLPredictor)(nil)
var _ strategy.Fitter = (*MLPredictor)(nil)

// ErrNotFitted is returned when Evaluate runs before Fit.
var ErrNotFitted = errors.New("ml-predictor: model not fitted; Fit must run on pre-window history first")

// MLPredictorSchema declares the ML predictor strategy's parameters.
var MLPredictorSchema = strategy.ParamSchema{
	"lags":          {Type: strategy.TypeInt, Min: strategy.Bound(1), Max: strategy.Bound(20), Default: 5},
	"horizon":       {Type: strategy.TypeInt, Min: strategy.Bound(1), Max: strategy.Bound(20), Default: 1},
	"hidden_size":   {Type: strategy.TypeInt, Min: strategy.Bound(2), Max: strategy.Bound(64), Default: 8},
	"epochs":        {Type: strategy.TypeInt, Min: strategy.Bound(1), Max: strategy.Bound(1000), Default: 50},
	"learning_rate": {Type: strategy.TypeFloat, Min: strategy.Bound(0.0001), Max: strategy.Bound(1), Default: 0.05},
	"threshold":     {Type: strategy.TypeFloat, Min: strategy.Bound(0.5), Max: strategy.Bound(0.99), Default: 0.6},
	"seed":          {Type: strategy.TypeInt, Min: strategy.Bound(0), Default: 42},
	"position_pct":  {Type: strategy.TypeFloat, Min: strategy.Bound(0.01), Max: strategy.Bound(1), Default: 0.2},
}

// MLPredictor is a single-hidden-layer feed-forward classifier over per-bar
// features (lagged returns, RSI, MACD histogram) predicting the probability
// the close rises over the next horizon bars. Probabilities above threshold
// open a long; probabilities below 1-threshold close it.
//
// Fit must be called with history ending no later than the start of the test
// window. The runner enforces the split; fitting on in-window data would be
// look-ahead. All randomness (weight init, shuffling) comes from the explicit
// seed parameter, so identical inputs always produce identical runs.
type MLPredictor struct {
	lags         int
	horizon      int
	hiddenSize   int
	epochs       int
	learningRate float64
	threshold    float64
	seed         int64
	positionPct  float64

	fitted bool
	w1     [][]float64 // input to hidden
	b1     []float64
	w2     []float64 // hidden to output
	b2     float64

	long map[string]bool
}

// NewMLPredictor constructs the strategy from validated parameters. The model
// starts unfitted; Evaluate fails until Fit has run.
func NewMLPredictor(p strategy.Params) (strategy.Strategy, error) {
	return &MLPredictor{
		lags:         p.Int("lags"),
		horizon:      p.Int("horizon"),
		hiddenSize:   p.Int("hidden_size"),
		epochs:       p.Int("epochs"),
		learningRate: p.Float("learning_rate"),
		threshold:    p.Float("threshold"),
		seed:         int64(p.Int("seed")),
		positionPct:  p.Float("position_pct"),
		long:         make(map[string]bool),
	}, nil
}

// Name returns "ml-predictor".
func (s *MLPredictor) Name() string { return "ml-predictor" }

// featureDim is lags lagged returns plus RSI and MACD histogram.
func (s *MLPredictor) featureDim() int { return s.lags + 2 }

const (
	featRSIPeriod  = 14
	featMACDFast   = 12
	featMACDSlow   = 26
	featMACDSignal = 9
)

// minHistory is the shortest close series from which one feature row can be
// computed.
func (s *MLPredictor) minHistory() int {
	n := s.lags + 1
	if featRSIPeriod+1 > n {
		n = featRSIPeriod + 1
	}
	if featMACDSlow+featMACDSignal > n {
		n = featMACDSlow + featMACDSignal
	}
	return n
}

// features computes the feature row for the last bar of closes, or false if
// history is too short.
func (s *MLPredictor) features(closes []float64, at int) ([]float64, bool) {
	if at+1 < s.minHistory() {
		return nil, false
	}
	row := make([]float64, 0, s.featureDim())
	for l := 0; l < s.lags; l++ {
		i := at - l
		row = append(row, closes[i]/closes[i-1]-1)
	}

	rsi := indicator.RSI(closes[:at+1], featRSIPeriod)
	_, _, hist := indicator.MACD(closes[:at+1], featMACDFast, featMACDSlow, featMACDSignal)
	if math.IsNaN(rsi[at]) || math.IsNaN(hist[at]) {
		return nil, false
	}
	row = append(row, rsi[at]/100-0.5)         // centered around 0
	row = append(row, hist[at]/closes[at]*100) // histogram as % of price
	return row, true
}

// Fit trains the network on the given pre-window history. Bars for every
// symbol are pooled into one dataset; the label is whether the close rose
// over the next horizon bars.
func (s *MLPredictor) Fit(history map[string][]domain.Bar) error {
	// Symbols in sorted order so the sample sequence (and therefore the SGD
	// trajectory) is identical across runs.
	symbols := make([]string, 0, len(history))
	for sym := range history {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var xs [][]float64
	var ys []float64
	for _, sym := range symbols {
		bars := history[sym]
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}
		for at := s.minHistory() - 1; at+s.horizon < len(closes); at++ {
			row, ok := s.features(closes, at)
			if !ok {
				continue
			}
			label := 0.0
			if closes[at+s.horizon] > closes[at] {
				label = 1.0
			}
			xs = append(xs, row)
			ys = append(ys, label)
		}
	}
	if len(xs) == 0 {
		return errors.New("ml-predictor: training history too short to build any samples")
	}

	rng := rand.New(rand.NewSource(s.seed))
	dim := s.featureDim()

	s.w1 = make([][]float64, s.hiddenSize)
	s.b1 = make([]float64, s.hiddenSize)
	for h := 0; h < s.hiddenSize; h++ {
		s.w1[h] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			s.w1[h][d] = (rng.Float64() - 0.5) * 0.1
		}
	}
	s.w2 = make([]float64, s.hiddenSize)
	for h := 0; h < s.hiddenSize; h++ {
		s.w2[h] = (rng.Float64() - 0.5) * 0.1
	}
	s.b2 = 0

	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	for epoch := 0; epoch < s.epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, idx := range order {
			s.trainStep(xs[idx], ys[idx])
		}
	}

	s.fitted = true
	return nil
}

// trainStep runs one SGD update: forward pass, output delta, backprop into
// both layers.
func (s *MLPredictor) trainStep(x []float64, y float64) {
	hidden, out := s.forward(x)
	dOut := out - y // d(cross-entropy)/d(logit) for sigmoid output

	for h := 0; h < s.hiddenSize; h++ {
		dHidden := dOut * s.w2[h] * hidden[h] * (1 - hidden[h])
		s.w2[h] -= s.learningRate * dOut * hidden[h]
		for d := range x {
			s.w1[h][d] -= s.learningRate * dHidden * x[d]
		}
		s.b1[h] -= s.learningRate * dHidden
	}
	s.b2 -= s.learningRate * dOut
}

func (s *MLPredictor) forward(x []float64) (hidden []float64, out float64) {
	hidden = make([]float64, s.hiddenSize)
	for h := 0; h < s.hiddenSize; h++ {
		sum := s.b1[h]
		for d := range x {
			sum += s.w1[h][d] * x[d]
		}
		hidden[h] = sigmoid(sum)
	}
	sum := s.b2
	for h := 0; h < s.hiddenSize; h++ {
		sum += s.w2[h] * hidden[h]
	}
	return hidden, sigmoid(sum)
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Evaluate predicts P(up) for each symbol's latest bar and emits entry/exit
// signals when the probability clears the threshold.
func (s *MLPredictor) Evaluate(_ context.Context, w *series.Window) ([]domain.Signal, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}

	var signals []domain.Signal
	for _, sym := range w.Symbols() {
		if _, ok := w.Current(sym); !ok {
			continue
		}
		closes := w.Closes(sym)
		row, ok := s.features(closes, len(closes)-1)
		if !ok {
			continue
		}
		_, p := s.forward(row)

		switch {
		case !s.long[sym] && p > s.threshold:
			s.long[sym] = true
			signals = append(signals, domain.Signal{
				Symbol:   sym,
				Action:   domain.ActionBuy,
				Size:     s.positionPct,
				SizeMode: domain.SizePortfolioPct,
				Reason:   fmt.Sprintf("p(up)=%.3f above threshold", p),
			})
		case s.long[sym] && p < 1-s.threshold:
			s.long[sym] = false
			signals = append(signals, domain.Signal{
				Symbol:   sym,
				Action:   domain.ActionSell,
				Size:     0,
				SizeMode: domain.SizeShares,
				Reason:   fmt.Sprintf("p(up)=%.3f below exit threshold", p),
			})
		}
	}
	return signals, nil
}
