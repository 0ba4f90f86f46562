package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSMA(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	got := SMA(x, 3)

	if len(got) != len(x) {
		t.Fatalf("len = %d, want %d", len(got), len(x))
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("got[%d] = %v, want NaN during warmup", i, got[i])
		}
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(got[i+2], w, 1e-9) {
			t.Errorf("got[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestSMAInvalidPeriod(t *testing.T) {
	if got := SMA([]float64{1, 2, 3}, 0); got != nil {
		t.Errorf("SMA with period 0 = %v, want nil", got)
	}
}

func TestEMASeedAndRecursion(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	got := EMA(x, 3)

	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Error("expected NaN warmup before seed index")
	}
	// Seed at index 2 is SMA(3) = 2.
	if !almostEqual(got[2], 2, 1e-9) {
		t.Errorf("seed = %v, want 2", got[2])
	}
	// k = 2/(3+1) = 0.5; next = (4-2)*0.5 + 2 = 3.
	if !almostEqual(got[3], 3, 1e-9) {
		t.Errorf("got[3] = %v, want 3", got[3])
	}
	if !almostEqual(got[4], 4, 1e-9) {
		t.Errorf("got[4] = %v, want 4", got[4])
	}
}

func TestEMAInputShorterThanPeriod(t *testing.T) {
	got := EMA([]float64{1, 2}, 5)
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("got[%d] = %v, want NaN", i, v)
		}
	}
}

func TestRollingStdConstantSeries(t *testing.T) {
	x := []float64{5, 5, 5, 5, 5}
	got := RollingStd(x, 3)
	for i := 2; i < len(got); i++ {
		if got[i] != 0 {
			t.Errorf("got[%d] = %v, want 0 for constant input", i, got[i])
		}
	}
}

func TestBollingerBandsOrdering(t *testing.T) {
	x := []float64{10, 11, 9, 12, 10, 13, 11, 14, 12, 15}
	middle, upper, lower := Bollinger(x, 5, 2)

	for i := 4; i < len(x); i++ {
		if !(lower[i] <= middle[i] && middle[i] <= upper[i]) {
			t.Errorf("band ordering violated at %d: lower=%v middle=%v upper=%v",
				i, lower[i], middle[i], upper[i])
		}
	}
}

func TestRSIExtremes(t *testing.T) {
	// Strictly rising series: only gains, RSI pinned at 100.
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	got := RSI(up, 3)
	for i := 0; i < 3; i++ {
		if !math.IsNaN(got[i]) {
			t.Errorf("got[%d] = %v, want NaN during warmup", i, got[i])
		}
	}
	for i := 3; i < len(got); i++ {
		if !almostEqual(got[i], 100, 1e-9) {
			t.Errorf("rising RSI[%d] = %v, want 100", i, got[i])
		}
	}

	// Strictly falling series: only losses, RSI pinned at 0.
	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	got = RSI(down, 3)
	for i := 3; i < len(got); i++ {
		if !almostEqual(got[i], 0, 1e-9) {
			t.Errorf("falling RSI[%d] = %v, want 0", i, got[i])
		}
	}
}

func TestRSIFlatSeries(t *testing.T) {
	flat := []float64{5, 5, 5, 5, 5, 5}
	got := RSI(flat, 3)
	for i := 3; i < len(got); i++ {
		if !almostEqual(got[i], 50, 1e-9) {
			t.Errorf("flat RSI[%d] = %v, want 50", i, got[i])
		}
	}
}

func TestATR(t *testing.T) {
	highs := []float64{12, 13, 14, 13, 15}
	lows := []float64{10, 11, 12, 11, 13}
	closes := []float64{11, 12, 13, 12, 14}

	got := ATR(highs, lows, closes, 3)
	if !math.IsNaN(got[2]) {
		t.Error("expected NaN before the first full period")
	}
	// TR[1..3] = 2, 2, 2 -> seed ATR[3] = 2.
	if !almostEqual(got[3], 2, 1e-9) {
		t.Errorf("ATR[3] = %v, want 2", got[3])
	}
	// TR[4] = max(2, |15-12|, |13-12|) = 3 -> (2*2+3)/3.
	if !almostEqual(got[4], 7.0/3.0, 1e-9) {
		t.Errorf("ATR[4] = %v, want %v", got[4], 7.0/3.0)
	}
}

func TestMACDHistogramIsLineMinusSignal(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = 100 + float64(i) + 3*math.Sin(float64(i)/4)
	}
	line, signal, hist := MACD(x, 12, 26, 9)

	for i := range x {
		if math.IsNaN(hist[i]) {
			continue
		}
		if !almostEqual(hist[i], line[i]-signal[i], 1e-9) {
			t.Errorf("hist[%d] = %v, want %v", i, hist[i], line[i]-signal[i])
		}
	}
}

func TestStochasticBounds(t *testing.T) {
	highs := []float64{12, 13, 14, 15, 14, 13, 15, 16, 15, 14}
	lows := []float64{10, 11, 12, 13, 12, 11, 13, 14, 13, 12}
	closes := []float64{11, 12, 13, 14, 13, 12, 14, 15, 14, 13}

	k, d := Stochastic(highs, lows, closes, 5, 3)
	for i := range k {
		if math.IsNaN(k[i]) {
			continue
		}
		if k[i] < 0 || k[i] > 100 {
			t.Errorf("%%K[%d] = %v out of [0,100]", i, k[i])
		}
	}
	sawValid := false
	for i := range d {
		if !math.IsNaN(d[i]) {
			sawValid = true
			if d[i] < 0 || d[i] > 100 {
				t.Errorf("%%D[%d] = %v out of [0,100]", i, d[i])
			}
		}
	}
	if !sawValid {
		t.Error("expected at least one valid %D value")
	}
}

func TestIndicatorsDoNotMutateInput(t *testing.T) {
	x := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	orig := make([]float64, len(x))
	copy(orig, x)

	SMA(x, 3)
	EMA(x, 3)
	RollingStd(x, 3)
	RSI(x, 3)
	Bollinger(x, 3, 2)
	MACD(x, 2, 4, 3)

	for i := range x {
		if x[i] != orig[i] {
			t.Fatalf("input mutated at %d: %v != %v", i, x[i], orig[i])
		}
	}
}
