// Package indicator provides pure technical-indicator functions over price
// slices. Every function returns output aligned to the input length, with
// NaN filling the warmup prefix before the indicator has enough data. Inputs
// are never mutated and no state is shared between calls.
package indicator

import "math"

// SMA computes the simple moving average over the last period points.
func SMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		if i >= period {
			sum -= x[i-period]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA computes the exponential moving average with smoothing 2/(period+1),
// seeded with SMA(period) at index period-1.
func EMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	if len(x) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	k := 2.0 / float64(period+1)
	var seed float64
	for i := 0; i < period; i++ {
		seed += x[i]
		if i < period-1 {
			out[i] = math.NaN()
		}
	}
	out[period-1] = seed / float64(period)
	for i := period; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RollingStd computes the rolling population standard deviation over period.
func RollingStd(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum, sum2 float64
	for i := range x {
		sum += x[i]
		sum2 += x[i] * x[i]
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		if i >= period {
			sum -= x[i-period]
			sum2 -= x[i-period] * x[i-period]
		}
		m := sum / float64(period)
		v := sum2/float64(period) - m*m
		if v < 0 {
			v = 0 // numerical noise on near-constant inputs
		}
		out[i] = math.Sqrt(v)
	}
	return out
}

// Bollinger computes Bollinger Bands: the middle band is SMA(period), the
// upper and lower bands are numStd rolling standard deviations away.
func Bollinger(x []float64, period int, numStd float64) (middle, upper, lower []float64) {
	middle = SMA(x, period)
	std := RollingStd(x, period)
	upper = make([]float64, len(x))
	lower = make([]float64, len(x))
	for i := range x {
		upper[i] = middle[i] + numStd*std[i]
		lower[i] = middle[i] - numStd*std[i]
	}
	return middle, upper, lower
}

// RSI computes the Wilder relative strength index over period. The first
// valid value is at index period; gains and losses are smoothed with
// Wilder's recursive average after the initial seed.
func RSI(x []float64, period int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(x) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR computes the average true range over period using Wilder smoothing.
// highs, lows, and closes must be the same length.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || n <= period {
		return out
	}

	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var seed float64
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	out[period] = seed / float64(period)
	p := float64(period)
	for i := period + 1; i < n; i++ {
		out[i] = (out[i-1]*(p-1) + tr[i]) / p
	}
	return out
}

// MACD computes the moving average convergence divergence: the MACD line
// (EMA(fast) - EMA(slow)), its EMA(signal) line, and the histogram
// (line - signal).
func MACD(x []float64, fast, slow, signal int) (line, signalLine, histogram []float64) {
	emaFast := EMA(x, fast)
	emaSlow := EMA(x, slow)
	n := len(x)

	line = make([]float64, n)
	for i := 0; i < n; i++ {
		line[i] = emaFast[i] - emaSlow[i]
	}

	// The signal line smooths only the valid suffix of the MACD line.
	signalLine = make([]float64, n)
	histogram = make([]float64, n)
	for i := range signalLine {
		signalLine[i] = math.NaN()
		histogram[i] = math.NaN()
	}
	start := slow - 1
	if start < 0 || start >= n {
		return line, signalLine, histogram
	}
	smoothed := EMA(line[start:], signal)
	for i, v := range smoothed {
		signalLine[start+i] = v
		histogram[start+i] = line[start+i] - v
	}
	return line, signalLine, histogram
}

// Stochastic computes the stochastic oscillator: %K over kPeriod and its
// SMA(dPeriod) as %D.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d []float64) {
	n := len(closes)
	k = make([]float64, n)
	for i := range k {
		k[i] = math.NaN()
	}
	d = make([]float64, n)
	for i := range d {
		d[i] = math.NaN()
	}
	if kPeriod <= 0 || n < kPeriod {
		return k, d
	}

	for i := kPeriod - 1; i < n; i++ {
		hh := highs[i]
		ll := lows[i]
		for j := i - kPeriod + 1; j < i; j++ {
			hh = math.Max(hh, highs[j])
			ll = math.Min(ll, lows[j])
		}
		if hh == ll {
			k[i] = 50
			continue
		}
		k[i] = 100 * (closes[i] - ll) / (hh - ll)
	}

	// %D smooths only the valid suffix of %K.
	start := kPeriod - 1
	smoothed := SMA(k[start:], dPeriod)
	for i, v := range smoothed {
		d[start+i] = v
	}
	return k, d
}
