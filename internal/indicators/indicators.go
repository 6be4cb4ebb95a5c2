// Package indicators computes technical analysis series over closing prices
// and volumes. Values are float64: these feed strategy signals and reports,
// never the ledger.
package indicators

import "math"

// SMA returns the simple moving average with the given window. Entries
// before a full window are NaN.
func SMA(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 || len(values) < window {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// EMA returns the exponential moving average with span-based smoothing
// (alpha = 2/(span+1)), seeded from the first value.
func EMA(values []float64, span int) []float64 {
	out := nanSlice(len(values))
	if span <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema = alpha*values[i] + (1-alpha)*ema
		out[i] = ema
	}
	return out
}

// RSI returns the relative strength index over the given period, using
// simple rolling means of gains and losses. 100 means no losses in the
// window, 0 means no gains.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i < period {
			continue
		}
		if lossSum == 0 {
			out[i] = 100
			continue
		}
		rs := gainSum / lossSum
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACDResult holds the three MACD series.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD returns the moving average convergence divergence with the given
// fast/slow/signal spans (12/26/9 classically).
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMA(line, signal)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - signalLine[i]
	}
	return MACDResult{Line: line, Signal: signalLine, Histogram: hist}
}

// BollingerResult holds the band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns the bands at stdDev standard deviations around the
// window SMA. Entries before a full window are NaN.
func Bollinger(closes []float64, window int, stdDev float64) BollingerResult {
	middle := SMA(closes, window)
	upper := nanSlice(len(closes))
	lower := nanSlice(len(closes))
	for i := window - 1; i < len(closes); i++ {
		var sq float64
		for j := i - window + 1; j <= i; j++ {
			d := closes[j] - middle[i]
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(window))
		upper[i] = middle[i] + stdDev*sd
		lower[i] = middle[i] - stdDev*sd
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}

// BollingerPosition returns where each close sits inside its band, 0 at the
// lower band and 1 at the upper. Degenerate (zero-width) bands yield 0.5.
func BollingerPosition(closes []float64, window int, stdDev float64) []float64 {
	bands := Bollinger(closes, window, stdDev)
	out := nanSlice(len(closes))
	for i := range closes {
		width := bands.Upper[i] - bands.Lower[i]
		if math.IsNaN(width) {
			continue
		}
		if width == 0 {
			out[i] = 0.5
			continue
		}
		out[i] = (closes[i] - bands.Lower[i]) / width
	}
	return out
}

// VolumeRatio returns each session's volume relative to its window SMA.
// A value above 1 marks heavier-than-usual turnover.
func VolumeRatio(volumes []int64, window int) []float64 {
	values := make([]float64, len(volumes))
	for i, v := range volumes {
		values[i] = float64(v)
	}
	sma := SMA(values, window)
	out := nanSlice(len(values))
	for i := range values {
		if math.IsNaN(sma[i]) || sma[i] == 0 {
			continue
		}
		out[i] = values[i] / sma[i]
	}
	return out
}

// Last returns the final non-NaN value of a series, or NaN when the series
// never warmed up.
func Last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return math.NaN()
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
