package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	sma := SMA(values, 3)

	assert.True(t, math.IsNaN(sma[0]))
	assert.True(t, math.IsNaN(sma[1]))
	assert.InDelta(t, 2, sma[2], 1e-9)
	assert.InDelta(t, 3, sma[3], 1e-9)
	assert.InDelta(t, 4, sma[4], 1e-9)
}

func TestEMAConvergesToConstant(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = 42
	}
	ema := EMA(values, 12)
	assert.InDelta(t, 42, ema[len(ema)-1], 1e-9)
}

func TestRSIBounds(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(i)
	}
	rsi := RSI(rising, 14)
	// monotone gains: no losses in any window
	assert.InDelta(t, 100, Last(rsi), 1e-9)

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	rsi = RSI(falling, 14)
	assert.InDelta(t, 0, Last(rsi), 1e-9)
}

func TestRSIMixedStaysInRange(t *testing.T) {
	values := []float64{10, 11, 10.5, 11.2, 10.8, 11.5, 11.1, 12, 11.7, 12.3, 12, 12.8, 12.5, 13, 12.7, 13.4}
	rsi := RSI(values, 14)
	last := Last(rsi)
	require.False(t, math.IsNaN(last))
	assert.Greater(t, last, 0.0)
	assert.Less(t, last, 100.0)
	// net gains dominate in this series
	assert.Greater(t, last, 50.0)
}

func TestRSIShortSeriesIsNaN(t *testing.T) {
	rsi := RSI([]float64{1, 2, 3}, 14)
	assert.True(t, math.IsNaN(Last(rsi)))
}

func TestMACDSignOnTrend(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)*2
	}
	macd := MACD(values, 12, 26, 9)
	// sustained uptrend: fast EMA above slow
	assert.Greater(t, macd.Line[len(macd.Line)-1], 0.0)
	require.Len(t, macd.Histogram, len(values))
}

func TestBollingerConstantSeries(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 50
	}
	bands := Bollinger(values, 20, 2)
	last := len(values) - 1
	assert.InDelta(t, 50, bands.Middle[last], 1e-9)
	assert.InDelta(t, 50, bands.Upper[last], 1e-9)
	assert.InDelta(t, 50, bands.Lower[last], 1e-9)

	pos := BollingerPosition(values, 20, 2)
	assert.InDelta(t, 0.5, pos[last], 1e-9)
}

func TestBollingerPositionTracksExtremes(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 50
	}
	values[len(values)-1] = 60
	pos := BollingerPosition(values, 20, 2)
	// a spike above a flat series sits at the top of the band
	assert.Greater(t, pos[len(values)-1], 0.9)
}

func TestVolumeRatio(t *testing.T) {
	volumes := make([]int64, 25)
	for i := range volumes {
		volumes[i] = 1000
	}
	volumes[len(volumes)-1] = 3000

	ratio := VolumeRatio(volumes, 20)
	last := ratio[len(ratio)-1]
	// window mean is 1100, last volume triple the baseline
	assert.InDelta(t, 3000.0/1100.0, last, 1e-9)
	assert.True(t, math.IsNaN(ratio[5]))
}

func TestLastAllNaN(t *testing.T) {
	assert.True(t, math.IsNaN(Last(nanSlice(5))))
	assert.True(t, math.IsNaN(Last(nil)))
}
