package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticCandles(n int) []Candle {
	out := make([]Candle, n)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		// The 20-bar drift (+2.0) outweighs the sine swing (≤1.0), so
		// Ret20 stays positive at any tail.
		base := 100 + 0.1*float64(i) + 0.5*math.Sin(float64(i)/7)
		out[i] = Candle{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  base - 0.2,
			High:  base + 0.8,
			Low:   base - 0.8,
			Close: base,
		}
	}
	return out
}

func TestComputeFeatures(t *testing.T) {
	candles := syntheticCandles(300)
	f, ok := ComputeFeatures(candles)
	require.True(t, ok)

	assert.Equal(t, candles[len(candles)-1].Close, f.Close)
	assert.Greater(t, f.ATR14, 0.0)
	assert.InDelta(t, f.ATR14/f.Close, f.ATR14Pct, 1e-12)
	assert.GreaterOrEqual(t, f.RSI14, 0.0)
	assert.LessOrEqual(t, f.RSI14, 100.0)
	assert.Contains(t, []int{-1, 0, 1}, f.TPCross)
	// Drifting series has a positive 20-bar return.
	assert.Greater(t, f.Ret20, 0.0)
}

func TestComputeFeaturesTooShort(t *testing.T) {
	_, ok := ComputeFeatures(syntheticCandles(10))
	assert.False(t, ok)
}

func TestPercentReturns(t *testing.T) {
	candles := []Candle{{Close: 100}, {Close: 110}, {Close: 99}}
	rets := PercentReturns(candles)
	require.Len(t, rets, 2)
	assert.InDelta(t, 0.10, rets[0], 1e-12)
	assert.InDelta(t, -0.10, rets[1], 1e-12)
}

func TestTailReturnsWindow(t *testing.T) {
	candles := syntheticCandles(50)
	rets := TailReturns(candles, 20)
	assert.Len(t, rets, 20)
}
