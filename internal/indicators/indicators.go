// Package indicators implements the deterministic indicator math used by
// the ranker and the strategies: Wilder-smoothed ATR/RSI/ADX, EMA/SMA,
// and the Ehlers 2-pole super smoother with its oscillator.
//
// All functions are pure: same inputs, same outputs, no shared state.
// Recursions are seeded at the first sample, so early values carry seed
// bias that washes out well inside the configured warmup window.
package indicators

import "math"

// RMA computes Wilder's smoothing (EMA with alpha = 1/period),
// seeded at the first value.
func RMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	alpha := 1.0 / float64(period)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// EMA computes the exponential moving average with span semantics
// (alpha = 2/(span+1)), seeded at the first value.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// SMA computes the simple moving average over the trailing window.
// Indices before a full window hold the mean of what is available.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || window <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		n := window
		if i+1 < window {
			n = i + 1
		} else if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// TrueRange returns the per-bar true range. The first bar has no prior
// close, so its range is simply high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		if i == 0 {
			out[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR computes the Wilder-smoothed average true range.
func ATR(high, low, close []float64, period int) []float64 {
	return RMA(TrueRange(high, low, close), period)
}

// RSI computes the Wilder RSI with the standard degenerate-case rules:
// both averages zero yields 50, zero average loss yields 100, zero
// average gain yields 0.
func RSI(close []float64, period int) []float64 {
	out := make([]float64, len(close))
	if len(close) == 0 || period <= 0 {
		return out
	}
	gains := make([]float64, len(close))
	losses := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := RMA(gains, period)
	avgLoss := RMA(losses, period)
	for i := range close {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case g == 0 && l == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		case g == 0:
			out[i] = 0
		default:
			rs := g / l
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// ADXResult bundles the directional movement outputs.
type ADXResult struct {
	PlusDI  []float64
	MinusDI []float64
	ADX     []float64
}

// ADX computes Wilder's +DI, -DI and ADX.
func ADX(high, low, close []float64, period int) ADXResult {
	n := len(close)
	res := ADXResult{
		PlusDI:  make([]float64, n),
		MinusDI: make([]float64, n),
		ADX:     make([]float64, n),
	}
	if n == 0 || period <= 0 {
		return res
	}
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	atr := ATR(high, low, close, period)
	smoothPlus := RMA(plusDM, period)
	smoothMinus := RMA(minusDM, period)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if atr[i] > 0 {
			res.PlusDI[i] = 100 * smoothPlus[i] / atr[i]
			res.MinusDI[i] = 100 * smoothMinus[i] / atr[i]
		}
		sum := res.PlusDI[i] + res.MinusDI[i]
		if sum > 0 {
			dx[i] = 100 * math.Abs(res.PlusDI[i]-res.MinusDI[i]) / sum
		}
	}
	res.ADX = RMA(dx, period)
	return res
}

// SuperSmoother2Pole applies the Ehlers 2-pole super smoother:
//
//	a1 = exp(-1.414*pi/P); b1 = 2*a1*cos(1.414*pi/P)
//	c2 = b1; c3 = -a1*a1; c1 = 1 - c2 - c3
//	y[t] = c1*(x[t]+x[t-1])/2 + c2*y[t-1] + c3*y[t-2]
//
// seeded with y[0]=x[0], y[1]=x[1].
func SuperSmoother2Pole(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 2 {
		copy(out, values)
		return out
	}
	a1 := math.Exp(-1.414 * math.Pi / float64(period))
	b1 := 2 * a1 * math.Cos(1.414*math.Pi/float64(period))
	c2 := b1
	c3 := -a1 * a1
	c1 := 1 - c2 - c3
	out[0] = values[0]
	if len(values) > 1 {
		out[1] = values[1]
	}
	for i := 2; i < len(values); i++ {
		out[i] = c1*(values[i]+values[i-1])/2 + c2*out[i-1] + c3*out[i-2]
	}
	return out
}

// TwoPoleResult holds the oscillator series derived from the super
// smoother: osc = close - smooth, signal = EMA(osc, signalSpan),
// hist = osc - signal, cross in {-1, 0, +1} on hist zero crossings.
type TwoPoleResult struct {
	Smooth []float64
	Osc    []float64
	Signal []float64
	Hist   []float64
	Cross  []int
}

// TwoPoleOscillator computes the two-pole oscillator family for close.
func TwoPoleOscillator(close []float64, period, signalSpan int) TwoPoleResult {
	n := len(close)
	res := TwoPoleResult{
		Smooth: SuperSmoother2Pole(close, period),
		Osc:    make([]float64, n),
		Hist:   make([]float64, n),
		Cross:  make([]int, n),
	}
	for i := 0; i < n; i++ {
		res.Osc[i] = close[i] - res.Smooth[i]
	}
	res.Signal = EMA(res.Osc, signalSpan)
	for i := 0; i < n; i++ {
		res.Hist[i] = res.Osc[i] - res.Signal[i]
	}
	for i := 1; i < n; i++ {
		switch {
		case res.Hist[i] > 0 && res.Hist[i-1] <= 0:
			res.Cross[i] = 1
		case res.Hist[i] < 0 && res.Hist[i-1] >= 0:
			res.Cross[i] = -1
		}
	}
	return res
}
