// Package market holds the candle and feature types shared by the
// broker adapters, the ranker, and the strategies.
package market

import "time"

// Candle is a single OHLC bar. Time is the bar open in UTC.
type Candle struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high column.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// PercentReturns computes bar-over-bar percent changes of close.
// The result has len(candles)-1 entries; bars with a zero previous
// close produce a zero return.
func PercentReturns(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev != 0 {
			out[i-1] = candles[i].Close/prev - 1
		}
	}
	return out
}

// TailReturns returns at most window trailing percent returns.
func TailReturns(candles []Candle, window int) []float64 {
	rets := PercentReturns(candles)
	if len(rets) > window {
		rets = rets[len(rets)-window:]
	}
	return rets
}
