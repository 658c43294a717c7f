package market

import (
	"github.com/calebmo/candlebot/internal/indicators"
	"github.com/calebmo/candlebot/internal/util"
)

// Indicator parameters fixed by the feature contract.
const (
	atrPeriod      = 14
	rsiPeriod      = 14
	adxPeriod      = 14
	emaSpan        = 50
	twoPolePeriod  = 20
	tpSignalSpan   = 9
	retLookback    = 20
	minFeatureBars = 30
)

// Features is the per-symbol feature bundle computed on the closed bar.
// Values that cannot be computed are zero.
type Features struct {
	Close      float64 `json:"close"`
	ATR14      float64 `json:"atr14"`
	ATR14Pct   float64 `json:"atr14_pct"`
	ADX14      float64 `json:"adx14"`
	PlusDI14   float64 `json:"plus_di14"`
	MinusDI14  float64 `json:"minus_di14"`
	RSI14      float64 `json:"rsi14"`
	EMA50      float64 `json:"ema50"`
	EMA50Slope float64 `json:"ema50_slope"`
	TPOsc      float64 `json:"tp_osc"`
	TPSignal   float64 `json:"tp_signal"`
	TPHist     float64 `json:"tp_hist"`
	TPCross    int     `json:"tp_cross"`
	Ret20      float64 `json:"ret20"`
}

// ComputeFeatures evaluates the feature bundle on the last bar of the
// series. Callers pass closed bars only; the open bar must already be
// trimmed. Returns false when the series is too short.
func ComputeFeatures(candles []Candle) (Features, bool) {
	if len(candles) < minFeatureBars {
		return Features{}, false
	}
	high := Highs(candles)
	low := Lows(candles)
	close := Closes(candles)
	n := len(close)

	atr := indicators.ATR(high, low, close, atrPeriod)
	adx := indicators.ADX(high, low, close, adxPeriod)
	rsi := indicators.RSI(close, rsiPeriod)
	ema := indicators.EMA(close, emaSpan)
	tp := indicators.TwoPoleOscillator(close, twoPolePeriod, tpSignalSpan)

	f := Features{
		Close:     close[n-1],
		ATR14:     atr[n-1],
		ADX14:     adx.ADX[n-1],
		PlusDI14:  adx.PlusDI[n-1],
		MinusDI14: adx.MinusDI[n-1],
		RSI14:     rsi[n-1],
		EMA50:     ema[n-1],
		TPOsc:     tp.Osc[n-1],
		TPSignal:  tp.Signal[n-1],
		TPHist:    tp.Hist[n-1],
		TPCross:   tp.Cross[n-1],
	}
	if close[n-1] != 0 {
		f.ATR14Pct = f.ATR14 / close[n-1]
	}
	f.EMA50Slope = ema[n-1] - ema[n-2]
	if n > retLookback {
		base := close[n-1-retLookback]
		if base != 0 {
			f.Ret20 = close[n-1]/base - 1
		}
	}
	sanitize(&f)
	return f, true
}

// sanitize zeroes non-finite values so the bundle always serialises.
func sanitize(f *Features) {
	for _, p := range []*float64{
		&f.Close, &f.ATR14, &f.ATR14Pct, &f.ADX14, &f.PlusDI14,
		&f.MinusDI14, &f.RSI14, &f.EMA50, &f.EMA50Slope,
		&f.TPOsc, &f.TPSignal, &f.TPHist, &f.Ret20,
	} {
		if !util.IsFinite(*p) {
			*p = 0
		}
	}
}
