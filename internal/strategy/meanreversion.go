package strategy

import (
	"fmt"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/market"
	"github.com/calebmo/candlebot/internal/util"
)

// RSI thresholds for the mean reversion entries and the midline exit.
const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
	rsiMidline    = 50.0
)

// RangeMeanReversion fades RSI extremes and exits on the midline.
type RangeMeanReversion struct{}

// NewRangeMeanReversion builds the mean reversion strategy.
func NewRangeMeanReversion() *RangeMeanReversion { return &RangeMeanReversion{} }

func (s *RangeMeanReversion) Name() string { return "range_mean_reversion" }

func (s *RangeMeanReversion) Evaluate(_ []market.Candle, f market.Features, ctx Context) Signal {
	if p := ctx.Position; p != nil {
		if p.Side == broker.SideLong && f.RSI14 >= rsiMidline {
			conf := util.Clamp01((f.RSI14 - rsiMidline) / 20)
			return Exit(conf, fmt.Sprintf("RSI %.1f reached midline against %s position", f.RSI14, p.Side))
		}
		if p.Side == broker.SideShort && f.RSI14 <= rsiMidline {
			conf := util.Clamp01((rsiMidline - f.RSI14) / 20)
			return Exit(conf, fmt.Sprintf("RSI %.1f reached midline against %s position", f.RSI14, p.Side))
		}
		return Flat("holding inside RSI band")
	}

	switch {
	case f.RSI14 <= rsiOversold:
		return Signal{
			Side:       broker.SideLong,
			Confidence: util.Clamp01((rsiOversold - f.RSI14) / 20),
			Reason:     fmt.Sprintf("RSI %.1f oversold", f.RSI14),
		}
	case f.RSI14 >= rsiOverbought:
		return Signal{
			Side:       broker.SideShort,
			Confidence: util.Clamp01((f.RSI14 - rsiOverbought) / 20),
			Reason:     fmt.Sprintf("RSI %.1f overbought", f.RSI14),
		}
	}
	return Flat("RSI inside neutral band")
}
