package strategy

import (
	"fmt"
	"math"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/market"
	"github.com/calebmo/candlebot/internal/util"
)

// TwoPoleMomentum trades zero crossings of the two-pole oscillator
// histogram, gated by the EMA50 slope.
type TwoPoleMomentum struct{}

// NewTwoPoleMomentum builds the momentum strategy.
func NewTwoPoleMomentum() *TwoPoleMomentum { return &TwoPoleMomentum{} }

func (s *TwoPoleMomentum) Name() string { return "two_pole_momentum" }

func (s *TwoPoleMomentum) Evaluate(_ []market.Candle, f market.Features, ctx Context) Signal {
	conf := s.confidence(f)

	// Exit first: an opposite histogram cross neutralises the holding.
	if p := ctx.Position; p != nil {
		if (p.Side == broker.SideLong && f.TPCross < 0) ||
			(p.Side == broker.SideShort && f.TPCross > 0) {
			return Exit(conf, fmt.Sprintf("histogram crossed against %s position", p.Side))
		}
	}
	switch {
	case f.TPCross > 0 && f.EMA50Slope > 0:
		return Signal{
			Side:       broker.SideLong,
			Confidence: conf,
			Reason:     "histogram crossed up with rising EMA50",
		}
	case f.TPCross < 0 && f.EMA50Slope < 0:
		return Signal{
			Side:       broker.SideShort,
			Confidence: conf,
			Reason:     "histogram crossed down with falling EMA50",
		}
	}
	return Flat("no histogram cross aligned with trend")
}

func (s *TwoPoleMomentum) confidence(f market.Features) float64 {
	histToATR := 0.0
	if f.ATR14 > 0 {
		histToATR = math.Min(math.Abs(f.TPHist)/f.ATR14, 1)
	}
	adx := math.Min(f.ADX14/50, 1)
	return util.Clamp01(0.25 + 0.45*histToATR + 0.30*adx)
}
