package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/market"
)

func TestTwoPoleEntries(t *testing.T) {
	s := NewTwoPoleMomentum()

	long := s.Evaluate(nil, market.Features{TPCross: 1, EMA50Slope: 0.5, ATR14: 1, TPHist: 0.5, ADX14: 25}, Context{})
	assert.Equal(t, broker.SideLong, long.Side)
	assert.Greater(t, long.Confidence, 0.0)
	assert.LessOrEqual(t, long.Confidence, 1.0)

	short := s.Evaluate(nil, market.Features{TPCross: -1, EMA50Slope: -0.5, ATR14: 1, TPHist: -0.5, ADX14: 25}, Context{})
	assert.Equal(t, broker.SideShort, short.Side)

	// Cross against the slope stays flat.
	flat := s.Evaluate(nil, market.Features{TPCross: 1, EMA50Slope: -0.5}, Context{})
	assert.Equal(t, broker.SideFlat, flat.Side)
	assert.False(t, flat.HasTag(TagExit))
}

func TestTwoPoleConfidenceFormula(t *testing.T) {
	s := NewTwoPoleMomentum()
	// hist/ATR = 1 (capped), ADX/50 = 1 (capped): 0.25+0.45+0.30 = 1.0
	sig := s.Evaluate(nil, market.Features{TPCross: 1, EMA50Slope: 1, ATR14: 1, TPHist: 5, ADX14: 80}, Context{})
	assert.InDelta(t, 1.0, sig.Confidence, 1e-12)

	// hist/ATR = 0, ADX = 0: floor of 0.25.
	sig = s.Evaluate(nil, market.Features{TPCross: 1, EMA50Slope: 1, ATR14: 1, TPHist: 0, ADX14: 0}, Context{})
	assert.InDelta(t, 0.25, sig.Confidence, 1e-12)
}

func TestTwoPoleExitOnOppositeCross(t *testing.T) {
	s := NewTwoPoleMomentum()
	pos := &broker.Position{Side: broker.SideLong}

	sig := s.Evaluate(nil, market.Features{TPCross: -1, EMA50Slope: 1, ATR14: 1, TPHist: -0.5, ADX14: 25}, Context{Position: pos})
	assert.Equal(t, broker.SideFlat, sig.Side)
	assert.True(t, sig.HasTag(TagExit))
	// Exits carry the same confidence formula as entries.
	assert.InDelta(t, 0.625, sig.Confidence, 1e-12)

	// Same-direction cross while holding does not exit.
	sig = s.Evaluate(nil, market.Features{TPCross: 1, EMA50Slope: 1}, Context{Position: pos})
	assert.False(t, sig.HasTag(TagExit))
}

func TestMeanReversionThresholds(t *testing.T) {
	s := NewRangeMeanReversion()

	long := s.Evaluate(nil, market.Features{RSI14: 20}, Context{})
	assert.Equal(t, broker.SideLong, long.Side)
	assert.InDelta(t, 0.5, long.Confidence, 1e-12)

	short := s.Evaluate(nil, market.Features{RSI14: 85}, Context{})
	assert.Equal(t, broker.SideShort, short.Side)
	assert.InDelta(t, 0.75, short.Confidence, 1e-12)

	// Deep extremes clamp at 1.
	deep := s.Evaluate(nil, market.Features{RSI14: 2}, Context{})
	assert.InDelta(t, 1.0, deep.Confidence, 1e-12)

	flat := s.Evaluate(nil, market.Features{RSI14: 50}, Context{})
	assert.Equal(t, broker.SideFlat, flat.Side)
	assert.False(t, flat.HasTag(TagExit))
}

func TestMeanReversionMidlineExit(t *testing.T) {
	s := NewRangeMeanReversion()

	sig := s.Evaluate(nil, market.Features{RSI14: 55}, Context{Position: &broker.Position{Side: broker.SideLong}})
	assert.True(t, sig.HasTag(TagExit))
	assert.InDelta(t, 0.25, sig.Confidence, 1e-12)

	sig = s.Evaluate(nil, market.Features{RSI14: 45}, Context{Position: &broker.Position{Side: broker.SideShort}})
	assert.True(t, sig.HasTag(TagExit))
	assert.InDelta(t, 0.25, sig.Confidence, 1e-12)

	// Holding long below the midline keeps the position.
	sig = s.Evaluate(nil, market.Features{RSI14: 45}, Context{Position: &broker.Position{Side: broker.SideLong}})
	assert.False(t, sig.HasTag(TagExit))
	assert.Equal(t, broker.SideFlat, sig.Side)
}

func selectorConfig(mode string) Config {
	cfg := Config{Mode: mode, ManualActive: "two_pole_momentum"}
	cfg.RuleBased.ADXTrending = 25
	cfg.RuleBased.ADXRanging = 18
	return cfg
}

func TestSelectorManual(t *testing.T) {
	sel := NewSelector(selectorConfig("manual"))
	got := sel.Select(market.Features{ADX14: 10})
	require.NotNil(t, got.Strategy)
	assert.Equal(t, "two_pole_momentum", got.Name)

	bad := selectorConfig("manual")
	bad.ManualActive = "bogus"
	got = NewSelector(bad).Select(market.Features{})
	assert.Nil(t, got.Strategy)
	assert.Equal(t, NoStrategy, got.Name)
}

func TestSelectorRuleBased(t *testing.T) {
	sel := NewSelector(selectorConfig("rule_based"))

	trending := sel.Select(market.Features{ADX14: 30})
	require.NotNil(t, trending.Strategy)
	assert.Equal(t, "two_pole_momentum", trending.Name)

	ranging := sel.Select(market.Features{ADX14: 12})
	require.NotNil(t, ranging.Strategy)
	assert.Equal(t, "range_mean_reversion", ranging.Name)

	mid := sel.Select(market.Features{ADX14: 21})
	assert.Nil(t, mid.Strategy)
	assert.Equal(t, NoStrategy, mid.Name)
	assert.Contains(t, mid.Reason, "mid-zone")
}
