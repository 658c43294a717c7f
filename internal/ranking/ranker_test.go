package ranking

import (
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/market"
	"github.com/calebmo/candlebot/internal/timeframe"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	candles map[string][]market.Candle
	quotes  map[string]*broker.Quote
}

func (f *fakeFeed) DiscoverSymbols() ([]broker.SymbolMeta, error)       { return nil, nil }
func (f *fakeFeed) SymbolInfo(string) (*broker.SymbolMeta, error)       { return nil, nil }
func (f *fakeFeed) AccountInfo() (*broker.AccountInfo, error)           { return nil, nil }
func (f *fakeFeed) ListPositions() ([]broker.Position, error)           { return nil, nil }
func (f *fakeFeed) ListDeals(_, _ time.Time) ([]broker.Deal, error)     { return nil, nil }
func (f *fakeFeed) PlaceOrder(broker.OrderRequest) (*broker.OrderResult, error) {
	return nil, nil
}
func (f *fakeFeed) ModifyPosition(int64, float64, float64) (bool, error) { return false, nil }
func (f *fakeFeed) Shutdown() error                                      { return nil }

func (f *fakeFeed) Candles(symbol string, _ timeframe.Code, n int) ([]market.Candle, error) {
	cs := f.candles[symbol]
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	return cs, nil
}

func (f *fakeFeed) Quote(symbol string) (*broker.Quote, error) {
	return f.quotes[symbol], nil
}

var _ broker.Broker = (*fakeFeed)(nil)

func waveCandles(n int, base, amp float64, freq float64) []market.Candle {
	out := make([]market.Candle, n)
	start := testNow.Add(-time.Duration(n) * time.Hour)
	for i := 0; i < n; i++ {
		c := base + amp*math.Sin(float64(i)*freq)
		out[i] = market.Candle{
			Time: start.Add(time.Duration(i) * time.Hour),
			Open: c - amp*0.05, High: c + amp*0.1, Low: c - amp*0.1, Close: c,
		}
	}
	return out
}

func testConfig() Config {
	cfg := Config{TopN: 2, MinBarsRequired: 50}
	cfg.Weights.Volatility = 0.3
	cfg.Weights.Trend = 0.3
	cfg.Weights.Momentum = 0.3
	cfg.Weights.Cost = 0.1
	cfg.Filters.MaxSpreadPoints = 50
	cfg.Filters.MaxSpreadToATRRatio = 0.5
	cfg.Filters.MarketOpenRequired = true
	return cfg
}

func fxMeta(name string) broker.SymbolMeta {
	return broker.SymbolMeta{
		Name: name, Class: broker.ClassForex, Point: 0.00001,
		VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
		TickValue: 1, TickSize: 0.00001, TradeAllowed: true,
	}
}

func freshQuote(symbol string, mid float64) *broker.Quote {
	return &broker.Quote{
		Symbol: symbol, Bid: mid - 0.00005, Ask: mid + 0.00005,
		Time: testNow, SpreadPoints: 10,
	}
}

func newTestRanker(t *testing.T, feed *fakeFeed, cfg Config) *Ranker {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	r := New(feed, cfg, timeframe.H1, 200, log)
	r.SetClock(func() time.Time { return testNow })
	return r
}

func TestRankScoresInRange(t *testing.T) {
	feed := &fakeFeed{
		candles: map[string][]market.Candle{
			"EURUSD": waveCandles(200, 1.10, 0.01, 0.2),
			"GBPUSD": waveCandles(200, 1.27, 0.02, 0.3),
			"USDCHF": waveCandles(200, 0.88, 0.005, 0.1),
		},
		quotes: map[string]*broker.Quote{
			"EURUSD": freshQuote("EURUSD", 1.10),
			"GBPUSD": freshQuote("GBPUSD", 1.27),
			"USDCHF": freshQuote("USDCHF", 0.88),
		},
	}
	meta := map[string]broker.SymbolMeta{
		"EURUSD": fxMeta("EURUSD"), "GBPUSD": fxMeta("GBPUSD"), "USDCHF": fxMeta("USDCHF"),
	}

	out := newTestRanker(t, feed, testConfig()).Rank([]string{"EURUSD", "GBPUSD", "USDCHF"}, meta)
	require.Len(t, out.Ranked, 3)
	for _, rs := range out.Ranked {
		assert.GreaterOrEqual(t, rs.Score, 0.0)
		assert.LessOrEqual(t, rs.Score, 1.0)
	}
	// Descending by score.
	for i := 1; i < len(out.Ranked); i++ {
		assert.GreaterOrEqual(t, out.Ranked[i-1].Score, out.Ranked[i].Score)
	}
	assert.Len(t, out.Selected, 2)
	// Bundles are reusable downstream.
	assert.Len(t, out.Bundles, 3)
	// Every board entry carries at least the fallback reason.
	for _, rs := range out.Ranked {
		assert.NotEmpty(t, rs.Reasons, rs.Symbol)
	}
}

func TestEntryReasons(t *testing.T) {
	got := entryReasons(0.005, 30, 0.8, 0.05)
	assert.Equal(t, []string{
		"strong trend (ADX)",
		"low cost (spread/ATR)",
		"good volatility (ATR%)",
		"good momentum",
	}, got)

	assert.Equal(t, []string{"meets filters"}, entryReasons(0.001, 10, 0.1, 0.5))
}

func TestMomentumScore(t *testing.T) {
	// A zero histogram scores zero, not the Ret20 fallback.
	assert.Zero(t, momentumScore(market.Features{TPHist: 0, ATR14: 1, Ret20: 0.5}))
	assert.InDelta(t, 0.5, momentumScore(market.Features{TPHist: 0.5, ATR14: 1}), 1e-12)
	// Ret20 only covers an unusable ATR.
	assert.InDelta(t, 0.02, momentumScore(market.Features{ATR14: 0, Ret20: -0.02}), 1e-12)
}

func TestRankExcludesStaleQuote(t *testing.T) {
	stale := freshQuote("EURUSD", 1.10)
	stale.Time = testNow.Add(-30 * time.Minute)
	feed := &fakeFeed{
		candles: map[string][]market.Candle{"EURUSD": waveCandles(200, 1.10, 0.01, 0.2)},
		quotes:  map[string]*broker.Quote{"EURUSD": stale},
	}
	meta := map[string]broker.SymbolMeta{"EURUSD": fxMeta("EURUSD")}

	out := newTestRanker(t, feed, testConfig()).Rank([]string{"EURUSD"}, meta)
	assert.Empty(t, out.Ranked)
	assert.Contains(t, out.Excluded["EURUSD"], "stale quote")
}

func TestRankExcludesInsufficientBars(t *testing.T) {
	feed := &fakeFeed{
		candles: map[string][]market.Candle{"EURUSD": waveCandles(20, 1.10, 0.01, 0.2)},
		quotes:  map[string]*broker.Quote{"EURUSD": freshQuote("EURUSD", 1.10)},
	}
	meta := map[string]broker.SymbolMeta{"EURUSD": fxMeta("EURUSD")}

	out := newTestRanker(t, feed, testConfig()).Rank([]string{"EURUSD"}, meta)
	assert.Contains(t, out.Excluded["EURUSD"], "insufficient bars")
}

func TestRankExcludesTradeDisabled(t *testing.T) {
	m := fxMeta("EURUSD")
	m.TradeAllowed = false
	feed := &fakeFeed{
		candles: map[string][]market.Candle{"EURUSD": waveCandles(200, 1.10, 0.01, 0.2)},
		quotes:  map[string]*broker.Quote{"EURUSD": freshQuote("EURUSD", 1.10)},
	}

	out := newTestRanker(t, feed, testConfig()).Rank([]string{"EURUSD"}, map[string]broker.SymbolMeta{"EURUSD": m})
	assert.Equal(t, "trading disabled", out.Excluded["EURUSD"])
}

func TestRankCorrelationEndToEnd(t *testing.T) {
	// A and B share the same wave, C is the inverted wave: with the
	// filter on and top_n=2, one of the twins is excluded citing the other.
	up := waveCandles(200, 1.10, 0.01, 0.2)
	down := make([]market.Candle, len(up))
	for i, c := range up {
		inv := 2*1.10 - c.Close
		down[i] = market.Candle{Time: c.Time, Open: inv, High: inv + 0.001, Low: inv - 0.001, Close: inv}
	}
	feed := &fakeFeed{
		candles: map[string][]market.Candle{"AAA": up, "BBB": up, "CCC": down},
		quotes: map[string]*broker.Quote{
			"AAA": freshQuote("AAA", 1.10), "BBB": freshQuote("BBB", 1.10), "CCC": freshQuote("CCC", 1.10),
		},
	}
	meta := map[string]broker.SymbolMeta{
		"AAA": fxMeta("AAA"), "BBB": fxMeta("BBB"), "CCC": fxMeta("CCC"),
	}
	cfg := testConfig()
	cfg.Correlation.Enabled = true
	cfg.Correlation.WindowBars = 60
	cfg.Correlation.MaxAbsCorr = 0.85

	out := newTestRanker(t, feed, cfg).Rank([]string{"AAA", "BBB", "CCC"}, meta)
	require.Len(t, out.Selected, 2)

	// Twins and the mirror all exceed |corr|=0.85 against the leader,
	// so exactly one symbol stays excluded with a reason naming a
	// selected sibling.
	names := []string{out.Selected[0].Symbol, out.Selected[1].Symbol}
	require.Len(t, out.Excluded, 1)
	for sym, reason := range out.Excluded {
		assert.NotContains(t, names, sym)
		assert.Contains(t, reason, "correlation filter")
		assert.Contains(t, reason, names[0])
	}
}
