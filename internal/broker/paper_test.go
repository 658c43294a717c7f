package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmo/candlebot/internal/timeframe"
)

func newTestPaper(t *testing.T) *PaperBroker {
	t.Helper()
	p := NewPaperBroker(PaperConfig{Seed: 42, InitialEquity: 10000, SpreadPoints: 10})
	fixed := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return fixed })
	return p
}

func TestPaperCandlesDeterministic(t *testing.T) {
	p := newTestPaper(t)
	a, err := p.Candles("EURUSD", timeframe.H1, 100)
	require.NoError(t, err)
	b, err := p.Candles("EURUSD", timeframe.H1, 100)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 100)

	// Bars strictly ascending on the timeframe grid.
	for i := 1; i < len(a); i++ {
		assert.Equal(t, time.Hour, a[i].Time.Sub(a[i-1].Time))
	}
	// OHLC sanity.
	for _, c := range a {
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
	}
}

func TestPaperAccountIsDemo(t *testing.T) {
	p := newTestPaper(t)
	acct, err := p.AccountInfo()
	require.NoError(t, err)
	assert.Equal(t, ModeDemo, acct.TradeMode)
	assert.Equal(t, 10000.0, acct.Equity)
}

func TestPaperOpenCloseRoundTrip(t *testing.T) {
	p := newTestPaper(t)
	res, err := p.PlaceOrder(OrderRequest{
		Symbol: "EURUSD", Side: SideLong, Volume: 0.05, Magic: 555, Comment: "tb:abc123def456",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotZero(t, res.PositionID)

	positions, err := p.ListPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(555), positions[0].Magic)
	assert.Equal(t, SideLong, positions[0].Side)

	closeRes, err := p.PlaceOrder(OrderRequest{
		Symbol: "EURUSD", Side: SideShort, Volume: 0.05,
		PositionID: res.PositionID, Magic: 555, Comment: "tb:ffffffffffff",
	})
	require.NoError(t, err)
	assert.True(t, closeRes.Success)

	positions, err = p.ListPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)

	deals, err := p.ListDeals(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, DealEntryIn, deals[0].Entry)
	assert.Equal(t, DealEntryOut, deals[1].Entry)
	assert.Equal(t, int64(555), deals[1].Magic)
}

func TestPaperRejectsInvalidVolume(t *testing.T) {
	p := newTestPaper(t)
	res, err := p.PlaceOrder(OrderRequest{Symbol: "EURUSD", Side: SideLong, Volume: 0.001})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPaperCloseUnknownPosition(t *testing.T) {
	p := newTestPaper(t)
	res, err := p.PlaceOrder(OrderRequest{Symbol: "EURUSD", Side: SideShort, Volume: 0.05, PositionID: 99999})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPaperModifyPosition(t *testing.T) {
	p := newTestPaper(t)
	res, err := p.PlaceOrder(OrderRequest{Symbol: "EURUSD", Side: SideLong, Volume: 0.05})
	require.NoError(t, err)

	ok, err := p.ModifyPosition(res.PositionID, 1.0, 1.3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ModifyPosition(424242, 1.0, 1.3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	retryable := NewError(KindRetryable, "place_order", assert.AnError)
	disconnected := NewError(KindDisconnected, "candles", assert.AnError)
	fatal := NewError(KindFatal, "quote", assert.AnError)

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(disconnected))
	assert.True(t, IsDisconnected(disconnected))
	assert.False(t, IsRetryable(fatal))
	assert.False(t, IsRetryable(assert.AnError))
}
