package risk

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmo/candlebot/internal/broker"
)

func testConfig() Config {
	cfg := Config{
		RiskPerTrade:              0.005,
		MaxDailyLossPct:           0.03,
		MaxDrawdownPct:            0.10,
		MaxOpenPositionsTotal:     5,
		MaxOpenPositionsPerSymbol: 1,
		SLTPMode:                  "rr",
	}
	cfg.RR.StopPoints = 100
	cfg.RR.TakePoints = 200
	cfg.Cooloff.Enabled = true
	cfg.Cooloff.Losses = 3
	cfg.Cooloff.Minutes = 60
	return cfg
}

func newTestManager(cfg Config) *Manager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(cfg, log)
}

func fxMeta() broker.SymbolMeta {
	return broker.SymbolMeta{
		Name: "EURUSD", Point: 0.00001, VolumeMin: 0.01, VolumeMax: 100,
		VolumeStep: 0.01, TickValue: 1, TickSize: 0.00001, TradeAllowed: true,
	}
}

func TestDailyLossPauseTransition(t *testing.T) {
	m := newTestManager(testConfig())

	s := m.UpdateEquityState(1000, 1000, "2026-03-02")
	assert.False(t, s.Paused)
	assert.Equal(t, 1000.0, s.DailyStartEquity)

	// Drop just past the daily loss limit on the same local date.
	s = m.UpdateEquityState(1000*(1-0.03-0.01), 1000, "2026-03-02")
	assert.True(t, s.Paused)
	assert.Contains(t, s.PauseReason, "daily loss")
}

func TestDailyResetUnpausesNextDay(t *testing.T) {
	m := newTestManager(testConfig())
	m.UpdateEquityState(1000, 1000, "2026-03-02")
	s := m.UpdateEquityState(950, 950, "2026-03-02")
	require.True(t, s.Paused)

	// New local date rebaselines and releases the pause.
	s = m.UpdateEquityState(950, 950, "2026-03-03")
	assert.False(t, s.Paused)
	assert.Equal(t, 950.0, s.DailyStartEquity)
	assert.Equal(t, 0.0, s.DailyLossPct)
}

func TestPeakEquityMonotonic(t *testing.T) {
	m := newTestManager(testConfig())
	for _, eq := range []float64{1000, 1100, 1050, 1200, 900} {
		m.UpdateEquityState(eq, eq, "2026-03-02")
	}
	assert.Equal(t, 1200.0, m.State().PeakEquity)
	assert.InDelta(t, (1200.0-900.0)/1200.0, m.State().DrawdownPct, 1e-12)
}

func TestDrawdownPause(t *testing.T) {
	m := newTestManager(testConfig())
	m.UpdateEquityState(1000, 1000, "2026-03-02")
	// 11% off the peak on a fresh day baseline: drawdown fires first
	// because the daily baseline also moved.
	m.UpdateEquityState(1100, 1100, "2026-03-02")
	s := m.UpdateEquityState(1100*0.89, 1100*0.89, "2026-03-03")
	assert.True(t, s.Paused)
	assert.Contains(t, s.PauseReason, "drawdown")
}

func TestCooloffArmsAndExpires(t *testing.T) {
	m := newTestManager(testConfig())
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	m.UpdateEquityState(1000, 1000, "2026-03-02")
	m.OnClosedDeal(-10)
	m.OnClosedDeal(-5)
	assert.True(t, m.State().CooloffUntil.IsZero())
	m.OnClosedDeal(-2)
	require.False(t, m.State().CooloffUntil.IsZero())

	s := m.UpdateEquityState(1000, 1000, "2026-03-02")
	assert.True(t, s.Paused)
	assert.Contains(t, s.PauseReason, "cooloff")

	// Past the window the pause releases.
	now = now.Add(61 * time.Minute)
	s = m.UpdateEquityState(1000, 1000, "2026-03-02")
	assert.False(t, s.Paused)
}

func TestWinResetsStreak(t *testing.T) {
	m := newTestManager(testConfig())
	m.OnClosedDeal(-10)
	m.OnClosedDeal(-10)
	m.OnClosedDeal(5)
	assert.Equal(t, 0, m.State().LossStreak)
	assert.True(t, m.State().CooloffUntil.IsZero())
}

func TestMaxPositionsGate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositionsTotal = 1
	m := newTestManager(cfg)
	m.UpdateEquityState(1000, 1000, "2026-03-02")

	d := m.CheckEntry(EntryRequest{
		Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.1,
		ATR: 0.001, Meta: fxMeta(), OpenTotal: 1, OpenOnSymbol: 1,
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "limit 1")
}

func TestPausedRejectsEntry(t *testing.T) {
	m := newTestManager(testConfig())
	m.UpdateEquityState(1000, 1000, "2026-03-02")
	m.UpdateEquityState(900, 900, "2026-03-02")

	d := m.CheckEntry(EntryRequest{Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.1, Meta: fxMeta()})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "risk paused")
}

func TestVolumeSizing(t *testing.T) {
	m := newTestManager(testConfig())
	m.UpdateEquityState(1000, 1000, "2026-03-02")

	d := m.CheckEntry(EntryRequest{
		Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.10000,
		ATR: 0.001, Meta: fxMeta(),
	})
	require.True(t, d.Allowed, d.Reason)
	// equity=1000, risk=0.005, stop=100 points, mppl=1 -> 0.05 lots.
	assert.InDelta(t, 0.05, d.Volume, 1e-9)
	assert.InDelta(t, 1.0, d.Details["money_per_point_per_lot"], 1e-9)
	assert.InDelta(t, 5.0, d.Details["risk_money"], 1e-9)
}

func TestVolumeFlooredToMin(t *testing.T) {
	cfg := testConfig()
	cfg.RiskPerTrade = 0.00001
	m := newTestManager(cfg)
	m.UpdateEquityState(1000, 1000, "2026-03-02")

	d := m.CheckEntry(EntryRequest{
		Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.1, ATR: 0.001, Meta: fxMeta(),
	})
	require.True(t, d.Allowed, d.Reason)
	assert.InDelta(t, 0.01, d.Volume, 1e-9)
}

func TestSLTPSymmetryRR(t *testing.T) {
	m := newTestManager(testConfig())
	m.UpdateEquityState(1000, 1000, "2026-03-02")
	meta := fxMeta()
	entry := 1.10000

	long := m.CheckEntry(EntryRequest{Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: entry, ATR: 0.001, Meta: meta})
	require.True(t, long.Allowed)
	assert.InDelta(t, 100*meta.Point, entry-long.SL, 1e-12)
	assert.InDelta(t, 200*meta.Point, long.TP-entry, 1e-12)

	short := m.CheckEntry(EntryRequest{Symbol: "EURUSD", Side: broker.SideShort, EntryPrice: entry, ATR: 0.001, Meta: meta})
	require.True(t, short.Allowed)
	assert.InDelta(t, 100*meta.Point, short.SL-entry, 1e-12)
	assert.InDelta(t, 200*meta.Point, entry-short.TP, 1e-12)
}

func TestSLTPATRMode(t *testing.T) {
	cfg := testConfig()
	cfg.SLTPMode = "atr"
	cfg.ATR.SLMult = 2
	cfg.ATR.TPMult = 3
	m := newTestManager(cfg)
	m.UpdateEquityState(1000, 1000, "2026-03-02")

	atr := 0.002
	d := m.CheckEntry(EntryRequest{Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.1, ATR: atr, Meta: fxMeta()})
	require.True(t, d.Allowed, d.Reason)
	assert.InDelta(t, 1.1-2*atr, d.SL, 1e-12)
	assert.InDelta(t, 1.1+3*atr, d.TP, 1e-12)

	// ATR mode with no ATR rejects.
	d = m.CheckEntry(EntryRequest{Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.1, ATR: 0, Meta: fxMeta()})
	assert.False(t, d.Allowed)
}

func TestRejectsMissingTickMetadata(t *testing.T) {
	m := newTestManager(testConfig())
	m.UpdateEquityState(1000, 1000, "2026-03-02")
	meta := fxMeta()
	meta.TickValue = 0

	d := m.CheckEntry(EntryRequest{Symbol: "EURUSD", Side: broker.SideLong, EntryPrice: 1.1, ATR: 0.001, Meta: meta})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "tick metadata")
}

func TestCountAndFindPositions(t *testing.T) {
	positions := []broker.Position{
		{Symbol: "EURUSD", Magic: 7, Side: broker.SideLong},
		{Symbol: "EURUSD", Magic: 9, Side: broker.SideShort}, // foreign
		{Symbol: "GBPUSD", Magic: 7, Side: broker.SideShort},
	}
	total, onSym := CountPositions(positions, 7, "EURUSD")
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, onSym)

	p := FindPosition(positions, 7, "GBPUSD")
	require.NotNil(t, p)
	assert.Equal(t, broker.SideShort, p.Side)
	assert.Nil(t, FindPosition(positions, 7, "USDJPY"))
}
