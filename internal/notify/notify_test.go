package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleSuppressesInsideWindow(t *testing.T) {
	th := NewThrottle(60 * time.Second)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	th.SetClock(func() time.Time { return now })

	assert.True(t, th.Allow("k"))
	assert.False(t, th.Allow("k"))

	now = now.Add(59 * time.Second)
	assert.False(t, th.Allow("k"))

	now = now.Add(2 * time.Second)
	assert.True(t, th.Allow("k"))
}

func TestThrottleKeysIndependent(t *testing.T) {
	th := NewThrottle(60 * time.Second)
	assert.True(t, th.Allow("a"))
	assert.True(t, th.Allow("b"))
	assert.False(t, th.Allow("a"))
}

func TestChatIDsFromEnv(t *testing.T) {
	ids := chatIDsFromEnv([]string{
		"TELEGRAM_CHAT_ID_OPS=123",
		"TELEGRAM_CHAT_ID_ALERTS=-456",
		"TELEGRAM_CHAT_ID_BAD=abc",
		"TELEGRAM_BOT_TOKEN=xyz",
		"PATH=/usr/bin",
	})
	assert.Equal(t, []int64{123, -456}, ids)
}

func TestTemplates(t *testing.T) {
	key, msg := TradeOpened("EURUSD", "long", 0.05, 1.1, 1.09, 1.12, "two_pole_momentum")
	assert.Equal(t, "trade-open-EURUSD", key)
	assert.Contains(t, msg, "LONG EURUSD")

	key, msg = TradeClosed("EURUSD", "short", 0.05, 1.1, -3.2)
	assert.Equal(t, "trade-close-EURUSD", key)
	assert.Contains(t, msg, "-3.20")

	key, _ = DailySummary("2026-03-02", 12.5, 3, 1, 1012.5, 0.01)
	assert.Equal(t, "daily-summary-2026-03-02", key)
}
