// Package notify delivers operational notifications over Telegram with
// a per-key throttle.
package notify

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Config is the notifications slice of the bot configuration.
type Config struct {
	TelegramEnabled  bool   `yaml:"telegram_enabled"`
	ThrottleSeconds  int    `yaml:"throttle_seconds"`
	DailySummaryTime string `yaml:"daily_summary_time"` // "HH:MM" local
}

// Notifier sends a message under a throttle key. Implementations must
// be safe for concurrent use.
type Notifier interface {
	Send(key, message string)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Send(string, string) {}

// Throttle suppresses repeats of the same key inside the window.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewThrottle builds a throttle over window.
func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{window: window, last: make(map[string]time.Time), now: time.Now}
}

// SetClock overrides the clock, for tests.
func (t *Throttle) SetClock(now func() time.Time) { t.now = now }

// Allow reports whether key may fire now, recording the send time when
// it does.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if prev, ok := t.last[key]; ok && now.Sub(prev) < t.window {
		return false
	}
	t.last[key] = now
	return true
}

// Telegram sends messages to every configured chat.
type Telegram struct {
	bot      *tgbotapi.BotAPI
	chatIDs  []int64
	throttle *Throttle
	log      *logrus.Logger
}

var _ Notifier = (*Telegram)(nil)

// NewFromEnv builds the notifier from TELEGRAM_BOT_TOKEN and every
// TELEGRAM_CHAT_ID_* environment variable. Returns Nop when disabled
// or unconfigured.
func NewFromEnv(cfg Config, log *logrus.Logger) Notifier {
	if !cfg.TelegramEnabled {
		return Nop{}
	}
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatIDs := chatIDsFromEnv(os.Environ())
	if token == "" || len(chatIDs) == 0 {
		log.Warn("telegram enabled but TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID_* missing; notifications disabled")
		return Nop{}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.WithError(err).Warn("telegram init failed; notifications disabled")
		return Nop{}
	}
	window := time.Duration(cfg.ThrottleSeconds) * time.Second
	return &Telegram{
		bot:      bot,
		chatIDs:  chatIDs,
		throttle: NewThrottle(window),
		log:      log,
	}
}

// chatIDsFromEnv extracts chat ids from TELEGRAM_CHAT_ID_* entries.
func chatIDsFromEnv(environ []string) []int64 {
	var out []int64
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "TELEGRAM_CHAT_ID") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Send delivers message to all chats unless key is throttled.
func (t *Telegram) Send(key, message string) {
	if !t.throttle.Allow(key) {
		return
	}
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, message)
		if _, err := t.bot.Send(msg); err != nil {
			t.log.WithError(err).WithField("chat", chatID).Warn("telegram send failed")
		}
	}
}

// Message templates. Keys group related events so bursts collapse.

// TradeOpened formats an entry notification.
func TradeOpened(symbol, side string, volume, price, sl, tp float64, strategy string) (key, msg string) {
	return "trade-open-" + symbol, fmt.Sprintf(
		"📈 Opened %s %s %.2f @ %.5f\nSL %.5f | TP %.5f\nstrategy: %s",
		strings.ToUpper(side), symbol, volume, price, sl, tp, strategy)
}

// TradeClosed formats a close notification.
func TradeClosed(symbol, side string, volume, price, profit float64) (key, msg string) {
	emoji := "✅"
	if profit < 0 {
		emoji = "🔻"
	}
	return "trade-close-" + symbol, fmt.Sprintf(
		"%s Closed %s %s %.2f @ %.5f\nP&L: %+.2f",
		emoji, strings.ToUpper(side), symbol, volume, price, profit)
}

// RiskPaused formats a pause transition.
func RiskPaused(reason string) (key, msg string) {
	return "risk-paused", "⏸ Trading paused: " + reason
}

// RiskResumed formats an unpause transition.
func RiskResumed() (key, msg string) {
	return "risk-resumed", "▶️ Trading resumed"
}

// DailySummary formats the end-of-day report.
func DailySummary(date string, pnl float64, wins, losses int, equity, drawdownPct float64) (key, msg string) {
	return "daily-summary-" + date, fmt.Sprintf(
		"🗓 Summary %s\nP&L: %+.2f (%d W / %d L)\nEquity: %.2f | Drawdown: %.2f%%",
		date, pnl, wins, losses, equity, drawdownPct*100)
}

// CycleError formats a cycle failure.
func CycleError(cycleID string, err error) (key, msg string) {
	return "cycle-error", fmt.Sprintf("⚠️ Cycle %s failed: %v", cycleID, err)
}
