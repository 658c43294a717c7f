// Package risk owns the equity state machine and the pre-trade gates:
// daily-loss and drawdown pauses, loss-streak cooloff, position caps,
// SL/TP placement, and step-rounded volume sizing.
package risk

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the risk slice of the bot configuration.
type Config struct {
	RiskPerTrade              float64 `yaml:"risk_per_trade"`
	MaxDailyLossPct           float64 `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct            float64 `yaml:"max_drawdown_pct"`
	MaxOpenPositionsTotal     int     `yaml:"max_open_positions_total"`
	MaxOpenPositionsPerSymbol int     `yaml:"max_open_positions_per_symbol"`
	SLTPMode                  string  `yaml:"sltp_mode"` // rr | atr
	RR                        struct {
		StopPoints float64 `yaml:"stop_points"`
		TakePoints float64 `yaml:"take_points"`
	} `yaml:"rr"`
	ATR struct {
		Period int     `yaml:"period"`
		SLMult float64 `yaml:"sl_mult"`
		TPMult float64 `yaml:"tp_mult"`
	} `yaml:"atr"`
	Cooloff struct {
		Enabled bool `yaml:"enabled"`
		Losses  int  `yaml:"losses"`
		Minutes int  `yaml:"minutes"`
	} `yaml:"cooloff"`
}

// State is the externally visible risk state, published in snapshots
// and heartbeats.
type State struct {
	Paused           bool      `json:"paused"`
	PauseReason      string    `json:"pause_reason,omitempty"`
	CooloffUntil     time.Time `json:"cooloff_until,omitzero"`
	LossStreak       int       `json:"loss_streak"`
	DailyDate        string    `json:"daily_date"`
	DailyStartEquity float64   `json:"daily_start_equity"`
	PeakEquity       float64   `json:"peak_equity"`
	Equity           float64   `json:"equity"`
	Balance          float64   `json:"balance"`
	DrawdownPct      float64   `json:"drawdown_pct"`
	DailyLossPct     float64   `json:"daily_loss_pct"`
}

// Manager drives the risk state machine. Not safe for concurrent use;
// the engine owns it on the control goroutine.
type Manager struct {
	cfg   Config
	log   *logrus.Logger
	state State
	now   func() time.Time
}

// NewManager builds a risk manager.
func NewManager(cfg Config, log *logrus.Logger) *Manager {
	return &Manager{cfg: cfg, log: log, now: time.Now}
}

// SetClock overrides the cooloff clock, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// State returns a copy of the current risk state.
func (m *Manager) State() State { return m.state }

// ApplyConfig swaps the configuration in place; accumulated state
// (streak, peaks, cooloff) survives the swap.
func (m *Manager) ApplyConfig(cfg Config) { m.cfg = cfg }

// UpdateEquityState ingests a fresh account snapshot. localDate is the
// calendar date in the configured timezone ("2006-01-02"); a date
// change resets the daily baseline, the loss streak, and any cooloff.
func (m *Manager) UpdateEquityState(equity, balance float64, localDate string) State {
	s := &m.state
	if s.DailyDate != localDate {
		s.DailyDate = localDate
		s.DailyStartEquity = equity
		s.LossStreak = 0
		s.CooloffUntil = time.Time{}
	}
	if equity > s.PeakEquity {
		s.PeakEquity = equity
	}
	s.Equity = equity
	s.Balance = balance

	s.DrawdownPct = 0
	if s.PeakEquity > 0 {
		if dd := (s.PeakEquity - equity) / s.PeakEquity; dd > 0 {
			s.DrawdownPct = dd
		}
	}
	s.DailyLossPct = 0
	if s.DailyStartEquity > 0 {
		if dl := (s.DailyStartEquity - equity) / s.DailyStartEquity; dl > 0 {
			s.DailyLossPct = dl
		}
	}

	switch {
	case m.cfg.MaxDailyLossPct > 0 && s.DailyLossPct >= m.cfg.MaxDailyLossPct:
		m.pause(fmt.Sprintf("daily loss %.2f%% breached limit %.2f%%", s.DailyLossPct*100, m.cfg.MaxDailyLossPct*100))
	case m.cfg.MaxDrawdownPct > 0 && s.DrawdownPct >= m.cfg.MaxDrawdownPct:
		m.pause(fmt.Sprintf("drawdown %.2f%% breached limit %.2f%%", s.DrawdownPct*100, m.cfg.MaxDrawdownPct*100))
	case !s.CooloffUntil.IsZero() && m.now().Before(s.CooloffUntil):
		m.pause(fmt.Sprintf("cooloff until %s after %d losses", s.CooloffUntil.UTC().Format(time.RFC3339), s.LossStreak))
	default:
		m.unpause()
	}
	return m.state
}

func (m *Manager) pause(reason string) {
	if !m.state.Paused {
		m.log.WithField("reason", reason).Warn("risk pause engaged")
	}
	m.state.Paused = true
	m.state.PauseReason = reason
}

func (m *Manager) unpause() {
	if m.state.Paused {
		m.log.Info("risk pause released")
	}
	m.state.Paused = false
	m.state.PauseReason = ""
}

// OnClosedDeal updates the loss streak from a closed (entry=OUT,
// bot-magic) deal and arms the cooloff when the streak hits the limit.
func (m *Manager) OnClosedDeal(profit float64) {
	if profit < 0 {
		m.state.LossStreak++
	} else {
		m.state.LossStreak = 0
	}
	if m.cfg.Cooloff.Enabled && m.cfg.Cooloff.Losses > 0 && m.state.LossStreak >= m.cfg.Cooloff.Losses {
		m.state.CooloffUntil = m.now().Add(time.Duration(m.cfg.Cooloff.Minutes) * time.Minute)
		m.log.WithFields(logrus.Fields{
			"streak": m.state.LossStreak,
			"until":  m.state.CooloffUntil.UTC().Format(time.RFC3339),
		}).Warn("loss streak cooloff armed")
	}
}
