package engine

import (
	"sync"
	"time"

	"github.com/calebmo/candlebot/internal/broker"
	"github.com/calebmo/candlebot/internal/monitor"
	"github.com/calebmo/candlebot/internal/ranking"
	"github.com/calebmo/candlebot/internal/risk"
	"github.com/calebmo/candlebot/internal/storage"
)

// Event is one line of the recent-events feed shown on the dashboard.
type Event struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Snapshot is the full engine state published after every cycle. The
// dashboard serves it verbatim; it is replaced wholesale, never mutated.
type Snapshot struct {
	UpdatedAt      time.Time `json:"updated_at"`
	Connected      bool      `json:"connected"`
	TradingEnabled bool      `json:"trading_enabled"`
	ManuallyPaused bool      `json:"manually_paused"`

	CycleID        string           `json:"cycle_id,omitempty"`
	CandleClose    time.Time        `json:"candle_close,omitzero"`
	CycleLatencyMS int64            `json:"cycle_latency_ms"`
	StageMS        map[string]int64 `json:"stage_ms,omitempty"`

	Universe []string               `json:"universe,omitempty"`
	Ranked   []ranking.RankedSymbol `json:"ranked,omitempty"`
	Selected []string               `json:"selected,omitempty"`
	Excluded map[string]string      `json:"excluded,omitempty"`

	Account   *broker.AccountInfo `json:"account,omitempty"`
	Positions []broker.Position   `json:"positions,omitempty"`
	Risk      risk.State          `json:"risk"`
	Today     storage.TodayStats  `json:"today"`
	Gauges    monitor.Gauges      `json:"gauges"`

	Events []Event `json:"events,omitempty"`
}

// snapshotHolder guards the published snapshot for concurrent readers.
type snapshotHolder struct {
	mu sync.RWMutex
	s  Snapshot
}

func (h *snapshotHolder) set(s Snapshot) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

func (h *snapshotHolder) get() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

// maxEvents bounds the recent-events ring.
const maxEvents = 50

// eventRing keeps the newest events, oldest first.
type eventRing struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func newEventRing(now func() time.Time) *eventRing {
	return &eventRing{now: now}
}

func (r *eventRing) add(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Time: r.now().UTC(), Level: level, Message: message})
	if len(r.events) > maxEvents {
		r.events = r.events[len(r.events)-maxEvents:]
	}
}

func (r *eventRing) list() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
