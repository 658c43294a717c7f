package storage

import (
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Interface implementation for tests.
type MockStore struct {
	mu sync.Mutex

	Decisions  []DecisionRecord
	Trades     []TradeRow
	Errors     []string
	Snapshots  []string
	Heartbeats []HeartbeatRow

	byKey    map[string]int
	byTicket map[int64]bool
	nextID   int64
}

var _ Interface = (*MockStore)(nil)

// NewMockStore builds an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		byKey:    make(map[string]int),
		byTicket: make(map[int64]bool),
	}
}

func (m *MockStore) TryInsertDecision(rec *DecisionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[rec.IdempotencyKey]; exists {
		return false, nil
	}
	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.byKey[cp.IdempotencyKey] = len(m.Decisions)
	m.Decisions = append(m.Decisions, cp)
	return true, nil
}

func (m *MockStore) UpdateDecision(key, status, resultJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byKey[key]; ok {
		m.Decisions[i].Status = status
		m.Decisions[i].ResultJSON = resultJSON
	}
	return nil
}

func (m *MockStore) RecentDecisions(limit int) ([]DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DecisionRecord, 0, limit)
	for i := len(m.Decisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Decisions[i])
	}
	return out, nil
}

func (m *MockStore) InsertTrades(rows []TradeRow) ([]TradeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []TradeRow
	for _, r := range rows {
		if m.byTicket[r.DealTicket] {
			continue
		}
		m.byTicket[r.DealTicket] = true
		m.nextID++
		r.ID = m.nextID
		m.Trades = append(m.Trades, r)
		inserted = append(inserted, r)
	}
	return inserted, nil
}

func (m *MockStore) RecentTrades(limit int) ([]TradeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TradeRow, 0, limit)
	for i := len(m.Trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Trades[i])
	}
	return out, nil
}

func (m *MockStore) TodayTradeStats(datePrefix string, magic int64) (TodayStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st TodayStats
	for _, r := range m.Trades {
		if r.Entry != "OUT" || r.Magic != magic {
			continue
		}
		if !strings.HasPrefix(r.TimeUTC.UTC().Format("2006-01-02"), datePrefix) {
			continue
		}
		st.PnL += r.Profit
		if r.Profit >= 0 {
			st.Wins++
		} else {
			st.Losses++
		}
	}
	return st, nil
}

func (m *MockStore) InsertError(cycleID, severity, message, trace, contextJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, severity+": "+message)
	return nil
}

func (m *MockStore) InsertSettingsSnapshot(source, configJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshots = append(m.Snapshots, configJSON)
	return nil
}

func (m *MockStore) LatestSettingsJSON() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Snapshots) == 0 {
		return "", nil
	}
	return m.Snapshots[len(m.Snapshots)-1], nil
}

func (m *MockStore) InsertHeartbeat(hb *HeartbeatRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Heartbeats = append(m.Heartbeats, *hb)
	return nil
}

func (m *MockStore) Close() error { return nil }

// DecisionByKey returns the stored decision for key, for assertions.
func (m *MockStore) DecisionByKey(key string) *DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byKey[key]; ok {
		cp := m.Decisions[i]
		return &cp
	}
	return nil
}
