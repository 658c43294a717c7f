// Package storage persists the audit trail: decisions, trades, errors,
// settings snapshots, and heartbeats, backed by an embedded SQLite
// database in WAL mode.
package storage

import "time"

// Decision status values.
const (
	StatusNoSignal    = "no-signal"
	StatusSkipped     = "skipped"
	StatusRiskBlocked = "risk-blocked"
	StatusOpened      = "opened"
	StatusClosed      = "closed"
	StatusError       = "error"
)

// DecisionRecord is one row of the decisions audit table. Strategy is
// nil when the selector abstained.
type DecisionRecord struct {
	ID                 int64
	CreatedAt          time.Time
	CycleID            string
	Symbol             string
	Timeframe          string
	CandleCloseTime    string // ISO-8601 UTC with +00:00 offset
	RankScore          float64
	RankComponentsJSON string
	Strategy           *string
	FeaturesJSON       string
	SignalJSON         string
	RiskJSON           string
	OrderJSON          string
	ResultJSON         string
	Status             string
	IdempotencyKey     string
}

// TradeRow mirrors one broker deal.
type TradeRow struct {
	ID          int64
	DealTicket  int64
	PositionID  int64
	OrderTicket int64
	TimeUTC     time.Time
	Symbol      string
	Side        string
	Entry       string
	Volume      float64
	Price       float64
	Profit      float64
	Commission  float64
	Swap        float64
	Magic       int64
	Comment     string
	RawJSON     string
}

// HeartbeatRow is one liveness snapshot.
type HeartbeatRow struct {
	ID             int64
	CreatedAt      time.Time
	CycleID        string
	Status         string
	CycleLatencyMS int64
	Connected      bool
	Equity         float64
	Balance        float64
	DailyStart     float64
	DailyPnL       float64
	PeakEquity     float64
	DrawdownPct    float64
	OpenPositions  int
	CPUPct         float64
	RAMPct         float64
	DiskPct        float64
	NetRxBps       float64
	NetTxBps       float64
	TempC          float64
	ExtraJSON      string
}

// TodayStats aggregates realized bot performance for one local date.
type TodayStats struct {
	PnL    float64
	Wins   int
	Losses int
}

// Interface is the persistence contract used by the executor and the
// engine.
type Interface interface {
	// TryInsertDecision inserts rec and reports whether the row was new.
	// A false return with nil error means the idempotency key already
	// exists.
	TryInsertDecision(rec *DecisionRecord) (bool, error)
	// UpdateDecision moves the row at key to status with a result payload.
	UpdateDecision(key, status, resultJSON string) error
	RecentDecisions(limit int) ([]DecisionRecord, error)

	// InsertTrades inserts rows, ignoring known deal tickets, and
	// returns only the newly inserted rows.
	InsertTrades(rows []TradeRow) ([]TradeRow, error)
	RecentTrades(limit int) ([]TradeRow, error)
	// TodayTradeStats sums entry=OUT bot-magic profits for the local
	// date prefix ("2006-01-02").
	TodayTradeStats(datePrefix string, magic int64) (TodayStats, error)

	InsertError(cycleID, severity, message, trace, contextJSON string) error
	InsertSettingsSnapshot(source, configJSON string) error
	// LatestSettingsJSON returns the most recent snapshot, or "" when
	// none exists.
	LatestSettingsJSON() (string, error)

	InsertHeartbeat(hb *HeartbeatRow) error

	Close() error
}
