package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is the SQLite-backed implementation of Interface. The pooled
// database/sql handle replaces per-thread connections; WAL plus a busy
// timeout covers concurrent reader access from the status server.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

var _ Interface = (*Store)(nil)

// Open creates (or opens) the database at path and applies migrations.
func Open(path string, log *logrus.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?%s", url.PathEscape(path),
		"_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	return s.db.Close()
}

// TryInsertDecision inserts rec with INSERT OR IGNORE; the unique
// idempotency key constraint makes the duplicate case a no-op, detected
// through RowsAffected.
func (s *Store) TryInsertDecision(rec *DecisionRecord) (bool, error) {
	var strat sql.NullString
	if rec.Strategy != nil {
		strat = sql.NullString{String: *rec.Strategy, Valid: true}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT OR IGNORE INTO decisions
(created_at, cycle_id, symbol, timeframe, candle_close_time_utc, rank_score,
 rank_components_json, strategy, features_json, signal_json, risk_json,
 order_json, result_json, status, idempotency_key)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.UTC().Format(timeLayout), rec.CycleID, rec.Symbol,
		rec.Timeframe, rec.CandleCloseTime, rec.RankScore,
		rec.RankComponentsJSON, strat, rec.FeaturesJSON, rec.SignalJSON,
		rec.RiskJSON, rec.OrderJSON, rec.ResultJSON, rec.Status,
		rec.IdempotencyKey)
	if err != nil {
		return false, fmt.Errorf("insert decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateDecision finalises the decision at key.
func (s *Store) UpdateDecision(key, status, resultJSON string) error {
	_, err := s.db.Exec(`UPDATE decisions SET status = ?, result_json = ? WHERE idempotency_key = ?`,
		status, resultJSON, key)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	return nil
}

// RecentDecisions returns the newest rows first.
func (s *Store) RecentDecisions(limit int) ([]DecisionRecord, error) {
	rows, err := s.db.Query(`SELECT id, created_at, cycle_id, symbol, timeframe,
 candle_close_time_utc, rank_score, rank_components_json, strategy,
 features_json, signal_json, risk_json, order_json, result_json, status,
 idempotency_key
FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var created string
		var rankComponents, features, signal, risk, order, result, strat sql.NullString
		var rankScore sql.NullFloat64
		if err := rows.Scan(&rec.ID, &created, &rec.CycleID, &rec.Symbol,
			&rec.Timeframe, &rec.CandleCloseTime, &rankScore, &rankComponents,
			&strat, &features, &signal, &risk, &order, &result, &rec.Status,
			&rec.IdempotencyKey); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, created)
		rec.RankScore = rankScore.Float64
		rec.RankComponentsJSON = rankComponents.String
		rec.FeaturesJSON = features.String
		rec.SignalJSON = signal.String
		rec.RiskJSON = risk.String
		rec.OrderJSON = order.String
		rec.ResultJSON = result.String
		if strat.Valid {
			v := strat.String
			rec.Strategy = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertTrades inserts deals inside one explicit transaction, skipping
// tickets already present, and returns only the new rows.
func (s *Store) InsertTrades(rows []TradeRow) ([]TradeRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin trades tx: %w", err)
	}
	var inserted []TradeRow
	for _, r := range rows {
		res, err := tx.Exec(`INSERT OR IGNORE INTO trades
(deal_ticket, position_id, order_ticket, time_utc, symbol, side, entry,
 volume, price, profit, commission, swap, magic, comment, raw_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.DealTicket, r.PositionID, r.OrderTicket,
			r.TimeUTC.UTC().Format(timeLayout), r.Symbol, r.Side, r.Entry,
			r.Volume, r.Price, r.Profit, r.Commission, r.Swap, r.Magic,
			r.Comment, r.RawJSON)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("insert trade %d: %w", r.DealTicket, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, r)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit trades tx: %w", err)
	}
	return inserted, nil
}

// RecentTrades returns the newest rows first.
func (s *Store) RecentTrades(limit int) ([]TradeRow, error) {
	rows, err := s.db.Query(`SELECT id, deal_ticket, position_id, order_ticket,
 time_utc, symbol, side, entry, volume, price, profit, commission, swap,
 magic, comment, raw_json
FROM trades ORDER BY time_utc DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var r TradeRow
		var ts string
		var side, entry, comment, raw sql.NullString
		if err := rows.Scan(&r.ID, &r.DealTicket, &r.PositionID, &r.OrderTicket,
			&ts, &r.Symbol, &side, &entry, &r.Volume, &r.Price, &r.Profit,
			&r.Commission, &r.Swap, &r.Magic, &comment, &raw); err != nil {
			return nil, err
		}
		r.TimeUTC, _ = time.Parse(timeLayout, ts)
		r.Side = side.String
		r.Entry = entry.String
		r.Comment = comment.String
		r.RawJSON = raw.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// TodayTradeStats aggregates entry=OUT bot deals for the date prefix.
func (s *Store) TodayTradeStats(datePrefix string, magic int64) (TodayStats, error) {
	var st TodayStats
	rows, err := s.db.Query(`SELECT profit FROM trades
WHERE entry = 'OUT' AND magic = ? AND time_utc LIKE ?`, magic, datePrefix+"%")
	if err != nil {
		return st, fmt.Errorf("query today trades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var profit float64
		if err := rows.Scan(&profit); err != nil {
			return st, err
		}
		st.PnL += profit
		if profit >= 0 {
			st.Wins++
		} else {
			st.Losses++
		}
	}
	return st, rows.Err()
}

// InsertError records a cycle failure.
func (s *Store) InsertError(cycleID, severity, message, trace, contextJSON string) error {
	_, err := s.db.Exec(`INSERT INTO errors (created_at, cycle_id, severity, message, traceback, context_json)
VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(timeLayout), cycleID, severity, message, trace, contextJSON)
	if err != nil {
		return fmt.Errorf("insert error row: %w", err)
	}
	return nil
}

// InsertSettingsSnapshot records an applied configuration.
func (s *Store) InsertSettingsSnapshot(source, configJSON string) error {
	_, err := s.db.Exec(`INSERT INTO settings_snapshots (created_at, source, config_json)
VALUES (?, ?, ?)`, time.Now().UTC().Format(timeLayout), source, configJSON)
	if err != nil {
		return fmt.Errorf("insert settings snapshot: %w", err)
	}
	return nil
}

// LatestSettingsJSON returns the newest snapshot payload, or "".
func (s *Store) LatestSettingsJSON() (string, error) {
	var cfg string
	err := s.db.QueryRow(`SELECT config_json FROM settings_snapshots ORDER BY id DESC LIMIT 1`).Scan(&cfg)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query settings snapshot: %w", err)
	}
	return cfg, nil
}

// InsertHeartbeat records a liveness row.
func (s *Store) InsertHeartbeat(hb *HeartbeatRow) error {
	if hb.CreatedAt.IsZero() {
		hb.CreatedAt = time.Now().UTC()
	}
	connected := 0
	if hb.Connected {
		connected = 1
	}
	_, err := s.db.Exec(`INSERT INTO heartbeats
(created_at, cycle_id, status, cycle_latency_ms, mt5_connected, equity,
 balance, daily_start_equity, daily_pnl, peak_equity, drawdown_pct,
 open_positions, cpu_pct, ram_pct, disk_pct, net_rx_bps, net_tx_bps,
 temp_c, extra_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.CreatedAt.UTC().Format(timeLayout), hb.CycleID, hb.Status,
		hb.CycleLatencyMS, connected, hb.Equity, hb.Balance, hb.DailyStart,
		hb.DailyPnL, hb.PeakEquity, hb.DrawdownPct, hb.OpenPositions,
		hb.CPUPct, hb.RAMPct, hb.DiskPct, hb.NetRxBps, hb.NetTxBps,
		hb.TempC, hb.ExtraJSON)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}
