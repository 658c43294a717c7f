package storage

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order inside a transaction each; the
// schema_migrations table records the applied versions.
var migrations = []struct {
	version int
	ddl     string
}{
	{1, `
CREATE TABLE IF NOT EXISTS decisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    cycle_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    candle_close_time_utc TEXT NOT NULL,
    rank_score REAL,
    rank_components_json TEXT,
    strategy TEXT,
    features_json TEXT,
    signal_json TEXT,
    risk_json TEXT,
    order_json TEXT,
    result_json TEXT,
    status TEXT NOT NULL,
    idempotency_key TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol);
CREATE INDEX IF NOT EXISTS idx_decisions_cycle ON decisions(cycle_id);

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deal_ticket INTEGER NOT NULL UNIQUE,
    position_id INTEGER,
    order_ticket INTEGER,
    time_utc TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT,
    entry TEXT,
    volume REAL,
    price REAL,
    profit REAL,
    commission REAL,
    swap REAL,
    magic INTEGER,
    comment TEXT,
    raw_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(time_utc);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    cycle_id TEXT,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    traceback TEXT,
    context_json TEXT
);

CREATE TABLE IF NOT EXISTS settings_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    source TEXT NOT NULL,
    config_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS heartbeats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    cycle_id TEXT,
    status TEXT,
    cycle_latency_ms INTEGER,
    mt5_connected INTEGER,
    equity REAL,
    balance REAL,
    daily_start_equity REAL,
    daily_pnl REAL,
    peak_equity REAL,
    drawdown_pct REAL,
    open_positions INTEGER,
    cpu_pct REAL,
    ram_pct REAL,
    disk_pct REAL,
    net_rx_bps REAL,
    net_tx_bps REAL,
    temp_c REAL,
    extra_json TEXT
);
`},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
