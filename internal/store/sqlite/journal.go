// Package sqlite keeps an append-only journal of closed trades in SQLite,
// separate from the whole-document JSON state. The document store is
// rewritten on every tick; the journal is the durable audit copy queries
// can run against.
package sqlite

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertraderv1/internal/model"
)

// Journal persists closed trades to a SQLite database.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS closed_trades (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		side           TEXT NOT NULL,
		entry_price    REAL NOT NULL,
		exit_price     REAL NOT NULL,
		size           REAL NOT NULL,
		profit_usdt    REAL NOT NULL,
		profit_inr     REAL NOT NULL,
		balance_before REAL NOT NULL,
		balance_after  REAL NOT NULL,
		exit_reason    TEXT NOT NULL,
		closed_at      DATETIME NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_closed_at ON closed_trades(closed_at);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_reason ON closed_trades(exit_reason);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordClose appends a closed trade to the journal.
func (j *Journal) RecordClose(trade model.ClosedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO closed_trades (side, entry_price, exit_price, size, profit_usdt, profit_inr,
		 balance_before, balance_after, exit_reason, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(trade.Side),
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Size,
		trade.ProfitUSDT,
		trade.ProfitINR,
		trade.BalanceBefore,
		trade.BalanceAfter,
		trade.ExitReason,
		trade.ClosedAt.Format(time.RFC3339),
	)
	return err
}

// JournalRow is one row from the closed_trades table.
type JournalRow struct {
	ID            int64   `json:"id"`
	Side          string  `json:"side"`
	EntryPrice    float64 `json:"entry_price"`
	ExitPrice     float64 `json:"exit_price"`
	Size          float64 `json:"size"`
	ProfitUSDT    float64 `json:"profit_usdt"`
	ProfitINR     float64 `json:"profit_inr"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	ExitReason    string  `json:"exit_reason"`
	ClosedAt      string  `json:"closed_at"`
}

// Recent returns the last N closed trades, newest first.
func (j *Journal) Recent(limit int) ([]JournalRow, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, side, entry_price, exit_price, size, profit_usdt, profit_inr,
		 balance_before, balance_after, exit_reason, closed_at
		 FROM closed_trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalRow
	for rows.Next() {
		var r JournalRow
		if err := rows.Scan(&r.ID, &r.Side, &r.EntryPrice, &r.ExitPrice, &r.Size,
			&r.ProfitUSDT, &r.ProfitINR, &r.BalanceBefore, &r.BalanceAfter,
			&r.ExitReason, &r.ClosedAt); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks journal liveness, for the health endpoint.
func (j *Journal) Ping() error {
	return j.db.Ping()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
