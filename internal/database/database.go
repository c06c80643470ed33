package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection. All mutating claim operations run as a
// single transaction with a conditional ledger update, so two concurrent
// claims can never oversubscribe the last unit.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// between our own transactions.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            org_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            description TEXT,
            total_count INTEGER NOT NULL,
            available_count INTEGER NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (total_count >= 1),
            CHECK (available_count >= 0 AND available_count <= total_count)
        )`,
		`CREATE TABLE IF NOT EXISTS lendings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            org_id INTEGER NOT NULL,
            item_id INTEGER NOT NULL,
            borrower_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL DEFAULT 1,
            borrowed_at DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            returned_at DATETIME,
            penalty REAL NOT NULL DEFAULT 0,
            penalty_reason TEXT,
            penalty_overridden BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (quantity >= 1)
        )`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            org_id INTEGER NOT NULL,
            item_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL DEFAULT 1,
            reserved_for DATETIME NOT NULL,
            expires_at DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'active',
            notes TEXT,
            stock_held BOOLEAN NOT NULL DEFAULT 0,
            cancelled_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            CHECK (quantity >= 1)
        )`,
		`CREATE TABLE IF NOT EXISTS waitlist_entries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            org_id INTEGER NOT NULL,
            item_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            queue_position INTEGER NOT NULL,
            priority INTEGER NOT NULL DEFAULT 100,
            notify_when_available BOOLEAN NOT NULL DEFAULT 1,
            notified_at DATETIME,
            notification_expires_at DATETIME,
            status TEXT NOT NULL DEFAULT 'waiting',
            fulfilled_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS blacklists (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            org_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            reason TEXT NOT NULL,
            blocked_until DATETIME NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            overridden_by INTEGER,
            overridden_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS approval_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT NOT NULL UNIQUE,
            org_id INTEGER NOT NULL,
            item_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            type TEXT NOT NULL,
            request_data TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            approver_id INTEGER,
            decided_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_items_org ON items(org_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_lendings_item ON lendings(org_id, item_id, returned_at)`,
		`CREATE INDEX IF NOT EXISTS idx_lendings_borrower ON lendings(org_id, borrower_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lendings_due ON lendings(due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_item ON reservations(org_id, item_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_item ON waitlist_entries(org_id, item_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_deadline ON waitlist_entries(status, notification_expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_blacklists_user ON blacklists(org_id, user_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_org ON approval_requests(org_id, status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func now() time.Time {
	return time.Now().UTC()
}
