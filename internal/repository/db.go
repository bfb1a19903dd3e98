package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repo can run inside
// or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
//
// The pool is limited to one connection: SQLite allows a single writer, and
// an in-memory database only lives as long as its connection. All money
// movements therefore serialize on the store.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone_number TEXT UNIQUE NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			account_number TEXT UNIQUE NOT NULL,
			account_type TEXT NOT NULL,
			balance TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id)`,

		`CREATE TABLE IF NOT EXISTS account_transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			reference TEXT NOT NULL,
			direction TEXT NOT NULL,
			amount TEXT NOT NULL,
			opening_balance TEXT NOT NULL,
			closing_balance TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (account_id, reference, direction),
			FOREIGN KEY (account_id) REFERENCES accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS loans (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			reference TEXT UNIQUE NOT NULL,
			outstanding_balance TEXT NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_customer ON loans(customer_id, status)`,

		`CREATE TABLE IF NOT EXISTS loan_repayments (
			id TEXT PRIMARY KEY,
			loan_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			external_reference TEXT UNIQUE NOT NULL,
			balance_after TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (loan_id) REFERENCES loans(id)
		)`,

		`CREATE TABLE IF NOT EXISTS savings_accounts (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			account_number TEXT UNIQUE NOT NULL,
			balance TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_savings_customer ON savings_accounts(customer_id)`,

		`CREATE TABLE IF NOT EXISTS savings_transactions (
			id TEXT PRIMARY KEY,
			savings_account_id TEXT NOT NULL,
			reference TEXT NOT NULL,
			direction TEXT NOT NULL,
			amount TEXT NOT NULL,
			balance_after TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (savings_account_id, reference, direction),
			FOREIGN KEY (savings_account_id) REFERENCES savings_accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS pending_payments (
			id TEXT PRIMARY KEY,
			merchant_request_id TEXT UNIQUE NOT NULL,
			checkout_request_id TEXT UNIQUE NOT NULL,
			amount TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			purpose_reference TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			provider_result_code INTEGER,
			provider_result_description TEXT NOT NULL DEFAULT '',
			provider_receipt_number TEXT UNIQUE,
			callback_received INTEGER NOT NULL DEFAULT 0,
			transaction_request_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			acknowledged_at DATETIME,
			resolved_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_payments_status ON pending_payments(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_payments_request ON pending_payments(transaction_request_id)`,

		`CREATE TABLE IF NOT EXISTS transaction_requests (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			category TEXT NOT NULL,
			amount TEXT NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			posted_to_account INTEGER NOT NULL DEFAULT 0,
			loan_id TEXT NOT NULL DEFAULT '',
			savings_account_id TEXT NOT NULL DEFAULT '',
			target_account_id TEXT NOT NULL DEFAULT '',
			source_account_id TEXT NOT NULL DEFAULT '',
			pending_payment_id TEXT NOT NULL DEFAULT '',
			reference_number TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			approved_by TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_requests_status ON transaction_requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_requests_customer ON transaction_requests(customer_id)`,

		`CREATE TABLE IF NOT EXISTS suspense_payments (
			id TEXT PRIMARY KEY,
			source_reference TEXT UNIQUE NOT NULL,
			amount TEXT NOT NULL,
			exception_type TEXT NOT NULL,
			status TEXT NOT NULL,
			utilised_by TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			pending_payment_id TEXT NOT NULL DEFAULT '',
			transaction_request_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suspense_status ON suspense_payments(status)`,

		`CREATE TABLE IF NOT EXISTS callback_log (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload_hash TEXT UNIQUE NOT NULL,
			payload TEXT NOT NULL,
			outcome TEXT NOT NULL,
			received_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
