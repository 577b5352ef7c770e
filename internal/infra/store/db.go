// Package store implements the persistence ports on SQLite via database/sql.
// Settlement aggregate, client configuration, reconciliations and the
// transaction ledger share one database so the batch-plus-details write and
// the completion/write-back dual write are each a single real transaction.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Pragmas go in the DSN so they apply to every pooled connection.
// A db.Exec("PRAGMA …") would only configure whichever connection the
// pool happened to hand out. busy_timeout makes a second writer wait
// for the lock instead of surfacing SQLITE_BUSY, so a concurrent
// duplicate batch create lands on the unique index and comes back as
// a state conflict.
const connPragmas = "_pragma=busy_timeout(5000)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=journal_mode(WAL)"

// Open opens (or creates) the SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func Open(dsn string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	// Monetary columns are stored as decimal strings, never REAL, so values
	// round-trip exactly.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settlement_batches (
			batch_id TEXT PRIMARY KEY,
			batch_date TEXT NOT NULL,
			total_transactions INTEGER NOT NULL DEFAULT 0,
			total_amount TEXT NOT NULL DEFAULT '0',
			processing_fee TEXT NOT NULL DEFAULT '0',
			gst_amount TEXT NOT NULL DEFAULT '0',
			net_settlement_amount TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL DEFAULT 'PENDING',
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			processed_at TEXT,
			processed_by TEXT NOT NULL DEFAULT ''
		)`,
		// One active batch per date: PENDING/PROCESSING/APPROVED rows are
		// unique on batch_date, so concurrent creates serialize in SQLite
		// and exactly one wins.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_batches_active_date
			ON settlement_batches(batch_date)
			WHERE status IN ('PENDING','PROCESSING','APPROVED')`,
		`CREATE INDEX IF NOT EXISTS idx_batches_status ON settlement_batches(status)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_date ON settlement_batches(batch_date)`,

		`CREATE TABLE IF NOT EXISTS settlement_details (
			settlement_id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			txn_id TEXT NOT NULL,
			client_code TEXT NOT NULL,
			transaction_amount TEXT NOT NULL,
			settlement_amount TEXT NOT NULL,
			processing_fee TEXT NOT NULL,
			gst_amount TEXT NOT NULL,
			net_amount TEXT NOT NULL,
			fee_percent TEXT NOT NULL,
			gst_percent TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			bank_reference TEXT NOT NULL DEFAULT '',
			utr_number TEXT NOT NULL DEFAULT '',
			remarks TEXT NOT NULL DEFAULT '',
			settlement_date TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(batch_id, txn_id),
			FOREIGN KEY (batch_id) REFERENCES settlement_batches(batch_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_details_batch ON settlement_details(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_details_client ON settlement_details(client_code)`,
		`CREATE INDEX IF NOT EXISTS idx_details_status ON settlement_details(status)`,
		`CREATE INDEX IF NOT EXISTS idx_details_txn ON settlement_details(txn_id)`,

		`CREATE TABLE IF NOT EXISTS settlement_configurations (
			config_id TEXT PRIMARY KEY,
			client_code TEXT UNIQUE NOT NULL,
			settlement_cycle TEXT NOT NULL DEFAULT 'T+1',
			min_settlement_amount TEXT NOT NULL DEFAULT '100',
			processing_fee_percent TEXT NOT NULL DEFAULT '2',
			gst_percent TEXT NOT NULL DEFAULT '18',
			auto_settle INTEGER NOT NULL DEFAULT 1,
			bank_account_number TEXT NOT NULL DEFAULT '',
			bank_name TEXT NOT NULL DEFAULT '',
			ifsc_code TEXT NOT NULL DEFAULT '',
			account_holder_name TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settlement_reconciliations (
			reconciliation_id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			bank_statement_amount TEXT NOT NULL,
			system_amount TEXT NOT NULL,
			difference_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			remarks TEXT NOT NULL DEFAULT '',
			reconciled_by TEXT NOT NULL DEFAULT '',
			reconciled_at TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (batch_id) REFERENCES settlement_batches(batch_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recons_batch ON settlement_reconciliations(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recons_status ON settlement_reconciliations(status)`,

		// Transaction ledger. Timestamps are stored as UTC RFC3339 so
		// lexicographic comparison matches chronological order.
		`CREATE TABLE IF NOT EXISTS transactions (
			txn_id TEXT PRIMARY KEY,
			client_code TEXT NOT NULL,
			client_name TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			status TEXT NOT NULL,
			trans_date TEXT NOT NULL,
			is_settled INTEGER NOT NULL DEFAULT 0,
			settlement_status TEXT NOT NULL DEFAULT '',
			settlement_date TEXT,
			settlement_utr TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(trans_date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_settled ON transactions(is_settled)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_client ON transactions(client_code)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
