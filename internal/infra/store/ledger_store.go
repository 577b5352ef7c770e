package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// LedgerStore reads the upstream transaction ledger. In this deployment the
// ledger lives in the same database as the settlement aggregate, which is
// what lets batch completion and the write-back share one transaction.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const selectTxnCols = `SELECT txn_id, client_code, client_name, amount, status,
	trans_date, is_settled, settlement_status, settlement_date, settlement_utr`

// ListEligible returns successful, unsettled transactions in [from, to).
// Status matching is case-insensitive; already-settled rows are silently
// skipped, not an error.
func (s *LedgerStore) ListEligible(ctx context.Context, from, to time.Time) ([]domain.LedgerTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectTxnCols+` FROM transactions
		 WHERE trans_date >= ? AND trans_date < ?
		   AND UPPER(status) = 'SUCCESS' AND is_settled = 0
		 ORDER BY trans_date, txn_id`,
		fmtTime(from), fmtTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	defer rows.Close()

	var txns []domain.LedgerTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func (s *LedgerStore) GetTransaction(ctx context.Context, txnID string) (*domain.LedgerTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		selectTxnCols+" FROM transactions WHERE txn_id = ?", txnID)
	t, err := scanTxn(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: txnID}
	}
	return t, err
}

// SeedTransactions inserts ledger rows, replacing existing ids. Used by
// tests and local tooling; the engine itself never creates ledger rows.
func (s *LedgerStore) SeedTransactions(ctx context.Context, txns []domain.LedgerTransaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO transactions
		(txn_id, client_code, client_name, amount, status, trans_date,
		 is_settled, settlement_status, settlement_date, settlement_utr)
		VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range txns {
		t := &txns[i]
		settled := 0
		if t.IsSettled {
			settled = 1
		}
		_, err := stmt.ExecContext(ctx,
			t.TxnID, t.ClientCode, t.ClientName, t.Amount.String(), t.Status,
			fmtTime(t.TransDate), settled, t.SettlementStatus,
			fmtTimePtr(t.SettlementDate), t.SettlementUTR,
		)
		if err != nil {
			return fmt.Errorf("seed %s: %w", t.TxnID, err)
		}
	}

	return tx.Commit()
}

func scanTxn(row rowScanner) (*domain.LedgerTransaction, error) {
	var (
		t              domain.LedgerTransaction
		amount         string
		transDate      string
		settled        int
		settlementDate sql.NullString
	)
	err := row.Scan(&t.TxnID, &t.ClientCode, &t.ClientName, &amount, &t.Status,
		&transDate, &settled, &t.SettlementStatus, &settlementDate, &t.SettlementUTR)
	if err != nil {
		return nil, err
	}
	t.Amount = parseDec(amount)
	t.TransDate = parseTime(transDate)
	t.IsSettled = settled != 0
	if settlementDate.Valid {
		t.SettlementDate = parseTimePtr(&settlementDate.String)
	}
	return &t, nil
}
