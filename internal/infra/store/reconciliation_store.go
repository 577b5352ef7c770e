package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// ReconciliationStore persists bank statement comparisons.
type ReconciliationStore struct {
	db *sql.DB
}

func NewReconciliationStore(db *sql.DB) *ReconciliationStore {
	return &ReconciliationStore{db: db}
}

const selectReconCols = `SELECT reconciliation_id, batch_id,
	bank_statement_amount, system_amount, difference_amount, status, remarks,
	reconciled_by, reconciled_at, created_at`

func (s *ReconciliationStore) Create(ctx context.Context, rec *domain.SettlementReconciliation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlement_reconciliations
		(reconciliation_id, batch_id, bank_statement_amount, system_amount,
		 difference_amount, status, remarks, reconciled_by, reconciled_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ReconciliationID.String(), rec.BatchID.String(),
		rec.BankStatementAmount.String(), rec.SystemAmount.String(),
		rec.DifferenceAmount.String(), string(rec.Status), rec.Remarks,
		rec.ReconciledBy, fmtTimePtr(rec.ReconciledAt), fmtTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

func (s *ReconciliationStore) Get(ctx context.Context, id uuid.UUID) (*domain.SettlementReconciliation, error) {
	row := s.db.QueryRowContext(ctx,
		selectReconCols+" FROM settlement_reconciliations WHERE reconciliation_id = ?",
		id.String())
	rec, err := scanRecon(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "reconciliation", ID: id.String()}
	}
	return rec, err
}

func (s *ReconciliationStore) Update(ctx context.Context, rec *domain.SettlementReconciliation) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE settlement_reconciliations
		 SET status = ?, remarks = ?, reconciled_by = ?, reconciled_at = ?
		 WHERE reconciliation_id = ?`,
		string(rec.Status), rec.Remarks, rec.ReconciledBy,
		fmtTimePtr(rec.ReconciledAt), rec.ReconciliationID.String(),
	)
	if err != nil {
		return fmt.Errorf("update reconciliation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "reconciliation", ID: rec.ReconciliationID.String()}
	}
	return nil
}

// ListOpen returns reconciliations still needing attention: everything not
// MATCHED or RESOLVED.
func (s *ReconciliationStore) ListOpen(ctx context.Context) ([]domain.SettlementReconciliation, error) {
	rows, err := s.db.QueryContext(ctx,
		selectReconCols+` FROM settlement_reconciliations
		 WHERE status NOT IN ('MATCHED','RESOLVED')
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecons(rows)
}

func (s *ReconciliationStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.SettlementReconciliation, error) {
	rows, err := s.db.QueryContext(ctx,
		selectReconCols+` FROM settlement_reconciliations
		 WHERE batch_id = ? ORDER BY created_at DESC`,
		batchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecons(rows)
}

func collectRecons(rows *sql.Rows) ([]domain.SettlementReconciliation, error) {
	var recs []domain.SettlementReconciliation
	for rows.Next() {
		rec, err := scanRecon(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanRecon(row rowScanner) (*domain.SettlementReconciliation, error) {
	var (
		rec             domain.SettlementReconciliation
		id, batchID     string
		bank, sys, diff string
		status          string
		reconciledAt    sql.NullString
		createdAt       string
	)
	err := row.Scan(&id, &batchID, &bank, &sys, &diff, &status, &rec.Remarks,
		&rec.ReconciledBy, &reconciledAt, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.ReconciliationID, _ = uuid.Parse(id)
	rec.BatchID, _ = uuid.Parse(batchID)
	rec.BankStatementAmount = parseDec(bank)
	rec.SystemAmount = parseDec(sys)
	rec.DifferenceAmount = parseDec(diff)
	rec.Status = domain.ReconciliationStatus(status)
	if reconciledAt.Valid {
		rec.ReconciledAt = parseTimePtr(&reconciledAt.String)
	}
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}
