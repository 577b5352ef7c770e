package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// SettlementStore persists settlement batches and their detail rows.
type SettlementStore struct {
	db *sql.DB
}

func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

// CreateBatch writes the batch header plus all detail rows in one
// transaction. Each detail's ledger transaction is re-checked for the
// settled flag inside the transaction; rows settled in the meantime are
// skipped. Aggregate totals are derived strictly from the rows written.
func (s *SettlementStore) CreateBatch(ctx context.Context, batch *domain.SettlementBatch, details []domain.SettlementDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlement_batches
		(batch_id, batch_date, total_transactions, total_amount, processing_fee,
		 gst_amount, net_settlement_amount, status, created_at, processed_by)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		batch.BatchID.String(), fmtDate(batch.BatchDate), 0,
		"0", "0", "0", "0", string(domain.BatchPending),
		fmtTime(batch.CreatedAt), batch.ProcessedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ErrStateConflict{
				Resource: "settlement batch",
				ID:       fmtDate(batch.BatchDate),
				Message:  fmt.Sprintf("active batch already exists for %s", fmtDate(batch.BatchDate)),
			}
		}
		return fmt.Errorf("insert batch: %w", err)
	}

	settledCheck, err := tx.PrepareContext(ctx,
		"SELECT is_settled FROM transactions WHERE txn_id = ?")
	if err != nil {
		return fmt.Errorf("prepare settled check: %w", err)
	}
	defer settledCheck.Close()

	insertDetail, err := tx.PrepareContext(ctx,
		`INSERT INTO settlement_details
		(settlement_id, batch_id, txn_id, client_code, transaction_amount,
		 settlement_amount, processing_fee, gst_amount, net_amount,
		 fee_percent, gst_percent, status, remarks, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare detail insert: %w", err)
	}
	defer insertDetail.Close()

	var (
		count    int
		total    = decimal.Zero
		totalFee = decimal.Zero
		totalGST = decimal.Zero
		totalNet = decimal.Zero
	)

	for i := range details {
		d := &details[i]

		// The settled flag is the re-entrancy gate: re-check immediately
		// before the write so a transaction is never settled twice.
		var settled int
		err := settledCheck.QueryRowContext(ctx, d.TxnID).Scan(&settled)
		if err == sql.ErrNoRows || settled != 0 {
			continue
		}
		if err != nil {
			return fmt.Errorf("settled check %s: %w", d.TxnID, err)
		}

		_, err = insertDetail.ExecContext(ctx,
			d.SettlementID.String(), batch.BatchID.String(), d.TxnID, d.ClientCode,
			d.TransactionAmount.String(), d.SettlementAmount.String(),
			d.ProcessingFee.String(), d.GSTAmount.String(), d.NetAmount.String(),
			d.FeePercent.String(), d.GSTPercent.String(),
			string(domain.DetailPending), d.Remarks, fmtTime(d.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert detail %s: %w", d.TxnID, err)
		}

		count++
		total = total.Add(d.SettlementAmount)
		totalFee = totalFee.Add(d.ProcessingFee)
		totalGST = totalGST.Add(d.GSTAmount)
		totalNet = totalNet.Add(d.NetAmount)
	}

	if count == 0 {
		return &domain.ErrNoEligibleTransactions{BatchDate: batch.BatchDate}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE settlement_batches
		 SET total_transactions = ?, total_amount = ?, processing_fee = ?,
		     gst_amount = ?, net_settlement_amount = ?
		 WHERE batch_id = ?`,
		count, total.String(), totalFee.String(), totalGST.String(),
		totalNet.String(), batch.BatchID.String(),
	)
	if err != nil {
		return fmt.Errorf("update batch totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	batch.Status = domain.BatchPending
	batch.TotalTransactions = count
	batch.TotalAmount = total
	batch.ProcessingFee = totalFee
	batch.GSTAmount = totalGST
	batch.NetSettlementAmount = totalNet
	return nil
}

func (s *SettlementStore) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.SettlementBatch, error) {
	row := s.db.QueryRowContext(ctx,
		selectBatchCols+" FROM settlement_batches WHERE batch_id = ?",
		batchID.String(),
	)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "settlement batch", ID: batchID.String()}
	}
	return b, err
}

func (s *SettlementStore) GetActiveBatchForDate(ctx context.Context, batchDate time.Time) (*domain.SettlementBatch, error) {
	row := s.db.QueryRowContext(ctx,
		selectBatchCols+` FROM settlement_batches
		 WHERE batch_date = ? AND status IN ('PENDING','PROCESSING','APPROVED')`,
		fmtDate(batchDate),
	)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Resource: "settlement batch", ID: fmtDate(batchDate)}
	}
	return b, err
}

func (s *SettlementStore) ListBatches(ctx context.Context, f domain.BatchFilter) ([]domain.SettlementBatch, error) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "batch_date >= ?")
		args = append(args, fmtDate(*f.DateFrom))
	}
	if f.DateTo != nil {
		clauses = append(clauses, "batch_date <= ?")
		args = append(args, fmtDate(*f.DateTo))
	}
	if f.ClientCode != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM settlement_details d
			WHERE d.batch_id = settlement_batches.batch_id AND d.client_code = ?)`)
		args = append(args, f.ClientCode)
	}
	// Amount bounds compare numerically; CAST is only used for filtering,
	// stored values stay exact decimal strings.
	if f.AmountMin != nil {
		clauses = append(clauses, "CAST(total_amount AS REAL) >= ?")
		args = append(args, f.AmountMin.InexactFloat64())
	}
	if f.AmountMax != nil {
		clauses = append(clauses, "CAST(total_amount AS REAL) <= ?")
		args = append(args, f.AmountMax.InexactFloat64())
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		selectBatchCols+" FROM settlement_batches"+where+
			" ORDER BY batch_date DESC, created_at DESC LIMIT ?",
		append(args, limit)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []domain.SettlementBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (s *SettlementStore) ListDetails(ctx context.Context, batchID uuid.UUID) ([]domain.SettlementDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT settlement_id, batch_id, txn_id, client_code, transaction_amount,
		        settlement_amount, processing_fee, gst_amount, net_amount,
		        fee_percent, gst_percent, status, bank_reference, utr_number,
		        remarks, settlement_date, created_at
		 FROM settlement_details WHERE batch_id = ? ORDER BY created_at, txn_id`,
		batchID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []domain.SettlementDetail
	for rows.Next() {
		var (
			d                          domain.SettlementDetail
			sid, bid                   string
			amt, setAmt, fee, gst, net string
			feePct, gstPct             string
			status                     string
			settleDate                 sql.NullString
			createdAt                  string
		)
		err := rows.Scan(&sid, &bid, &d.TxnID, &d.ClientCode, &amt, &setAmt,
			&fee, &gst, &net, &feePct, &gstPct, &status, &d.BankReference,
			&d.UTRNumber, &d.Remarks, &settleDate, &createdAt)
		if err != nil {
			return nil, err
		}
		d.SettlementID, _ = uuid.Parse(sid)
		d.BatchID, _ = uuid.Parse(bid)
		d.TransactionAmount = parseDec(amt)
		d.SettlementAmount = parseDec(setAmt)
		d.ProcessingFee = parseDec(fee)
		d.GSTAmount = parseDec(gst)
		d.NetAmount = parseDec(net)
		d.FeePercent = parseDec(feePct)
		d.GSTPercent = parseDec(gstPct)
		d.Status = domain.DetailStatus(status)
		if settleDate.Valid {
			d.SettlementDate = parseTimePtr(&settleDate.String)
		}
		d.CreatedAt = parseTime(createdAt)
		details = append(details, d)
	}
	return details, rows.Err()
}

// MarkProcessing moves batch and details to PROCESSING. The conditional
// update is the state-machine guard: zero rows affected means the batch is
// missing or not in a processable state.
func (s *SettlementStore) MarkProcessing(ctx context.Context, batchID uuid.UUID, actor string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE settlement_batches
		 SET status = 'PROCESSING', processed_at = ?, processed_by = ?
		 WHERE batch_id = ? AND status IN ('PENDING','APPROVED')`,
		fmtTime(at), actor, batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.stateConflict(ctx, tx, batchID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE settlement_details SET status = 'PROCESSING', settlement_date = ?
		 WHERE batch_id = ?`,
		fmtTime(at), batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("mark details processing: %w", err)
	}

	return tx.Commit()
}

func (s *SettlementStore) ApproveBatch(ctx context.Context, batchID uuid.UUID, actor string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE settlement_batches SET status = 'APPROVED', processed_by = ?
		 WHERE batch_id = ? AND status = 'PENDING'`,
		actor, batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("approve batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.stateConflict(ctx, s.db, batchID)
	}
	return nil
}

func (s *SettlementStore) CancelBatch(ctx context.Context, batchID uuid.UUID, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE settlement_batches SET status = 'CANCELLED', processed_by = ?
		 WHERE batch_id = ? AND status IN ('PENDING','APPROVED')`,
		actor, batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("cancel batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.stateConflict(ctx, tx, batchID)
	}

	// Ledger stays untouched; the transactions remain eligible for a later
	// batch date.
	_, err = tx.ExecContext(ctx,
		`UPDATE settlement_details SET status = 'ON_HOLD', remarks = 'batch cancelled'
		 WHERE batch_id = ?`,
		batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("park details: %w", err)
	}

	return tx.Commit()
}

// CompleteBatch is the dual-write boundary: batch completion, detail
// settlement and the ledger write-back commit or roll back together. The
// write-back updates only rows still unsettled, keyed by transaction id, so
// a retried completion converges without re-marking settled transactions.
func (s *SettlementStore) CompleteBatch(ctx context.Context, batchID uuid.UUID, receipt *domain.RailReceipt, settledAt time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM settlement_batches WHERE batch_id = ?",
		batchID.String()).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, &domain.ErrNotFound{Resource: "settlement batch", ID: batchID.String()}
	}
	if err != nil {
		return 0, fmt.Errorf("load batch: %w", err)
	}
	if domain.BatchStatus(status) != domain.BatchProcessing {
		return 0, &domain.ErrStateConflict{
			Resource: "settlement batch",
			ID:       batchID.String(),
			Current:  status,
		}
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT txn_id FROM settlement_details WHERE batch_id = ?",
		batchID.String())
	if err != nil {
		return 0, fmt.Errorf("load detail txn ids: %w", err)
	}
	var ids []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// Verify coverage before touching anything: every detail's transaction
	// must exist in the ledger or COMPLETED would lie about the write-back.
	var covered int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE txn_id IN ("+placeholders(len(ids))+")",
		ids...).Scan(&covered)
	if err != nil {
		return 0, fmt.Errorf("coverage check: %w", err)
	}
	if covered < len(ids) {
		return 0, &domain.ErrConsistency{
			BatchID:  batchID.String(),
			Expected: len(ids),
			Covered:  covered,
		}
	}

	writeBackArgs := append([]any{fmtTime(settledAt), receipt.UTRNumber}, ids...)
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions
		 SET is_settled = 1, settlement_status = 'SETTLED',
		     settlement_date = ?, settlement_utr = ?
		 WHERE txn_id IN (`+placeholders(len(ids))+`) AND is_settled = 0`,
		writeBackArgs...,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger write-back: %w", err)
	}
	written, _ := res.RowsAffected()

	_, err = tx.ExecContext(ctx,
		`UPDATE settlement_details
		 SET status = 'SETTLED', settlement_date = ?, utr_number = ?, bank_reference = ?
		 WHERE batch_id = ?`,
		fmtTime(settledAt), receipt.UTRNumber, receipt.Reference, batchID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("settle details: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE settlement_batches SET status = 'COMPLETED' WHERE batch_id = ?",
		batchID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("complete batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(written), nil
}

func (s *SettlementStore) FailBatch(ctx context.Context, batchID uuid.UUID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE settlement_batches SET status = 'FAILED', failure_reason = ?
		 WHERE batch_id = ? AND status IN ('PENDING','PROCESSING')`,
		reason, batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("fail batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.stateConflict(ctx, tx, batchID)
	}

	// Details must not be left PROCESSING.
	_, err = tx.ExecContext(ctx,
		`UPDATE settlement_details SET status = 'FAILED', remarks = ?
		 WHERE batch_id = ?`,
		reason, batchID.String(),
	)
	if err != nil {
		return fmt.Errorf("fail details: %w", err)
	}

	return tx.Commit()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// stateConflict distinguishes a missing batch from an illegal transition.
// Callers holding an open transaction must pass it as q: querying the pool
// here would deadlock once the pool is exhausted by that same transaction.
func (s *SettlementStore) stateConflict(ctx context.Context, q rowQuerier, batchID uuid.UUID) error {
	var status string
	err := q.QueryRowContext(ctx,
		"SELECT status FROM settlement_batches WHERE batch_id = ?",
		batchID.String()).Scan(&status)
	if err == sql.ErrNoRows {
		return &domain.ErrNotFound{Resource: "settlement batch", ID: batchID.String()}
	}
	if err != nil {
		return err
	}
	return &domain.ErrStateConflict{
		Resource: "settlement batch",
		ID:       batchID.String(),
		Current:  status,
	}
}

const selectBatchCols = `SELECT batch_id, batch_date, total_transactions,
	total_amount, processing_fee, gst_amount, net_settlement_amount, status,
	failure_reason, created_at, processed_at, processed_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*domain.SettlementBatch, error) {
	var (
		b                    domain.SettlementBatch
		id, date             string
		total, fee, gst, net string
		status, createdAt    string
		processedAt          sql.NullString
	)
	err := row.Scan(&id, &date, &b.TotalTransactions, &total, &fee, &gst, &net,
		&status, &b.FailureReason, &createdAt, &processedAt, &b.ProcessedBy)
	if err != nil {
		return nil, err
	}
	b.BatchID, _ = uuid.Parse(id)
	b.BatchDate = parseDate(date)
	b.TotalAmount = parseDec(total)
	b.ProcessingFee = parseDec(fee)
	b.GSTAmount = parseDec(gst)
	b.NetSettlementAmount = parseDec(net)
	b.Status = domain.BatchStatus(status)
	b.CreatedAt = parseTime(createdAt)
	if processedAt.Valid {
		b.ProcessedAt = parseTimePtr(&processedAt.String)
	}
	return &b, nil
}
