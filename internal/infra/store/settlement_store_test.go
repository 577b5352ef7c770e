package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/infra/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// The pool would otherwise hand each connection its own empty in-memory
	// database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

var testBatchDate = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func seedLedger(t *testing.T, db *sql.DB, txns []domain.LedgerTransaction) {
	t.Helper()
	if err := store.NewLedgerStore(db).SeedTransactions(context.Background(), txns); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

func ledgerTxn(id, client, amount string, when time.Time) domain.LedgerTransaction {
	return domain.LedgerTransaction{
		TxnID:      id,
		ClientCode: client,
		ClientName: client + " Pvt Ltd",
		Amount:     decimal.RequireFromString(amount),
		Status:     "SUCCESS",
		TransDate:  when,
	}
}

func testDetail(batchID uuid.UUID, txn *domain.LedgerTransaction) domain.SettlementDetail {
	fee := txn.Amount.Mul(decimal.NewFromInt(2)).Div(decimal.NewFromInt(100))
	gst := fee.Mul(decimal.NewFromInt(18)).Div(decimal.NewFromInt(100))
	return domain.SettlementDetail{
		SettlementID:      uuid.New(),
		BatchID:           batchID,
		TxnID:             txn.TxnID,
		ClientCode:        txn.ClientCode,
		TransactionAmount: txn.Amount,
		SettlementAmount:  txn.Amount,
		ProcessingFee:     fee,
		GSTAmount:         gst,
		NetAmount:         txn.Amount.Sub(fee).Sub(gst).Round(2),
		FeePercent:        decimal.NewFromInt(2),
		GSTPercent:        decimal.NewFromInt(18),
		Status:            domain.DetailPending,
		CreatedAt:         time.Now().UTC(),
	}
}

// createTestBatch seeds the ledger and persists a batch over the given
// transactions.
func createTestBatch(t *testing.T, db *sql.DB, txns []domain.LedgerTransaction) *domain.SettlementBatch {
	t.Helper()
	seedLedger(t, db, txns)

	batch := &domain.SettlementBatch{
		BatchID:     uuid.New(),
		BatchDate:   testBatchDate,
		Status:      domain.BatchPending,
		CreatedAt:   time.Now().UTC(),
		ProcessedBy: "tester",
	}
	details := make([]domain.SettlementDetail, 0, len(txns))
	for i := range txns {
		details = append(details, testDetail(batch.BatchID, &txns[i]))
	}
	if err := store.NewSettlementStore(db).CreateBatch(context.Background(), batch, details); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

func threeTxns() []domain.LedgerTransaction {
	when := testBatchDate.AddDate(0, 0, -1).Add(10 * time.Hour)
	return []domain.LedgerTransaction{
		ledgerTxn("TXN001", "CLI001", "10000", when),
		ledgerTxn("TXN002", "CLI001", "2500.50", when.Add(time.Hour)),
		ledgerTxn("TXN003", "CLI002", "999.99", when.Add(2*time.Hour)),
	}
}

func TestCreateBatchAggregatesMatchDetails(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	batch := createTestBatch(t, db, threeTxns())

	if batch.TotalTransactions != 3 {
		t.Fatalf("total transactions = %d, want 3", batch.TotalTransactions)
	}

	details, err := s.ListDetails(context.Background(), batch.BatchID)
	if err != nil {
		t.Fatalf("list details: %v", err)
	}
	if len(details) != 3 {
		t.Fatalf("details = %d, want 3", len(details))
	}

	var total, fee, gst, net decimal.Decimal
	for _, d := range details {
		if d.Status != domain.DetailPending {
			t.Errorf("detail %s status = %s, want PENDING", d.TxnID, d.Status)
		}
		total = total.Add(d.SettlementAmount)
		fee = fee.Add(d.ProcessingFee)
		gst = gst.Add(d.GSTAmount)
		net = net.Add(d.NetAmount)
	}

	got, err := s.GetBatch(context.Background(), batch.BatchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !got.TotalAmount.Equal(total) {
		t.Errorf("total amount = %s, want %s", got.TotalAmount, total)
	}
	if !got.ProcessingFee.Equal(fee) {
		t.Errorf("processing fee = %s, want %s", got.ProcessingFee, fee)
	}
	if !got.GSTAmount.Equal(gst) {
		t.Errorf("gst amount = %s, want %s", got.GSTAmount, gst)
	}
	if !got.NetSettlementAmount.Equal(net) {
		t.Errorf("net amount = %s, want %s", got.NetSettlementAmount, net)
	}
	if got.Status != domain.BatchPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if !got.BatchDate.Equal(testBatchDate) {
		t.Errorf("batch date = %v, want %v", got.BatchDate, testBatchDate)
	}
}

func TestCreateBatchRejectsSecondActiveForDate(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	createTestBatch(t, db, threeTxns())

	second := &domain.SettlementBatch{
		BatchID:   uuid.New(),
		BatchDate: testBatchDate,
		Status:    domain.BatchPending,
		CreatedAt: time.Now().UTC(),
	}
	err := s.CreateBatch(context.Background(), second, nil)

	var conflict *domain.ErrStateConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestCreateBatchSkipsAlreadySettled(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)

	txns := threeTxns()
	txns[1].IsSettled = true
	seedLedger(t, db, txns)

	batch := &domain.SettlementBatch{
		BatchID:   uuid.New(),
		BatchDate: testBatchDate,
		Status:    domain.BatchPending,
		CreatedAt: time.Now().UTC(),
	}
	var details []domain.SettlementDetail
	for i := range txns {
		details = append(details, testDetail(batch.BatchID, &txns[i]))
	}
	if err := s.CreateBatch(context.Background(), batch, details); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if batch.TotalTransactions != 2 {
		t.Errorf("total transactions = %d, want 2 (settled row skipped)", batch.TotalTransactions)
	}
}

func TestCreateBatchAllSettledIsNoEligible(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)

	txns := threeTxns()
	for i := range txns {
		txns[i].IsSettled = true
	}
	seedLedger(t, db, txns)

	batch := &domain.SettlementBatch{
		BatchID:   uuid.New(),
		BatchDate: testBatchDate,
		Status:    domain.BatchPending,
		CreatedAt: time.Now().UTC(),
	}
	var details []domain.SettlementDetail
	for i := range txns {
		details = append(details, testDetail(batch.BatchID, &txns[i]))
	}
	err := s.CreateBatch(context.Background(), batch, details)

	var noEligible *domain.ErrNoEligibleTransactions
	if !errors.As(err, &noEligible) {
		t.Fatalf("expected ErrNoEligibleTransactions, got %v", err)
	}

	// The rolled-back header must not block a later attempt for the date.
	if _, err := s.GetActiveBatchForDate(context.Background(), testBatchDate); err == nil {
		t.Error("rolled-back batch should not be visible")
	}
}

func TestMarkProcessingGuards(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	if err := s.MarkProcessing(ctx, batch.BatchID, "ops", time.Now().UTC()); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	got, _ := s.GetBatch(ctx, batch.BatchID)
	if got.Status != domain.BatchProcessing {
		t.Fatalf("status = %s, want PROCESSING", got.Status)
	}
	if got.ProcessedAt == nil || got.ProcessedBy != "ops" {
		t.Error("processing stamp missing")
	}

	err := s.MarkProcessing(ctx, batch.BatchID, "ops", time.Now().UTC())
	var conflict *domain.ErrStateConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("second mark: expected ErrStateConflict, got %v", err)
	}
	if conflict.Current != string(domain.BatchProcessing) {
		t.Errorf("conflict current = %s, want PROCESSING", conflict.Current)
	}

	var notFound *domain.ErrNotFound
	if err := s.MarkProcessing(ctx, uuid.New(), "ops", time.Now().UTC()); !errors.As(err, &notFound) {
		t.Errorf("unknown batch: expected ErrNotFound, got %v", err)
	}
}

func TestApproveThenCancelParksDetails(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ledger := store.NewLedgerStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	if err := s.ApproveBatch(ctx, batch.BatchID, "ops"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.CancelBatch(ctx, batch.BatchID, "ops"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := s.GetBatch(ctx, batch.BatchID)
	if got.Status != domain.BatchCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}

	details, _ := s.ListDetails(ctx, batch.BatchID)
	for _, d := range details {
		if d.Status != domain.DetailOnHold {
			t.Errorf("detail %s status = %s, want ON_HOLD", d.TxnID, d.Status)
		}
	}

	// Cancellation never touches the ledger: all rows stay eligible.
	txn, err := ledger.GetTransaction(ctx, "TXN001")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.IsSettled {
		t.Error("cancelled batch must not settle ledger rows")
	}

	// A new batch for the same date is now allowed.
	if _, err := s.GetActiveBatchForDate(ctx, testBatchDate); err == nil {
		t.Error("cancelled batch should not count as active")
	}

	var conflict *domain.ErrStateConflict
	if err := s.CancelBatch(ctx, batch.BatchID, "ops"); !errors.As(err, &conflict) {
		t.Errorf("cancel twice: expected ErrStateConflict, got %v", err)
	}
}

func TestCompleteBatchSettlesLedgerAtomically(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ledger := store.NewLedgerStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	if err := s.MarkProcessing(ctx, batch.BatchID, "ops", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	receipt := &domain.RailReceipt{Reference: "REF-1", UTRNumber: "UTR20250610000001"}
	settledAt := time.Now().UTC()
	written, err := s.CompleteBatch(ctx, batch.BatchID, receipt, settledAt)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if written != 3 {
		t.Errorf("written = %d, want 3", written)
	}

	got, _ := s.GetBatch(ctx, batch.BatchID)
	if got.Status != domain.BatchCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}

	details, _ := s.ListDetails(ctx, batch.BatchID)
	for _, d := range details {
		if d.Status != domain.DetailSettled {
			t.Errorf("detail %s status = %s, want SETTLED", d.TxnID, d.Status)
		}
		if d.UTRNumber != receipt.UTRNumber || d.BankReference != receipt.Reference {
			t.Errorf("detail %s missing receipt stamp", d.TxnID)
		}
	}

	for _, id := range []string{"TXN001", "TXN002", "TXN003"} {
		txn, err := ledger.GetTransaction(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !txn.IsSettled || txn.SettlementStatus != "SETTLED" {
			t.Errorf("%s not settled in ledger", id)
		}
		if txn.SettlementUTR != receipt.UTRNumber {
			t.Errorf("%s utr = %q, want %q", id, txn.SettlementUTR, receipt.UTRNumber)
		}
		if txn.SettlementDate == nil {
			t.Errorf("%s missing settlement date", id)
		}
	}

	// COMPLETED is terminal: a second completion is rejected.
	var conflict *domain.ErrStateConflict
	if _, err := s.CompleteBatch(ctx, batch.BatchID, receipt, settledAt); !errors.As(err, &conflict) {
		t.Errorf("second complete: expected ErrStateConflict, got %v", err)
	}
}

func TestCompleteBatchWriteBackIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	if err := s.MarkProcessing(ctx, batch.BatchID, "ops", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	// One ledger row was settled out of band; the write-back must skip it.
	if _, err := db.Exec(
		"UPDATE transactions SET is_settled = 1, settlement_utr = 'UTR-OLD' WHERE txn_id = 'TXN002'",
	); err != nil {
		t.Fatal(err)
	}

	receipt := &domain.RailReceipt{Reference: "REF-1", UTRNumber: "UTR-NEW"}
	written, err := s.CompleteBatch(ctx, batch.BatchID, receipt, time.Now().UTC())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if written != 2 {
		t.Errorf("written = %d, want 2 (pre-settled row skipped)", written)
	}

	var utr string
	if err := db.QueryRow("SELECT settlement_utr FROM transactions WHERE txn_id = 'TXN002'").Scan(&utr); err != nil {
		t.Fatal(err)
	}
	if utr != "UTR-OLD" {
		t.Errorf("pre-settled row overwritten: utr = %q", utr)
	}
}

func TestCompleteBatchCoverageShortfallRollsBack(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	if err := s.MarkProcessing(ctx, batch.BatchID, "ops", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	// Simulate a ledger row vanishing between batch creation and completion.
	if _, err := db.Exec("DELETE FROM transactions WHERE txn_id = 'TXN003'"); err != nil {
		t.Fatal(err)
	}

	_, err := s.CompleteBatch(ctx, batch.BatchID, &domain.RailReceipt{UTRNumber: "UTR"}, time.Now().UTC())
	var consistency *domain.ErrConsistency
	if !errors.As(err, &consistency) {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
	if consistency.Expected != 3 || consistency.Covered != 2 {
		t.Errorf("coverage = %d/%d, want 2/3", consistency.Covered, consistency.Expected)
	}

	// Everything rolled back: batch still PROCESSING, ledger untouched.
	got, _ := s.GetBatch(ctx, batch.BatchID)
	if got.Status != domain.BatchProcessing {
		t.Errorf("status = %s, want PROCESSING after rollback", got.Status)
	}
	var settled int
	if err := db.QueryRow("SELECT COUNT(*) FROM transactions WHERE is_settled = 1").Scan(&settled); err != nil {
		t.Fatal(err)
	}
	if settled != 0 {
		t.Errorf("%d ledger rows settled after rollback, want 0", settled)
	}
}

func TestFailBatchKeepsLedgerEligible(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ledger := store.NewLedgerStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	if err := s.MarkProcessing(ctx, batch.BatchID, "ops", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if err := s.FailBatch(ctx, batch.BatchID, "bank rail unavailable"); err != nil {
		t.Fatalf("fail batch: %v", err)
	}

	got, _ := s.GetBatch(ctx, batch.BatchID)
	if got.Status != domain.BatchFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if got.FailureReason != "bank rail unavailable" {
		t.Errorf("failure reason = %q", got.FailureReason)
	}

	details, _ := s.ListDetails(ctx, batch.BatchID)
	for _, d := range details {
		if d.Status != domain.DetailFailed {
			t.Errorf("detail %s status = %s, want FAILED", d.TxnID, d.Status)
		}
	}

	// Failed settlements leave the ledger eligible for the next run.
	from, to := domain.EligibilityWindow(testBatchDate, time.UTC)
	eligible, err := ledger.ListEligible(ctx, from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(eligible) != 3 {
		t.Errorf("eligible after failure = %d, want 3", len(eligible))
	}

	// FAILED does not hold the active-date slot.
	if _, err := s.GetActiveBatchForDate(ctx, testBatchDate); err == nil {
		t.Error("failed batch should not count as active")
	}
}

func TestListBatchesFilters(t *testing.T) {
	db := openTestDB(t)
	s := store.NewSettlementStore(db)
	ctx := context.Background()
	batch := createTestBatch(t, db, threeTxns())

	byStatus, err := s.ListBatches(ctx, domain.BatchFilter{Status: domain.BatchPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 1 || byStatus[0].BatchID != batch.BatchID {
		t.Errorf("status filter returned %d batches", len(byStatus))
	}

	none, err := s.ListBatches(ctx, domain.BatchFilter{Status: domain.BatchCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no completed batches, got %d", len(none))
	}

	from := testBatchDate.AddDate(0, 0, -1)
	to := testBatchDate.AddDate(0, 0, 1)
	byDate, err := s.ListBatches(ctx, domain.BatchFilter{DateFrom: &from, DateTo: &to})
	if err != nil {
		t.Fatal(err)
	}
	if len(byDate) != 1 {
		t.Errorf("date filter returned %d batches, want 1", len(byDate))
	}

	byClient, err := s.ListBatches(ctx, domain.BatchFilter{ClientCode: "CLI002"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byClient) != 1 {
		t.Errorf("client filter returned %d batches, want 1", len(byClient))
	}
	if got, _ := s.ListBatches(ctx, domain.BatchFilter{ClientCode: "NOPE"}); len(got) != 0 {
		t.Errorf("unknown client returned %d batches", len(got))
	}

	min := decimal.NewFromInt(100000)
	if got, _ := s.ListBatches(ctx, domain.BatchFilter{AmountMin: &min}); len(got) != 0 {
		t.Errorf("amount_min filter returned %d batches, want 0", len(got))
	}
}
