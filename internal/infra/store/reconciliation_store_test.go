package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/infra/store"
)

func testRecon(batchID uuid.UUID, bank, system string) *domain.SettlementReconciliation {
	bankAmt := decimal.RequireFromString(bank)
	sysAmt := decimal.RequireFromString(system)
	rec := &domain.SettlementReconciliation{
		ReconciliationID:    uuid.New(),
		BatchID:             batchID,
		BankStatementAmount: bankAmt,
		SystemAmount:        sysAmt,
		DifferenceAmount:    bankAmt.Sub(sysAmt),
		Status:              domain.ReconPending,
		Remarks:             "daily statement",
		ReconciledBy:        "recon-job",
		CreatedAt:           time.Now().UTC(),
	}
	if rec.DifferenceAmount.IsZero() {
		rec.Status = domain.ReconMatched
	}
	return rec
}

func TestReconciliationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := store.NewReconciliationStore(db)
	ctx := context.Background()

	batch := createTestBatch(t, db, threeTxns())
	rec := testRecon(batch.BatchID, "13500.49", "13236.74")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, rec.ReconciliationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BatchID != batch.BatchID {
		t.Errorf("batch id = %s, want %s", got.BatchID, batch.BatchID)
	}
	if !got.DifferenceAmount.Equal(decimal.RequireFromString("263.75")) {
		t.Errorf("difference = %s, want 263.75", got.DifferenceAmount)
	}
	if got.Status != domain.ReconPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
	if got.ReconciledAt != nil {
		t.Error("reconciled_at set before resolution")
	}

	var notFound *domain.ErrNotFound
	if _, err := s.Get(ctx, uuid.New()); !errors.As(err, &notFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestReconciliationUpdateStampsResolution(t *testing.T) {
	db := openTestDB(t)
	s := store.NewReconciliationStore(db)
	ctx := context.Background()

	batch := createTestBatch(t, db, threeTxns())
	rec := testRecon(batch.BatchID, "13000.00", "13236.74")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	rec.Status = domain.ReconResolved
	rec.Remarks = "bank charge reversal confirmed"
	rec.ReconciledBy = "ops1"
	rec.ReconciledAt = &now
	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(ctx, rec.ReconciliationID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ReconResolved {
		t.Errorf("status = %s, want RESOLVED", got.Status)
	}
	if got.ReconciledAt == nil || !got.ReconciledAt.Equal(now) {
		t.Errorf("reconciled_at = %v, want %v", got.ReconciledAt, now)
	}
	if got.ReconciledBy != "ops1" {
		t.Errorf("reconciled_by = %q, want ops1", got.ReconciledBy)
	}

	var notFound *domain.ErrNotFound
	missing := testRecon(batch.BatchID, "1", "1")
	if err := s.Update(ctx, missing); !errors.As(err, &notFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestListOpenExcludesSettledStatuses(t *testing.T) {
	db := openTestDB(t)
	s := store.NewReconciliationStore(db)
	ctx := context.Background()

	batch := createTestBatch(t, db, threeTxns())
	byStatus := map[domain.ReconciliationStatus]uuid.UUID{}
	for _, status := range []domain.ReconciliationStatus{
		domain.ReconPending, domain.ReconMatched, domain.ReconMismatched,
		domain.ReconInvestigating, domain.ReconResolved,
	} {
		rec := testRecon(batch.BatchID, "100.00", "90.00")
		rec.Status = status
		if err := s.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
		byStatus[status] = rec.ReconciliationID
	}

	open, err := s.ListOpen(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 3 {
		t.Fatalf("open count = %d, want 3", len(open))
	}
	for _, rec := range open {
		if rec.Status == domain.ReconMatched || rec.Status == domain.ReconResolved {
			t.Errorf("status %s should not be listed as open", rec.Status)
		}
	}

	byBatch, err := s.ListByBatch(ctx, batch.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byBatch) != 5 {
		t.Fatalf("batch count = %d, want 5", len(byBatch))
	}
	if other, err := s.ListByBatch(ctx, uuid.New()); err != nil || len(other) != 0 {
		t.Errorf("unknown batch: got %d recs, err %v", len(other), err)
	}
}
