package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/infra/store"
)

func TestListEligibleWindowIsHalfOpen(t *testing.T) {
	db := openTestDB(t)
	ledger := store.NewLedgerStore(db)
	ctx := context.Background()

	from, to := domain.EligibilityWindow(testBatchDate, time.UTC)
	seedLedger(t, db, []domain.LedgerTransaction{
		ledgerTxn("AT-START", "CLI001", "100", from),
		ledgerTxn("MID", "CLI001", "100", from.Add(12*time.Hour)),
		ledgerTxn("AT-END", "CLI001", "100", to),
		ledgerTxn("BEFORE", "CLI001", "100", from.Add(-time.Second)),
	})

	got, err := ledger.ListEligible(ctx, from, to)
	if err != nil {
		t.Fatal(err)
	}

	ids := make(map[string]bool, len(got))
	for _, txn := range got {
		ids[txn.TxnID] = true
	}
	if !ids["AT-START"] {
		t.Error("transaction at window start must be included")
	}
	if !ids["MID"] {
		t.Error("mid-window transaction must be included")
	}
	if ids["AT-END"] {
		t.Error("transaction at window end must be excluded")
	}
	if ids["BEFORE"] {
		t.Error("transaction before the window must be excluded")
	}
}

func TestListEligibleSkipsFailedAndSettled(t *testing.T) {
	db := openTestDB(t)
	ledger := store.NewLedgerStore(db)
	ctx := context.Background()

	from, to := domain.EligibilityWindow(testBatchDate, time.UTC)
	mid := from.Add(6 * time.Hour)

	failed := ledgerTxn("FAILED", "CLI001", "100", mid)
	failed.Status = "FAILED"
	settled := ledgerTxn("SETTLED", "CLI001", "100", mid)
	settled.IsSettled = true
	lower := ledgerTxn("LOWER", "CLI001", "100", mid)
	lower.Status = "success"

	seedLedger(t, db, []domain.LedgerTransaction{
		ledgerTxn("OK", "CLI001", "100", mid), failed, settled, lower,
	})

	got, err := ledger.ListEligible(ctx, from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("eligible = %d, want 2 (OK and lowercase success)", len(got))
	}
	for _, txn := range got {
		if txn.TxnID == "FAILED" || txn.TxnID == "SETTLED" {
			t.Errorf("%s should not be eligible", txn.TxnID)
		}
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	db := openTestDB(t)
	ledger := store.NewLedgerStore(db)

	_, err := ledger.GetTransaction(context.Background(), "NOPE")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
