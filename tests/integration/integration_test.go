package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/handler"
	"github.com/paygrid/settlement-engine-go/internal/infra/bankrail"
	"github.com/paygrid/settlement-engine-go/internal/infra/cache"
	"github.com/paygrid/settlement-engine-go/internal/infra/observability"
	"github.com/paygrid/settlement-engine-go/internal/infra/resilience"
	"github.com/paygrid/settlement-engine-go/internal/infra/store"
	"github.com/paygrid/settlement-engine-go/internal/service"
)

// newEngine wires the full stack against a mock bank rail URL.
func newEngine(t *testing.T, railURL string) (http.Handler, *store.LedgerStore) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	ledger := store.NewLedgerStore(db)
	batches := store.NewSettlementStore(db)

	cb := resilience.NewCircuitBreaker("bank-rail-test")
	retryCfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	rail := bankrail.NewClient(&http.Client{Timeout: 5 * time.Second}, railURL, cb, retryCfg, logger)

	configs := service.NewConfigService(
		store.NewConfigStore(db),
		cache.New[domain.ClientSettlementConfig](5*time.Minute),
		metrics, logger)
	settlements := service.NewSettlementService(
		batches, ledger, configs, rail, time.UTC, 5*time.Second, 8, metrics, logger)
	recons := service.NewReconciliationService(
		store.NewReconciliationStore(db), batches, metrics, logger)
	analytics := service.NewAnalyticsService(store.NewAnalyticsStore(db), time.UTC, logger)

	router := handler.NewRouter(handler.Services{
		Settlements:     settlements,
		Reconciliations: recons,
		Configs:         configs,
		Analytics:       analytics,
	}, handler.AuthConfig{DevAuth: true}, metrics, logger)
	return router, ledger
}

func seedDay(t *testing.T, ledger *store.LedgerStore, date time.Time) {
	t.Helper()
	when := date.AddDate(0, 0, -1).Add(11 * time.Hour)
	txns := []domain.LedgerTransaction{
		{TxnID: "TXN001", ClientCode: "CLI001", ClientName: "Acme Retail",
			Amount: decimal.RequireFromString("25000"), Status: "SUCCESS", TransDate: when},
		{TxnID: "TXN002", ClientCode: "CLI001", ClientName: "Acme Retail",
			Amount: decimal.RequireFromString("3200.75"), Status: "SUCCESS", TransDate: when.Add(30 * time.Minute)},
		{TxnID: "TXN003", ClientCode: "CLI002", ClientName: "Bharat Goods",
			Amount: decimal.RequireFromString("1499.99"), Status: "SUCCESS", TransDate: when.Add(time.Hour)},
	}
	if err := ledger.SeedTransactions(context.Background(), txns); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "integration")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_SettlementFullFlow runs a daily settlement end to end:
// create, approve, process over a mock bank rail, then reconcile against the
// bank's reported amount.
func TestIntegration_SettlementFullFlow(t *testing.T) {
	var railCalls int
	var mu sync.Mutex
	railServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		railCalls++
		n := railCalls
		mu.Unlock()

		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("rail call missing Idempotency-Key header")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"reference":  fmt.Sprintf("REF-%06d", n),
			"utr_number": fmt.Sprintf("UTR20250610%06d", n),
			"status":     "ACCEPTED",
		})
	}))
	defer railServer.Close()

	router, ledger := newEngine(t, railServer.URL)
	seedDay(t, ledger, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))

	// Create the batch for the date.
	rec := do(t, router, http.MethodPost, "/v1/settlements/batches",
		map[string]string{"batch_date": "2025-06-10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var batch struct {
		BatchID             string          `json:"batch_id"`
		TotalTransactions   int             `json:"total_transactions"`
		TotalAmount         decimal.Decimal `json:"total_amount"`
		NetSettlementAmount decimal.Decimal `json:"net_settlement_amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatal(err)
	}
	if batch.TotalTransactions != 3 {
		t.Errorf("transactions = %d, want 3", batch.TotalTransactions)
	}
	if !batch.TotalAmount.Equal(decimal.RequireFromString("29700.74")) {
		t.Errorf("total = %s, want 29700.74", batch.TotalAmount)
	}

	// Approve and process.
	if rec := do(t, router, http.MethodPost, "/v1/settlements/batches/"+batch.BatchID+"/approve", nil); rec.Code != http.StatusOK {
		t.Fatalf("approve: got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, router, http.MethodPost, "/v1/settlements/batches/"+batch.BatchID+"/process", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process: got %d: %s", rec.Code, rec.Body.String())
	}
	var processed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &processed); err != nil {
		t.Fatal(err)
	}
	if processed.Status != "COMPLETED" {
		t.Fatalf("status = %s, want COMPLETED", processed.Status)
	}
	if railCalls != 1 {
		t.Errorf("rail calls = %d, want 1", railCalls)
	}

	// The bank statement matches the system amount exactly.
	rec = do(t, router, http.MethodPost, "/v1/reconciliations", map[string]any{
		"batch_id":              batch.BatchID,
		"bank_statement_amount": batch.NetSettlementAmount,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reconcile: got %d: %s", rec.Code, rec.Body.String())
	}
	var recon struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &recon); err != nil {
		t.Fatal(err)
	}
	if recon.Status != "MATCHED" {
		t.Errorf("reconciliation status = %s, want MATCHED", recon.Status)
	}

	// The settled day no longer yields a batch.
	rec = do(t, router, http.MethodPost, "/v1/settlements/batches",
		map[string]string{"batch_date": "2025-06-10"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("recreate settled date: expected 422, got %d", rec.Code)
	}
}

// TestIntegration_RailOutage fails the batch when the bank rail keeps
// erroring, and leaves the ledger eligible for a later retry.
func TestIntegration_RailOutage(t *testing.T) {
	railServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer railServer.Close()

	router, ledger := newEngine(t, railServer.URL)
	seedDay(t, ledger, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))

	rec := do(t, router, http.MethodPost, "/v1/settlements/batches",
		map[string]string{"batch_date": "2025-06-10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rec.Code)
	}
	var batch struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatal(err)
	}

	rec = do(t, router, http.MethodPost, "/v1/settlements/batches/"+batch.BatchID+"/process", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("process during outage: expected 502, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodGet, "/v1/settlements/batches/"+batch.BatchID, nil)
	var failed struct {
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &failed); err != nil {
		t.Fatal(err)
	}
	if failed.Status != "FAILED" || failed.FailureReason == "" {
		t.Errorf("batch = %+v, want FAILED with reason", failed)
	}

	// The failed date can be retried with a fresh batch.
	rec = do(t, router, http.MethodPost, "/v1/settlements/batches",
		map[string]string{"batch_date": "2025-06-10"})
	if rec.Code != http.StatusCreated {
		t.Errorf("retry after failure: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}
