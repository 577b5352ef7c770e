// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// SettlementStore persists the settlement aggregate: batches plus their
// detail rows. Batch+details creation and batch completion (including the
// ledger write-back) are single atomic operations; a partial batch is never
// an observable state.
type SettlementStore interface {
	// CreateBatch persists the batch header and all detail rows in one
	// transaction. Detail rows whose ledger transaction was settled
	// concurrently are skipped; aggregate totals are derived from the rows
	// actually written. Returns ErrStateConflict when an active batch
	// already exists for the batch date.
	CreateBatch(ctx context.Context, batch *domain.SettlementBatch, details []domain.SettlementDetail) error

	GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.SettlementBatch, error)
	GetActiveBatchForDate(ctx context.Context, batchDate time.Time) (*domain.SettlementBatch, error)
	ListBatches(ctx context.Context, f domain.BatchFilter) ([]domain.SettlementBatch, error)
	ListDetails(ctx context.Context, batchID uuid.UUID) ([]domain.SettlementDetail, error)

	// MarkProcessing transitions batch and details to PROCESSING, stamping
	// the processing actor and timestamp. Legal only from PENDING or
	// APPROVED; otherwise ErrStateConflict.
	MarkProcessing(ctx context.Context, batchID uuid.UUID, actor string, at time.Time) error

	// ApproveBatch transitions PENDING → APPROVED.
	ApproveBatch(ctx context.Context, batchID uuid.UUID, actor string) error

	// CancelBatch transitions PENDING/APPROVED → CANCELLED and parks the
	// details ON_HOLD. The ledger is untouched so the transactions stay
	// eligible for a later batch date.
	CancelBatch(ctx context.Context, batchID uuid.UUID, actor string) error

	// CompleteBatch finishes processing in one transaction: batch →
	// COMPLETED, details → SETTLED with the rail receipt, and the ledger
	// write-back for exactly the batch's transaction ids. The write-back is
	// an idempotent update keyed by transaction id. If the ledger covers
	// fewer ids than the batch's details the whole transaction rolls back
	// and ErrConsistency is returned. Returns the number of ledger rows
	// newly marked settled.
	CompleteBatch(ctx context.Context, batchID uuid.UUID, receipt *domain.RailReceipt, settledAt time.Time) (int, error)

	// FailBatch transitions batch and details to FAILED, recording the
	// reason. The ledger is untouched.
	FailBatch(ctx context.Context, batchID uuid.UUID, reason string) error
}

// LedgerStore reads the external transaction ledger. Write-back on batch
// completion goes through SettlementStore.CompleteBatch so it shares the
// completion transaction.
type LedgerStore interface {
	// ListEligible returns successful, unsettled transactions whose
	// timestamp falls in [from, to).
	ListEligible(ctx context.Context, from, to time.Time) ([]domain.LedgerTransaction, error)

	GetTransaction(ctx context.Context, txnID string) (*domain.LedgerTransaction, error)
}

// ConfigStore persists per-client settlement configuration.
type ConfigStore interface {
	Get(ctx context.Context, clientCode string) (*domain.ClientSettlementConfig, error)

	// GetOrCreate returns the client's config, inserting the supplied
	// default if none exists. Concurrent callers converge on one row.
	GetOrCreate(ctx context.Context, def domain.ClientSettlementConfig) (*domain.ClientSettlementConfig, error)

	Update(ctx context.Context, clientCode string, upd domain.ConfigUpdate) (*domain.ClientSettlementConfig, error)
	Deactivate(ctx context.Context, clientCode string) error
	List(ctx context.Context) ([]domain.ClientSettlementConfig, error)
}

// ReconciliationStore persists bank statement comparisons.
type ReconciliationStore interface {
	Create(ctx context.Context, rec *domain.SettlementReconciliation) error
	Get(ctx context.Context, id uuid.UUID) (*domain.SettlementReconciliation, error)
	Update(ctx context.Context, rec *domain.SettlementReconciliation) error
	ListOpen(ctx context.Context) ([]domain.SettlementReconciliation, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.SettlementReconciliation, error)
}

// AnalyticsStore serves derived, read-only settlement aggregates.
type AnalyticsStore interface {
	Statistics(ctx context.Context, from, to time.Time) (*domain.SettlementStatistics, error)
	ClientSummary(ctx context.Context, clientCode string, from, to time.Time) (*domain.ClientSettlementSummary, error)
	CycleDistribution(ctx context.Context) ([]domain.CycleDistribution, error)
}

// BankRail moves a batch's net settlement amount to the destination bank.
// Implementations must be timeout-bounded and honour the idempotency key so
// a retried transfer for the same batch is never applied twice.
type BankRail interface {
	Transfer(ctx context.Context, req *domain.RailTransfer) (*domain.RailReceipt, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
