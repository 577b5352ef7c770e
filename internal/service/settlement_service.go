// Package service provides the business logic layer (use cases) of the
// settlement engine: batch processing, reconciliation, client configuration
// and derived analytics.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/fees"
	"github.com/paygrid/settlement-engine-go/internal/infra/observability"
	"github.com/paygrid/settlement-engine-go/internal/port"
)

var settlementTracer = otel.Tracer("service/settlement")

// SettlementService orchestrates eligibility selection, batch and detail
// creation, the processing state machine and the ledger write-back.
type SettlementService struct {
	batches     port.SettlementStore
	ledger      port.LedgerStore
	configs     *ConfigService
	rail        port.BankRail
	loc         *time.Location
	railTimeout time.Duration
	maxParallel int
	metrics     *observability.Metrics
	logger      *zap.Logger

	// leases serialize ProcessBatch per batch id. A second concurrent call
	// on the same batch is rejected, never double-executed.
	mu     sync.Mutex
	leases map[uuid.UUID]struct{}
}

// NewSettlementService creates the settlement processing service.
func NewSettlementService(
	batches port.SettlementStore,
	ledger port.LedgerStore,
	configs *ConfigService,
	rail port.BankRail,
	loc *time.Location,
	railTimeout time.Duration,
	maxParallel int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SettlementService {
	if maxParallel <= 0 {
		maxParallel = 16
	}
	return &SettlementService{
		batches:     batches,
		ledger:      ledger,
		configs:     configs,
		rail:        rail,
		loc:         loc,
		railTimeout: railTimeout,
		maxParallel: maxParallel,
		metrics:     metrics,
		logger:      logger,
		leases:      make(map[uuid.UUID]struct{}),
	}
}

// CreateBatch groups the batch date's eligible transactions into a new
// settlement batch. The batch, all detail rows and the derived aggregate
// totals are persisted as one atomic unit.
func (s *SettlementService) CreateBatch(ctx context.Context, batchDate time.Time, actor string) (*domain.SettlementBatch, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.CreateBatch")
	defer span.End()
	span.SetAttributes(attribute.String("batch.date", batchDate.Format(domain.BatchDateFormat)))

	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("create_batch", time.Since(start)) }()

	today := time.Now().In(s.loc)
	if civilDateAfter(batchDate, today) {
		return nil, &domain.ErrValidation{Field: "batch_date", Message: "batch date cannot be in the future"}
	}

	// Fast pre-check for a friendlier error; the partial unique index on
	// batch_date is what actually guarantees single-writer-per-date.
	if existing, err := s.batches.GetActiveBatchForDate(ctx, batchDate); err == nil {
		return nil, &domain.ErrStateConflict{
			Resource: "settlement batch",
			ID:       existing.BatchID.String(),
			Current:  string(existing.Status),
			Message:  "active batch already exists for " + batchDate.Format(domain.BatchDateFormat),
		}
	}

	from, to := domain.EligibilityWindow(batchDate, s.loc)
	txns, err := s.ledger.ListEligible(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, &domain.ErrNoEligibleTransactions{BatchDate: batchDate}
	}

	// Resolve every distinct client's configuration once per batch run,
	// lazily creating defaults where missing.
	codes := distinctClientCodes(txns)
	cfgs, err := s.configs.EnsureForClients(ctx, codes)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	batch := &domain.SettlementBatch{
		BatchID:     uuid.New(),
		BatchDate:   batchDate,
		Status:      domain.BatchPending,
		CreatedAt:   now,
		ProcessedBy: actor,
	}

	// Fee computation is pure and parallelizes cleanly; persistence stays
	// serialized inside the store transaction.
	details := make([]domain.SettlementDetail, len(txns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i := range txns {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			txn := &txns[i]
			cfg := cfgs[txn.ClientCode]
			b := fees.Calculate(txn.Amount, cfg.ProcessingFeePct, cfg.GSTPct)
			details[i] = domain.SettlementDetail{
				SettlementID:      uuid.New(),
				BatchID:           batch.BatchID,
				TxnID:             txn.TxnID,
				ClientCode:        txn.ClientCode,
				TransactionAmount: txn.Amount,
				SettlementAmount:  txn.Amount,
				ProcessingFee:     b.ProcessingFee,
				GSTAmount:         b.GST,
				NetAmount:         b.Net,
				FeePercent:        cfg.ProcessingFeePct,
				GSTPercent:        cfg.GSTPct,
				Status:            domain.DetailPending,
				CreatedAt:         now,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := s.batches.CreateBatch(ctx, batch, details); err != nil {
		return nil, err
	}

	s.metrics.IncrBatchCreated()
	s.logger.Info("settlement batch created",
		zap.String("batch_id", batch.BatchID.String()),
		zap.String("batch_date", batchDate.Format(domain.BatchDateFormat)),
		zap.Int("transactions", batch.TotalTransactions),
		zap.String("net_amount", batch.NetSettlementAmount.String()),
		zap.String("actor", actor),
	)
	return batch, nil
}

// ProcessBatch drives a batch through PROCESSING to COMPLETED or FAILED.
// Completion, detail settlement and the ledger write-back are one atomic
// operation; on rail failure the ledger is untouched so the transactions
// stay eligible for the next batch date.
//
// A batch already in PROCESSING may be retried once no other call holds its
// lease (crash recovery): the rail transfer is idempotent on the batch id
// and the write-back only touches still-unsettled rows, so a repeated call
// converges without double-settling.
func (s *SettlementService) ProcessBatch(ctx context.Context, batchID uuid.UUID, actor string) (*domain.SettlementBatch, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.ProcessBatch")
	defer span.End()
	span.SetAttributes(attribute.String("batch.id", batchID.String()))

	start := time.Now()
	defer func() { s.metrics.RecordOperationDuration("process_batch", time.Since(start)) }()

	if !s.acquireLease(batchID) {
		return nil, &domain.ErrStateConflict{
			Resource: "settlement batch",
			ID:       batchID.String(),
			Message:  "batch is already being processed",
		}
	}
	defer s.releaseLease(batchID)

	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	switch {
	case batch.Status.CanProcess():
		if err := s.batches.MarkProcessing(ctx, batchID, actor, time.Now().UTC()); err != nil {
			return nil, err
		}
	case batch.Status == domain.BatchProcessing:
		// Stale PROCESSING state from an interrupted run; resume.
		s.logger.Warn("resuming interrupted batch processing",
			zap.String("batch_id", batchID.String()))
	default:
		return nil, &domain.ErrStateConflict{
			Resource: "settlement batch",
			ID:       batchID.String(),
			Current:  string(batch.Status),
		}
	}

	railCtx, cancel := context.WithTimeout(ctx, s.railTimeout)
	defer cancel()

	receipt, err := s.rail.Transfer(railCtx, &domain.RailTransfer{
		IdempotencyKey:   batchID.String(),
		BatchID:          batchID,
		NetAmount:        batch.NetSettlementAmount,
		TransactionCount: batch.TotalTransactions,
		Currency:         "INR",
	})
	if err != nil {
		return nil, s.failBatch(ctx, batchID, err)
	}

	settledAt := time.Now().UTC()
	written, err := s.batches.CompleteBatch(ctx, batchID, receipt, settledAt)
	if err != nil {
		var consistency *domain.ErrConsistency
		if errors.As(err, &consistency) {
			// COMPLETED must imply full write-back; flag the batch instead.
			s.logger.Error("ledger write-back inconsistency, flagging batch",
				zap.String("batch_id", batchID.String()),
				zap.Int("expected", consistency.Expected),
				zap.Int("covered", consistency.Covered),
			)
			if failErr := s.batches.FailBatch(ctx, batchID, consistency.Error()); failErr != nil {
				s.logger.Error("failed to flag inconsistent batch",
					zap.String("batch_id", batchID.String()), zap.Error(failErr))
			}
			s.metrics.IncrBatchProcessed("failed")
			return nil, err
		}
		return nil, err
	}

	s.metrics.IncrBatchProcessed("completed")
	s.metrics.AddTransactionsSettled(written)
	s.logger.Info("settlement batch completed",
		zap.String("batch_id", batchID.String()),
		zap.String("utr", receipt.UTRNumber),
		zap.Int("ledger_rows_settled", written),
		zap.String("actor", actor),
	)

	return s.batches.GetBatch(ctx, batchID)
}

func (s *SettlementService) failBatch(ctx context.Context, batchID uuid.UUID, cause error) error {
	s.metrics.IncrRailError()
	s.metrics.IncrBatchProcessed("failed")
	s.logger.Error("bank rail transfer failed, failing batch",
		zap.String("batch_id", batchID.String()),
		zap.Error(cause),
	)
	if err := s.batches.FailBatch(ctx, batchID, cause.Error()); err != nil {
		s.logger.Error("could not mark batch failed",
			zap.String("batch_id", batchID.String()), zap.Error(err))
	}
	return cause
}

// ApproveBatch moves a PENDING batch to APPROVED.
func (s *SettlementService) ApproveBatch(ctx context.Context, batchID uuid.UUID, actor string) (*domain.SettlementBatch, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.ApproveBatch")
	defer span.End()

	if err := s.batches.ApproveBatch(ctx, batchID, actor); err != nil {
		return nil, err
	}
	s.logger.Info("settlement batch approved",
		zap.String("batch_id", batchID.String()), zap.String("actor", actor))
	return s.batches.GetBatch(ctx, batchID)
}

// CancelBatch cancels a PENDING or APPROVED batch. The ledger is untouched.
func (s *SettlementService) CancelBatch(ctx context.Context, batchID uuid.UUID, actor string) (*domain.SettlementBatch, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.CancelBatch")
	defer span.End()

	if err := s.batches.CancelBatch(ctx, batchID, actor); err != nil {
		return nil, err
	}
	s.logger.Info("settlement batch cancelled",
		zap.String("batch_id", batchID.String()), zap.String("actor", actor))
	return s.batches.GetBatch(ctx, batchID)
}

func (s *SettlementService) GetBatch(ctx context.Context, batchID uuid.UUID) (*domain.SettlementBatch, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.GetBatch")
	defer span.End()

	return s.batches.GetBatch(ctx, batchID)
}

func (s *SettlementService) GetBatchDetails(ctx context.Context, batchID uuid.UUID) ([]domain.SettlementDetail, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.GetBatchDetails")
	defer span.End()

	if _, err := s.batches.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.batches.ListDetails(ctx, batchID)
}

func (s *SettlementService) ListBatches(ctx context.Context, f domain.BatchFilter) ([]domain.SettlementBatch, error) {
	ctx, span := settlementTracer.Start(ctx, "SettlementService.ListBatches")
	defer span.End()

	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return nil, &domain.ErrValidation{Field: "date_from", Message: "date_from is after date_to"}
	}
	return s.batches.ListBatches(ctx, f)
}

func (s *SettlementService) acquireLease(batchID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.leases[batchID]; held {
		return false
	}
	s.leases[batchID] = struct{}{}
	return true
}

func (s *SettlementService) releaseLease(batchID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, batchID)
}

// civilDateAfter reports whether a's civil date is after b's.
func civilDateAfter(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad > bd
}

func distinctClientCodes(txns []domain.LedgerTransaction) []string {
	seen := make(map[string]struct{}, len(txns))
	var codes []string
	for i := range txns {
		code := txns[i].ClientCode
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes
}
