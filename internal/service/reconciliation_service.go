package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/infra/observability"
	"github.com/paygrid/settlement-engine-go/internal/port"
)

var reconTracer = otel.Tracer("service/reconciliation")

// ReconciliationService compares bank-reported settlement amounts against the
// system-computed batch nets and tracks the investigation workflow for
// mismatches.
type ReconciliationService struct {
	recons  port.ReconciliationStore
	batches port.SettlementStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewReconciliationService creates the reconciliation service.
func NewReconciliationService(
	recons port.ReconciliationStore,
	batches port.SettlementStore,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{recons: recons, batches: batches, metrics: metrics, logger: logger}
}

// Create records a bank statement comparison for a batch. The difference is
// always bank minus system; an exact match is auto-resolved as MATCHED with a
// reconciliation stamp, anything else starts life PENDING.
func (s *ReconciliationService) Create(ctx context.Context, batchID uuid.UUID, bankAmount decimal.Decimal, remarks, actor string) (*domain.SettlementReconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("batch.id", batchID.String()))

	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	system := batch.NetSettlementAmount
	diff := bankAmount.Sub(system)
	now := time.Now().UTC()

	rec := &domain.SettlementReconciliation{
		ReconciliationID:    uuid.New(),
		BatchID:             batchID,
		BankStatementAmount: bankAmount,
		SystemAmount:        system,
		DifferenceAmount:    diff,
		Status:              domain.ReconPending,
		Remarks:             remarks,
		CreatedAt:           now,
	}
	if diff.IsZero() {
		rec.Status = domain.ReconMatched
		rec.ReconciledBy = actor
		rec.ReconciledAt = &now
	}

	if err := s.recons.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.metrics.IncrReconciliation(string(rec.Status))
	if !diff.IsZero() {
		s.logger.Warn("settlement reconciliation difference",
			zap.String("batch_id", batchID.String()),
			zap.String("bank_amount", bankAmount.String()),
			zap.String("system_amount", system.String()),
			zap.String("difference", diff.String()),
		)
	} else {
		s.logger.Info("settlement reconciliation matched",
			zap.String("batch_id", batchID.String()),
			zap.String("amount", bankAmount.String()),
		)
	}
	return rec, nil
}

// UpdateStatus moves a reconciliation through its workflow. Only the
// transitions the status machine allows are accepted; MATCHED and RESOLVED
// stamp the reconciler and timestamp.
func (s *ReconciliationService) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.ReconciliationStatus, remarks, actor string) (*domain.SettlementReconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("reconciliation.id", id.String()))

	rec, err := s.recons.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !domain.ValidReconTransition(rec.Status, to) {
		return nil, &domain.ErrStateConflict{
			Resource: "reconciliation",
			ID:       id.String(),
			Current:  string(rec.Status),
			Message:  "cannot transition to " + string(to),
		}
	}

	rec.Status = to
	if remarks != "" {
		rec.Remarks = remarks
	}
	if to == domain.ReconMatched || to == domain.ReconResolved {
		now := time.Now().UTC()
		rec.ReconciledBy = actor
		rec.ReconciledAt = &now
	}

	if err := s.recons.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.metrics.IncrReconciliation(string(to))
	s.logger.Info("reconciliation status updated",
		zap.String("reconciliation_id", id.String()),
		zap.String("status", string(to)),
		zap.String("actor", actor),
	)
	return rec, nil
}

func (s *ReconciliationService) Get(ctx context.Context, id uuid.UUID) (*domain.SettlementReconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.Get")
	defer span.End()

	return s.recons.Get(ctx, id)
}

// ListOpen returns reconciliations still needing attention: everything not
// MATCHED or RESOLVED.
func (s *ReconciliationService) ListOpen(ctx context.Context) ([]domain.SettlementReconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.ListOpen")
	defer span.End()

	return s.recons.ListOpen(ctx)
}

func (s *ReconciliationService) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.SettlementReconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.ListByBatch")
	defer span.End()

	if _, err := s.batches.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.recons.ListByBatch(ctx, batchID)
}
