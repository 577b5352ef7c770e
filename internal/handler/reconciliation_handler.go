package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/service"
)

// ============================================================
// Reconciliation
// ============================================================

type reconciliationResponse struct {
	ReconciliationID    string          `json:"reconciliation_id"`
	BatchID             string          `json:"batch_id"`
	BankStatementAmount decimal.Decimal `json:"bank_statement_amount"`
	SystemAmount        decimal.Decimal `json:"system_amount"`
	DifferenceAmount    decimal.Decimal `json:"difference_amount"`
	Status              string          `json:"status"`
	Remarks             string          `json:"remarks,omitempty"`
	ReconciledBy        string          `json:"reconciled_by,omitempty"`
	ReconciledAt        string          `json:"reconciled_at,omitempty"`
	CreatedAt           string          `json:"created_at"`
}

func toReconciliationResponse(rec *domain.SettlementReconciliation) reconciliationResponse {
	resp := reconciliationResponse{
		ReconciliationID:    rec.ReconciliationID.String(),
		BatchID:             rec.BatchID.String(),
		BankStatementAmount: rec.BankStatementAmount,
		SystemAmount:        rec.SystemAmount,
		DifferenceAmount:    rec.DifferenceAmount,
		Status:              string(rec.Status),
		Remarks:             rec.Remarks,
		ReconciledBy:        rec.ReconciledBy,
		CreatedAt:           rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.ReconciledAt != nil {
		resp.ReconciledAt = rec.ReconciledAt.Format(time.RFC3339)
	}
	return resp
}

func createReconciliationHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliations")
		defer span.End()

		var req struct {
			BatchID             string          `json:"batch_id"`
			BankStatementAmount decimal.Decimal `json:"bank_statement_amount"`
			Remarks             string          `json:"remarks,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		batchID, err := uuid.Parse(req.BatchID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "batch_id must be a valid uuid")
			return
		}
		span.SetAttributes(attribute.String("batch.id", batchID.String()))

		rec, err := svc.Create(ctx, batchID, req.BankStatementAmount, req.Remarks, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, toReconciliationResponse(rec))
	}
}

func updateReconciliationStatusHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/reconciliations/{reconciliationId}/status")
		defer span.End()

		id, ok := uuidParam(w, r, "reconciliationId")
		if !ok {
			return
		}

		var req struct {
			Status  string `json:"status"`
			Remarks string `json:"remarks,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Status == "" {
			writeError(w, http.StatusBadRequest, "status is required")
			return
		}

		rec, err := svc.UpdateStatus(ctx, id, domain.ReconciliationStatus(req.Status), req.Remarks, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toReconciliationResponse(rec))
	}
}

func getReconciliationHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliations/{reconciliationId}")
		defer span.End()

		id, ok := uuidParam(w, r, "reconciliationId")
		if !ok {
			return
		}

		rec, err := svc.Get(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toReconciliationResponse(rec))
	}
}

func listOpenReconciliationsHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliations/open")
		defer span.End()

		recs, err := svc.ListOpen(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp := make([]reconciliationResponse, 0, len(recs))
		for i := range recs {
			resp = append(resp, toReconciliationResponse(&recs[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"reconciliations": resp})
	}
}

func listBatchReconciliationsHandler(svc *service.ReconciliationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/settlements/batches/{batchId}/reconciliations")
		defer span.End()

		batchID, ok := uuidParam(w, r, "batchId")
		if !ok {
			return
		}

		recs, err := svc.ListByBatch(ctx, batchID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp := make([]reconciliationResponse, 0, len(recs))
		for i := range recs {
			resp = append(resp, toReconciliationResponse(&recs[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"reconciliations": resp})
	}
}
