package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/service"
)

// ============================================================
// Settlement Batches
// ============================================================

type batchResponse struct {
	BatchID             string          `json:"batch_id"`
	BatchDate           string          `json:"batch_date"`
	TotalTransactions   int             `json:"total_transactions"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	ProcessingFee       decimal.Decimal `json:"processing_fee"`
	GSTAmount           decimal.Decimal `json:"gst_amount"`
	NetSettlementAmount decimal.Decimal `json:"net_settlement_amount"`
	Status              string          `json:"status"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	CreatedAt           string          `json:"created_at"`
	ProcessedAt         string          `json:"processed_at,omitempty"`
	ProcessedBy         string          `json:"processed_by,omitempty"`
}

func toBatchResponse(b *domain.SettlementBatch) batchResponse {
	resp := batchResponse{
		BatchID:             b.BatchID.String(),
		BatchDate:           b.BatchDate.Format(domain.BatchDateFormat),
		TotalTransactions:   b.TotalTransactions,
		TotalAmount:         b.TotalAmount,
		ProcessingFee:       b.ProcessingFee,
		GSTAmount:           b.GSTAmount,
		NetSettlementAmount: b.NetSettlementAmount,
		Status:              string(b.Status),
		FailureReason:       b.FailureReason,
		CreatedAt:           b.CreatedAt.Format(time.RFC3339),
		ProcessedBy:         b.ProcessedBy,
	}
	if b.ProcessedAt != nil {
		resp.ProcessedAt = b.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

type detailResponse struct {
	SettlementID      string          `json:"settlement_id"`
	BatchID           string          `json:"batch_id"`
	TxnID             string          `json:"txn_id"`
	ClientCode        string          `json:"client_code"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	SettlementAmount  decimal.Decimal `json:"settlement_amount"`
	ProcessingFee     decimal.Decimal `json:"processing_fee"`
	GSTAmount         decimal.Decimal `json:"gst_amount"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	FeePercent        decimal.Decimal `json:"fee_percent"`
	GSTPercent        decimal.Decimal `json:"gst_percent"`
	Status            string          `json:"status"`
	BankReference     string          `json:"bank_reference,omitempty"`
	UTRNumber         string          `json:"utr_number,omitempty"`
	Remarks           string          `json:"remarks,omitempty"`
	SettlementDate    string          `json:"settlement_date,omitempty"`
	CreatedAt         string          `json:"created_at"`
}

func toDetailResponse(d *domain.SettlementDetail) detailResponse {
	resp := detailResponse{
		SettlementID:      d.SettlementID.String(),
		BatchID:           d.BatchID.String(),
		TxnID:             d.TxnID,
		ClientCode:        d.ClientCode,
		TransactionAmount: d.TransactionAmount,
		SettlementAmount:  d.SettlementAmount,
		ProcessingFee:     d.ProcessingFee,
		GSTAmount:         d.GSTAmount,
		NetAmount:         d.NetAmount,
		FeePercent:        d.FeePercent,
		GSTPercent:        d.GSTPercent,
		Status:            string(d.Status),
		BankReference:     d.BankReference,
		UTRNumber:         d.UTRNumber,
		Remarks:           d.Remarks,
		CreatedAt:         d.CreatedAt.Format(time.RFC3339),
	}
	if d.SettlementDate != nil {
		resp.SettlementDate = d.SettlementDate.Format(time.RFC3339)
	}
	return resp
}

func createBatchHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/settlements/batches")
		defer span.End()

		var req struct {
			BatchDate string `json:"batch_date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.BatchDate == "" {
			writeError(w, http.StatusBadRequest, "batch_date is required")
			return
		}
		batchDate, err := parseBatchDate(req.BatchDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "batch_date must be in YYYY-MM-DD format")
			return
		}
		span.SetAttributes(attribute.String("batch.date", req.BatchDate))

		batch, err := svc.CreateBatch(ctx, batchDate, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, toBatchResponse(batch))
	}
}

func listBatchesHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/settlements/batches")
		defer span.End()

		f, err := batchFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		batches, err := svc.ListBatches(ctx, f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp := make([]batchResponse, 0, len(batches))
		for i := range batches {
			resp = append(resp, toBatchResponse(&batches[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": resp})
	}
}

func batchFilterFromQuery(r *http.Request) (domain.BatchFilter, error) {
	var f domain.BatchFilter
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		f.Status = domain.BatchStatus(v)
	}
	if v := q.Get("date_from"); v != "" {
		d, err := parseBatchDate(v)
		if err != nil {
			return f, &domain.ErrValidation{Field: "date_from", Message: "must be in YYYY-MM-DD format"}
		}
		f.DateFrom = &d
	}
	if v := q.Get("date_to"); v != "" {
		d, err := parseBatchDate(v)
		if err != nil {
			return f, &domain.ErrValidation{Field: "date_to", Message: "must be in YYYY-MM-DD format"}
		}
		f.DateTo = &d
	}
	f.ClientCode = q.Get("client_code")
	if v := q.Get("amount_min"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, &domain.ErrValidation{Field: "amount_min", Message: "must be a decimal number"}
		}
		f.AmountMin = &d
	}
	if v := q.Get("amount_max"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, &domain.ErrValidation{Field: "amount_max", Message: "must be a decimal number"}
		}
		f.AmountMax = &d
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &domain.ErrValidation{Field: "limit", Message: "must be a non-negative integer"}
		}
		f.Limit = n
	}
	return f, nil
}

func getBatchHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/settlements/batches/{batchId}")
		defer span.End()

		batchID, ok := uuidParam(w, r, "batchId")
		if !ok {
			return
		}

		batch, err := svc.GetBatch(ctx, batchID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResponse(batch))
	}
}

func getBatchDetailsHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/settlements/batches/{batchId}/details")
		defer span.End()

		batchID, ok := uuidParam(w, r, "batchId")
		if !ok {
			return
		}

		details, err := svc.GetBatchDetails(ctx, batchID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp := make([]detailResponse, 0, len(details))
		for i := range details {
			resp = append(resp, toDetailResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"details": resp})
	}
}

func processBatchHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/settlements/batches/{batchId}/process")
		defer span.End()

		batchID, ok := uuidParam(w, r, "batchId")
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("batch.id", batchID.String()))

		batch, err := svc.ProcessBatch(ctx, batchID, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResponse(batch))
	}
}

func approveBatchHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/settlements/batches/{batchId}/approve")
		defer span.End()

		batchID, ok := uuidParam(w, r, "batchId")
		if !ok {
			return
		}

		batch, err := svc.ApproveBatch(ctx, batchID, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResponse(batch))
	}
}

func cancelBatchHandler(svc *service.SettlementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/settlements/batches/{batchId}/cancel")
		defer span.End()

		batchID, ok := uuidParam(w, r, "batchId")
		if !ok {
			return
		}

		batch, err := svc.CancelBatch(ctx, batchID, ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toBatchResponse(batch))
	}
}
