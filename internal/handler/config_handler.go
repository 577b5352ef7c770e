package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/service"
)

// ============================================================
// Client Settlement Configuration
// ============================================================

type configResponse struct {
	ConfigID            string          `json:"config_id"`
	ClientCode          string          `json:"client_code"`
	SettlementCycle     string          `json:"settlement_cycle"`
	MinSettlementAmount decimal.Decimal `json:"min_settlement_amount"`
	ProcessingFeePct    decimal.Decimal `json:"processing_fee_pct"`
	GSTPct              decimal.Decimal `json:"gst_pct"`
	AutoSettle          bool            `json:"auto_settle"`
	BankAccountNumber   string          `json:"bank_account_number,omitempty"`
	BankName            string          `json:"bank_name,omitempty"`
	IFSCCode            string          `json:"ifsc_code,omitempty"`
	AccountHolderName   string          `json:"account_holder_name,omitempty"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
}

func toConfigResponse(c *domain.ClientSettlementConfig) configResponse {
	return configResponse{
		ConfigID:            c.ConfigID.String(),
		ClientCode:          c.ClientCode,
		SettlementCycle:     string(c.SettlementCycle),
		MinSettlementAmount: c.MinSettlementAmount,
		ProcessingFeePct:    c.ProcessingFeePct,
		GSTPct:              c.GSTPct,
		AutoSettle:          c.AutoSettle,
		BankAccountNumber:   c.BankAccountNumber,
		BankName:            c.BankName,
		IFSCCode:            c.IFSCCode,
		AccountHolderName:   c.AccountHolderName,
		IsActive:            c.IsActive,
		CreatedAt:           c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           c.UpdatedAt.Format(time.RFC3339),
	}
}

// configUpdateRequest mirrors domain.ConfigUpdate; nil fields are untouched.
type configUpdateRequest struct {
	SettlementCycle     *string          `json:"settlement_cycle,omitempty"`
	MinSettlementAmount *decimal.Decimal `json:"min_settlement_amount,omitempty"`
	ProcessingFeePct    *decimal.Decimal `json:"processing_fee_pct,omitempty"`
	GSTPct              *decimal.Decimal `json:"gst_pct,omitempty"`
	AutoSettle          *bool            `json:"auto_settle,omitempty"`
	BankAccountNumber   *string          `json:"bank_account_number,omitempty"`
	BankName            *string          `json:"bank_name,omitempty"`
	IFSCCode            *string          `json:"ifsc_code,omitempty"`
	AccountHolderName   *string          `json:"account_holder_name,omitempty"`
}

func (r *configUpdateRequest) toDomain() domain.ConfigUpdate {
	upd := domain.ConfigUpdate{
		MinSettlementAmount: r.MinSettlementAmount,
		ProcessingFeePct:    r.ProcessingFeePct,
		GSTPct:              r.GSTPct,
		AutoSettle:          r.AutoSettle,
		BankAccountNumber:   r.BankAccountNumber,
		BankName:            r.BankName,
		IFSCCode:            r.IFSCCode,
		AccountHolderName:   r.AccountHolderName,
	}
	if r.SettlementCycle != nil {
		cycle := domain.SettlementCycle(*r.SettlementCycle)
		upd.SettlementCycle = &cycle
	}
	return upd
}

func getClientConfigHandler(svc *service.ConfigService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientCode}/config")
		defer span.End()

		clientCode := chi.URLParam(r, "clientCode")
		span.SetAttributes(attribute.String("client.code", clientCode))

		cfg, err := svc.GetOrCreate(ctx, clientCode)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(cfg))
	}
}

func updateClientConfigHandler(svc *service.ConfigService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/clients/{clientCode}/config")
		defer span.End()

		clientCode := chi.URLParam(r, "clientCode")

		var req configUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cfg, err := svc.Update(ctx, clientCode, req.toDomain(), ActorFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(cfg))
	}
}

func deactivateClientConfigHandler(svc *service.ConfigService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/clients/{clientCode}/config")
		defer span.End()

		clientCode := chi.URLParam(r, "clientCode")
		if err := svc.Deactivate(ctx, clientCode, ActorFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listClientConfigsHandler(svc *service.ConfigService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/configs")
		defer span.End()

		cfgs, err := svc.List(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp := make([]configResponse, 0, len(cfgs))
		for i := range cfgs {
			resp = append(resp, toConfigResponse(&cfgs[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"configurations": resp})
	}
}
