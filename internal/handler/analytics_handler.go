package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/service"
)

// ============================================================
// Settlement Analytics
// ============================================================

func statisticsHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/statistics")
		defer span.End()

		rangeKey := r.URL.Query().Get("range")
		span.SetAttributes(attribute.String("range", rangeKey))

		stats, err := svc.GetStatistics(ctx, rangeKey)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func clientSummaryHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/clients/{clientCode}/summary")
		defer span.End()

		clientCode := chi.URLParam(r, "clientCode")
		span.SetAttributes(attribute.String("client.code", clientCode))

		days := 0
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "days must be an integer")
				return
			}
			days = n
		}

		summary, err := svc.GetClientSummary(ctx, clientCode, days)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func cycleDistributionHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/cycles")
		defer span.End()

		dist, err := svc.GetCycleDistribution(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cycles": dist})
	}
}
