// Package handler exposes the settlement engine over HTTP: batch lifecycle,
// reconciliation, client configuration and analytics endpoints.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/infra/observability"
	"github.com/paygrid/settlement-engine-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Services bundles the service layer for the router.
type Services struct {
	Settlements     *service.SettlementService
	Reconciliations *service.ReconciliationService
	Configs         *service.ConfigService
	Analytics       *service.AnalyticsService
}

// AuthConfig controls the actor middleware.
type AuthConfig struct {
	JWTSecret string
	DevAuth   bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, auth AuthConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(ActorMiddleware(auth.JWTSecret, auth.DevAuth, logger))

		// Settlement batch lifecycle
		r.Route("/settlements/batches", func(r chi.Router) {
			r.Post("/", createBatchHandler(svcs.Settlements, logger))
			r.Get("/", listBatchesHandler(svcs.Settlements, logger))
			r.Get("/{batchId}", getBatchHandler(svcs.Settlements, logger))
			r.Get("/{batchId}/details", getBatchDetailsHandler(svcs.Settlements, logger))
			r.Post("/{batchId}/approve", approveBatchHandler(svcs.Settlements, logger))
			r.Post("/{batchId}/process", processBatchHandler(svcs.Settlements, logger))
			r.Post("/{batchId}/cancel", cancelBatchHandler(svcs.Settlements, logger))
			r.Get("/{batchId}/reconciliations", listBatchReconciliationsHandler(svcs.Reconciliations, logger))
		})

		// Reconciliation workflow
		r.Route("/reconciliations", func(r chi.Router) {
			r.Post("/", createReconciliationHandler(svcs.Reconciliations, logger))
			r.Get("/open", listOpenReconciliationsHandler(svcs.Reconciliations, logger))
			r.Get("/{reconciliationId}", getReconciliationHandler(svcs.Reconciliations, logger))
			r.Put("/{reconciliationId}/status", updateReconciliationStatusHandler(svcs.Reconciliations, logger))
		})

		// Client settlement configuration
		r.Get("/clients/configs", listClientConfigsHandler(svcs.Configs, logger))
		r.Route("/clients/{clientCode}/config", func(r chi.Router) {
			r.Get("/", getClientConfigHandler(svcs.Configs, logger))
			r.Put("/", updateClientConfigHandler(svcs.Configs, logger))
			r.Delete("/", deactivateClientConfigHandler(svcs.Configs, logger))
		})

		// Analytics
		r.Get("/analytics/statistics", statisticsHandler(svcs.Analytics, logger))
		r.Get("/analytics/clients/{clientCode}/summary", clientSummaryHandler(svcs.Analytics, logger))
		r.Get("/analytics/cycles", cycleDistributionHandler(svcs.Analytics, logger))

		// Operational counters snapshot
		r.Get("/metrics/settlements", settlementMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func settlementMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
