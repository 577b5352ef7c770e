package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the settlement engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration   *prometheus.HistogramVec
	batchesCreated      prometheus.Counter
	batchesProcessed    *prometheus.CounterVec
	transactionsSettled prometheus.Counter
	railErrors          prometheus.Counter
	reconciliations     *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_operation_duration_seconds",
				Help:    "Duration of settlement engine operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		batchesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_batches_created_total",
				Help: "Total settlement batches created.",
			},
		),
		batchesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_batches_processed_total",
				Help: "Total batches that finished processing, by outcome.",
			},
			[]string{"outcome"},
		),
		transactionsSettled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_transactions_settled_total",
				Help: "Total ledger transactions marked settled.",
			},
		),
		railErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_rail_errors_total",
				Help: "Total errors from the bank rail.",
			},
		),
		reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_reconciliations_total",
				Help: "Total reconciliations created, by initial status.",
			},
			[]string{"status"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordOperationDuration records the duration of an operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrBatchCreated increments the created-batch counter.
func (m *Metrics) IncrBatchCreated() {
	m.batchesCreated.Inc()
}

// IncrBatchProcessed increments the processed-batch counter for an outcome
// ("completed" or "failed").
func (m *Metrics) IncrBatchProcessed(outcome string) {
	m.batchesProcessed.WithLabelValues(outcome).Inc()
}

// AddTransactionsSettled records ledger rows newly marked settled.
func (m *Metrics) AddTransactionsSettled(n int) {
	m.transactionsSettled.Add(float64(n))
}

// IncrRailError increments the bank rail error counter.
func (m *Metrics) IncrRailError() {
	m.railErrors.Inc()
}

// IncrReconciliation increments the reconciliation counter with the initial
// status label.
func (m *Metrics) IncrReconciliation(status string) {
	m.reconciliations.WithLabelValues(status).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// OperationsSnapshot is a point-in-time view of the engine's counters,
// served by the operational snapshot endpoint.
type OperationsSnapshot struct {
	BatchesCreated      int64 `json:"batches_created"`
	BatchesCompleted    int64 `json:"batches_completed"`
	BatchesFailed       int64 `json:"batches_failed"`
	TransactionsSettled int64 `json:"transactions_settled"`
	RailErrors          int64 `json:"rail_errors"`
}

// Snapshot gathers current counter values.
// Note: Prometheus counters expose cumulative values.
func (m *Metrics) Snapshot() *OperationsSnapshot {
	return &OperationsSnapshot{
		BatchesCreated:      int64(counterValue(m.batchesCreated)),
		BatchesCompleted:    int64(vecValue(m.batchesProcessed, "completed")),
		BatchesFailed:       int64(vecValue(m.batchesProcessed, "failed")),
		TransactionsSettled: int64(counterValue(m.transactionsSettled)),
		RailErrors:          int64(counterValue(m.railErrors)),
	}
}

func counterValue(c prometheus.Counter) float64 {
	pb := &dto.Metric{}
	if err := c.Write(pb); err != nil {
		return 0
	}
	if pb.Counter != nil && pb.Counter.Value != nil {
		return *pb.Counter.Value
	}
	return 0
}

// vecValue extracts the current float64 value from a CounterVec for a label.
func vecValue(cv *prometheus.CounterVec, label string) float64 {
	return counterValue(cv.WithLabelValues(label))
}
