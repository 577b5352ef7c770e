package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/infra/observability"
	"github.com/paygrid/settlement-engine-go/internal/port"
)

var configTracer = otel.Tracer("service/config")

// ConfigService manages per-client settlement configuration with a TTL cache
// in front of the store. Missing configs are lazily created with system
// defaults on first read.
type ConfigService struct {
	store   port.ConfigStore
	cache   port.Cache[domain.ClientSettlementConfig]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewConfigService creates the client configuration service.
func NewConfigService(
	store port.ConfigStore,
	cache port.Cache[domain.ClientSettlementConfig],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ConfigService {
	return &ConfigService{store: store, cache: cache, metrics: metrics, logger: logger}
}

// GetOrCreate returns the client's settlement configuration, creating it with
// defaults (T+1, 2% fee, 18% GST, minimum 100) when none exists yet.
func (s *ConfigService) GetOrCreate(ctx context.Context, clientCode string) (*domain.ClientSettlementConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.GetOrCreate")
	defer span.End()
	span.SetAttributes(attribute.String("client.code", clientCode))

	if clientCode == "" {
		return nil, &domain.ErrValidation{Field: "client_code", Message: "client code is required"}
	}

	if cfg, ok := s.cache.Get(clientCode); ok {
		s.metrics.IncrCacheHit("client_config")
		return &cfg, nil
	}
	s.metrics.IncrCacheMiss("client_config")

	cfg, err := s.store.GetOrCreate(ctx, domain.DefaultClientConfig(clientCode))
	if err != nil {
		return nil, err
	}
	s.cache.Set(clientCode, *cfg)
	return cfg, nil
}

// EnsureForClients resolves configurations for every given client code,
// lazily creating defaults where missing. Called once per batch run so each
// transaction's fee rates come from a single consistent snapshot.
func (s *ConfigService) EnsureForClients(ctx context.Context, clientCodes []string) (map[string]domain.ClientSettlementConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.EnsureForClients")
	defer span.End()
	span.SetAttributes(attribute.Int("client.count", len(clientCodes)))

	cfgs := make(map[string]domain.ClientSettlementConfig, len(clientCodes))
	for _, code := range clientCodes {
		cfg, err := s.GetOrCreate(ctx, code)
		if err != nil {
			return nil, err
		}
		cfgs[code] = *cfg
	}
	return cfgs, nil
}

// Update applies the explicit mutation path for a client config and
// invalidates the cache entry. Rates outside [0, 100] and unknown cycles are
// rejected; batches already created keep their frozen rates.
func (s *ConfigService) Update(ctx context.Context, clientCode string, upd domain.ConfigUpdate, actor string) (*domain.ClientSettlementConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("client.code", clientCode))

	if err := validateConfigUpdate(upd); err != nil {
		return nil, err
	}

	cfg, err := s.store.Update(ctx, clientCode, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Delete(clientCode)

	s.logger.Info("client settlement config updated",
		zap.String("client_code", clientCode),
		zap.String("actor", actor),
	)
	return cfg, nil
}

// Deactivate soft-disables a client's configuration. Configs are never
// deleted; an inactive config is simply skipped by future default creation.
func (s *ConfigService) Deactivate(ctx context.Context, clientCode string, actor string) error {
	ctx, span := configTracer.Start(ctx, "ConfigService.Deactivate")
	defer span.End()

	if err := s.store.Deactivate(ctx, clientCode); err != nil {
		return err
	}
	s.cache.Delete(clientCode)

	s.logger.Info("client settlement config deactivated",
		zap.String("client_code", clientCode),
		zap.String("actor", actor),
	)
	return nil
}

func (s *ConfigService) Get(ctx context.Context, clientCode string) (*domain.ClientSettlementConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.Get")
	defer span.End()

	return s.store.Get(ctx, clientCode)
}

func (s *ConfigService) List(ctx context.Context) ([]domain.ClientSettlementConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.List")
	defer span.End()

	return s.store.List(ctx)
}

func validateConfigUpdate(upd domain.ConfigUpdate) error {
	if upd.SettlementCycle != nil && !domain.ValidCycle(*upd.SettlementCycle) {
		return &domain.ErrValidation{Field: "settlement_cycle", Message: "unknown settlement cycle"}
	}
	if upd.ProcessingFeePct != nil && !withinPercent(*upd.ProcessingFeePct) {
		return &domain.ErrValidation{Field: "processing_fee_pct", Message: "must be between 0 and 100"}
	}
	if upd.GSTPct != nil && !withinPercent(*upd.GSTPct) {
		return &domain.ErrValidation{Field: "gst_pct", Message: "must be between 0 and 100"}
	}
	if upd.MinSettlementAmount != nil && upd.MinSettlementAmount.IsNegative() {
		return &domain.ErrValidation{Field: "min_settlement_amount", Message: "must not be negative"}
	}
	return nil
}

func withinPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(100))
}
