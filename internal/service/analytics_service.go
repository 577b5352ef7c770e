package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/settlement-engine-go/internal/domain"
	"github.com/paygrid/settlement-engine-go/internal/port"
)

var analyticsTracer = otel.Tracer("service/analytics")

// Supported trailing windows for statistics queries.
var statisticsRanges = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

const defaultStatisticsRange = "30d"

// AnalyticsService serves derived, read-only settlement aggregates for
// dashboards and reporting.
type AnalyticsService struct {
	store  port.AnalyticsStore
	loc    *time.Location
	logger *zap.Logger
}

// NewAnalyticsService creates the analytics service.
func NewAnalyticsService(store port.AnalyticsStore, loc *time.Location, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, loc: loc, logger: logger}
}

// GetStatistics returns dashboard aggregates for a trailing window of batch
// dates. Accepted ranges are 7d, 30d and 90d; empty defaults to 30d.
func (s *AnalyticsService) GetStatistics(ctx context.Context, rangeKey string) (*domain.SettlementStatistics, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.GetStatistics")
	defer span.End()

	if rangeKey == "" {
		rangeKey = defaultStatisticsRange
	}
	days, ok := statisticsRanges[rangeKey]
	if !ok {
		return nil, &domain.ErrValidation{Field: "range", Message: "must be one of 7d, 30d, 90d"}
	}
	span.SetAttributes(attribute.String("range", rangeKey))

	now := time.Now().In(s.loc)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	stats, err := s.store.Statistics(ctx, from, to)
	if err != nil {
		return nil, err
	}
	stats.DateRange = fmt.Sprintf("%s to %s",
		from.Format(domain.BatchDateFormat),
		to.AddDate(0, 0, -1).Format(domain.BatchDateFormat))
	return stats, nil
}

// GetClientSummary aggregates one client's settlement activity over a
// trailing number of days (default 30, max 365).
func (s *AnalyticsService) GetClientSummary(ctx context.Context, clientCode string, days int) (*domain.ClientSettlementSummary, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.GetClientSummary")
	defer span.End()
	span.SetAttributes(attribute.String("client.code", clientCode))

	if clientCode == "" {
		return nil, &domain.ErrValidation{Field: "client_code", Message: "client code is required"}
	}
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		return nil, &domain.ErrValidation{Field: "days", Message: "must be at most 365"}
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	return s.store.ClientSummary(ctx, clientCode, from, to)
}

// GetCycleDistribution counts active client configurations per settlement
// cycle.
func (s *AnalyticsService) GetCycleDistribution(ctx context.Context) ([]domain.CycleDistribution, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.GetCycleDistribution")
	defer span.End()

	s.logger.Debug("computing cycle distribution")
	return s.store.CycleDistribution(ctx)
}
