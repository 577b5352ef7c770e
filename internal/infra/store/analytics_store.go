package store

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paygrid/settlement-engine-go/internal/domain"
)

// AnalyticsStore computes derived, read-only settlement aggregates. Sums are
// accumulated in Go with decimal arithmetic rather than SQL SUM, which would
// coerce the stored decimal strings to floats.
type AnalyticsStore struct {
	db *sql.DB
}

func NewAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

func (s *AnalyticsStore) Statistics(ctx context.Context, from, to time.Time) (*domain.SettlementStatistics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT total_amount, processing_fee, gst_amount, net_settlement_amount, status
		 FROM settlement_batches
		 WHERE batch_date >= ? AND batch_date <= ?`,
		fmtDate(from), fmtDate(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.SettlementStatistics{
		TotalAmountSettled: decimal.Zero,
		TotalFeesCollected: decimal.Zero,
		TotalGSTCollected:  decimal.Zero,
		AverageBatchAmount: decimal.Zero,
	}
	totalAmount := decimal.Zero

	for rows.Next() {
		var amt, fee, gst, net, status string
		if err := rows.Scan(&amt, &fee, &gst, &net, &status); err != nil {
			return nil, err
		}
		stats.TotalBatches++
		totalAmount = totalAmount.Add(parseDec(amt))
		stats.TotalFeesCollected = stats.TotalFeesCollected.Add(parseDec(fee))
		stats.TotalGSTCollected = stats.TotalGSTCollected.Add(parseDec(gst))

		switch domain.BatchStatus(status) {
		case domain.BatchCompleted:
			stats.CompletedBatches++
			stats.TotalAmountSettled = stats.TotalAmountSettled.Add(parseDec(net))
		case domain.BatchPending:
			stats.PendingBatches++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.TotalBatches > 0 {
		stats.AverageBatchAmount = totalAmount.
			Div(decimal.NewFromInt(int64(stats.TotalBatches))).Round(2)
		rate := float64(stats.CompletedBatches) / float64(stats.TotalBatches) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

func (s *AnalyticsStore) ClientSummary(ctx context.Context, clientCode string, from, to time.Time) (*domain.ClientSettlementSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		// Upper bound is inclusive: created_at is stored at second
		// precision, so rows written in the same second as "now" must
		// still count when the window ends at now.
		`SELECT net_amount, processing_fee, gst_amount, status
		 FROM settlement_details
		 WHERE client_code = ? AND created_at >= ? AND created_at <= ?`,
		clientCode, fmtTime(from), fmtTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &domain.ClientSettlementSummary{
		ClientCode:         clientCode,
		TotalSettledAmount: decimal.Zero,
		TotalFeesPaid:      decimal.Zero,
		TotalGSTPaid:       decimal.Zero,
		SettlementCycle:    domain.CycleT1,
		AutoSettle:         true,
	}

	for rows.Next() {
		var net, fee, gst, status string
		if err := rows.Scan(&net, &fee, &gst, &status); err != nil {
			return nil, err
		}
		summary.TotalTransactions++
		summary.TotalFeesPaid = summary.TotalFeesPaid.Add(parseDec(fee))
		summary.TotalGSTPaid = summary.TotalGSTPaid.Add(parseDec(gst))

		switch domain.DetailStatus(status) {
		case domain.DetailSettled:
			summary.SettledCount++
			summary.TotalSettledAmount = summary.TotalSettledAmount.Add(parseDec(net))
		case domain.DetailPending:
			summary.PendingCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Echo the client's configured terms when a config exists.
	var cycle string
	var autoSettle int
	err = s.db.QueryRowContext(ctx,
		`SELECT settlement_cycle, auto_settle FROM settlement_configurations
		 WHERE client_code = ?`, clientCode).Scan(&cycle, &autoSettle)
	if err == nil {
		summary.SettlementCycle = domain.SettlementCycle(cycle)
		summary.AutoSettle = autoSettle != 0
	} else if err != sql.ErrNoRows {
		return nil, err
	}

	return summary, nil
}

func (s *AnalyticsStore) CycleDistribution(ctx context.Context) ([]domain.CycleDistribution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT settlement_cycle, COUNT(*) FROM settlement_configurations
		 WHERE is_active = 1 GROUP BY settlement_cycle ORDER BY settlement_cycle`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dist []domain.CycleDistribution
	for rows.Next() {
		var d domain.CycleDistribution
		var cycle string
		if err := rows.Scan(&cycle, &d.Clients); err != nil {
			return nil, err
		}
		d.Cycle = domain.SettlementCycle(cycle)
		dist = append(dist, d)
	}
	return dist, rows.Err()
}
