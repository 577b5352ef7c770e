package domain

import "github.com/shopspring/decimal"

// ============================================================
// Settlement Analytics (derived, read-only)
// ============================================================

// SettlementStatistics is the dashboard aggregate over a date range.
type SettlementStatistics struct {
	TotalBatches       int             `json:"total_batches"`
	TotalAmountSettled decimal.Decimal `json:"total_amount_settled"`
	TotalFeesCollected decimal.Decimal `json:"total_fees_collected"`
	TotalGSTCollected  decimal.Decimal `json:"total_gst_collected"`
	AverageBatchAmount decimal.Decimal `json:"average_batch_amount"`
	CompletedBatches   int             `json:"completed_batches"`
	PendingBatches     int             `json:"pending_batches"`
	SuccessRate        float64         `json:"success_rate"`
	DateRange          string          `json:"date_range"`
}

// ClientSettlementSummary aggregates a single client's settlements over a
// trailing number of days.
type ClientSettlementSummary struct {
	ClientCode         string          `json:"client_code"`
	TotalTransactions  int             `json:"total_transactions"`
	TotalSettledAmount decimal.Decimal `json:"total_settled_amount"`
	TotalFeesPaid      decimal.Decimal `json:"total_fees_paid"`
	TotalGSTPaid       decimal.Decimal `json:"total_gst_paid"`
	SettledCount       int             `json:"settled_count"`
	PendingCount       int             `json:"pending_count"`
	SettlementCycle    SettlementCycle `json:"settlement_cycle"`
	AutoSettle         bool            `json:"auto_settle"`
}

// CycleDistribution counts active client configs per settlement cycle.
type CycleDistribution struct {
	Cycle   SettlementCycle `json:"cycle"`
	Clients int             `json:"clients"`
}
