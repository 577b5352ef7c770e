// Package domain holds the settlement engine's core models and error types.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus is the processing state of a settlement batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchApproved   BatchStatus = "APPROVED"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// ActiveBatchStatuses are the states that count toward the
// one-active-batch-per-date rule.
var ActiveBatchStatuses = []BatchStatus{BatchPending, BatchProcessing, BatchApproved}

// CanProcess reports whether a batch in this state may enter processing.
func (s BatchStatus) CanProcess() bool {
	return s == BatchPending || s == BatchApproved
}

// CanCancel reports whether a batch in this state may be cancelled.
// Cancellation is never legal mid-processing.
func (s BatchStatus) CanCancel() bool {
	return s == BatchPending || s == BatchApproved
}

// DetailStatus is the state of an individual settlement detail row.
type DetailStatus string

const (
	DetailPending    DetailStatus = "PENDING"
	DetailProcessing DetailStatus = "PROCESSING"
	DetailSettled    DetailStatus = "SETTLED"
	DetailFailed     DetailStatus = "FAILED"
	DetailOnHold     DetailStatus = "ON_HOLD"
)

// SettlementBatch is a dated group of transactions settled together.
// Aggregate totals are always derived as the sum over the batch's details.
type SettlementBatch struct {
	BatchID             uuid.UUID
	BatchDate           time.Time // civil date; time component is ignored
	TotalTransactions   int
	TotalAmount         decimal.Decimal
	ProcessingFee       decimal.Decimal
	GSTAmount           decimal.Decimal
	NetSettlementAmount decimal.Decimal
	Status              BatchStatus
	FailureReason       string
	CreatedAt           time.Time
	ProcessedAt         *time.Time
	ProcessedBy         string
}

// SettlementDetail is one transaction's share of a settlement batch.
// FeePercent and GSTPercent are frozen from the client configuration at
// creation time so later rate changes never alter an in-flight batch.
type SettlementDetail struct {
	SettlementID      uuid.UUID
	BatchID           uuid.UUID
	TxnID             string
	ClientCode        string
	TransactionAmount decimal.Decimal
	SettlementAmount  decimal.Decimal
	ProcessingFee     decimal.Decimal
	GSTAmount         decimal.Decimal
	NetAmount         decimal.Decimal
	FeePercent        decimal.Decimal
	GSTPercent        decimal.Decimal
	Status            DetailStatus
	BankReference     string
	UTRNumber         string
	Remarks           string
	SettlementDate    *time.Time
	CreatedAt         time.Time
}

// BatchFilter narrows ListBatches results.
type BatchFilter struct {
	Status     BatchStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	ClientCode string
	AmountMin  *decimal.Decimal
	AmountMax  *decimal.Decimal
	Limit      int
}

// RailTransfer is the request handed to the bank rail for a batch.
type RailTransfer struct {
	IdempotencyKey   string
	BatchID          uuid.UUID
	NetAmount        decimal.Decimal
	TransactionCount int
	Currency         string
}

// RailReceipt is the bank rail's acknowledgement of a transfer.
type RailReceipt struct {
	Reference string
	UTRNumber string
}

// BatchDateFormat is the wire/storage format for batch dates.
const BatchDateFormat = "2006-01-02"
