package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationStatus tracks how a bank statement comparison is resolved.
type ReconciliationStatus string

const (
	ReconPending       ReconciliationStatus = "PENDING"
	ReconMatched       ReconciliationStatus = "MATCHED"
	ReconMismatched    ReconciliationStatus = "MISMATCHED"
	ReconInvestigating ReconciliationStatus = "INVESTIGATING"
	ReconResolved      ReconciliationStatus = "RESOLVED"
)

// reconTransitions lists the legal status moves. MATCHED and MISMATCHED can
// be set directly from PENDING; RESOLVED only via INVESTIGATING.
var reconTransitions = map[ReconciliationStatus][]ReconciliationStatus{
	ReconPending:       {ReconMatched, ReconMismatched, ReconInvestigating},
	ReconMismatched:    {ReconInvestigating},
	ReconInvestigating: {ReconResolved},
}

// ValidReconTransition reports whether moving from one reconciliation status
// to another is legal.
func ValidReconTransition(from, to ReconciliationStatus) bool {
	for _, t := range reconTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Open reports whether the reconciliation still needs attention.
func (s ReconciliationStatus) Open() bool {
	return s != ReconMatched && s != ReconResolved
}

// SettlementReconciliation compares a bank-reported settlement amount to the
// system-computed batch net. Difference is always bank minus system.
type SettlementReconciliation struct {
	ReconciliationID    uuid.UUID
	BatchID             uuid.UUID
	BankStatementAmount decimal.Decimal
	SystemAmount        decimal.Decimal
	DifferenceAmount    decimal.Decimal
	Status              ReconciliationStatus
	Remarks             string
	ReconciledBy        string
	ReconciledAt        *time.Time
	CreatedAt           time.Time
}
