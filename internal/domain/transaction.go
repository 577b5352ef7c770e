package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransaction is the upstream transaction ledger record. The ledger is
// the single source of truth for "already settled"; the engine reads
// eligibility from it and writes back exactly three fields on completion:
// IsSettled, SettlementStatus and SettlementDate.
type LedgerTransaction struct {
	TxnID            string
	ClientCode       string
	ClientName       string
	Amount           decimal.Decimal
	Status           string
	TransDate        time.Time
	IsSettled        bool
	SettlementStatus string
	SettlementDate   *time.Time
	SettlementUTR    string
}

// Successful reports whether the transaction completed successfully.
// Ledger status values are matched case-insensitively.
func (t *LedgerTransaction) Successful() bool {
	return strings.EqualFold(t.Status, "SUCCESS")
}

// EligibilityWindow returns the half-open civil-time interval
// [midnight(D-1), midnight(D)) in loc for a T+1 batch date D. Midnights are
// taken per civil calendar, not a fixed 24h offset, so the window stays
// correct across DST shifts.
func EligibilityWindow(batchDate time.Time, loc *time.Location) (start, end time.Time) {
	y, m, d := batchDate.Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, loc)
	start = end.AddDate(0, 0, -1)
	return start, end
}
