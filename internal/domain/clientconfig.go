package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementCycle determines which transaction window settles on a given day.
type SettlementCycle string

const (
	CycleT0      SettlementCycle = "T+0"
	CycleT1      SettlementCycle = "T+1"
	CycleT2      SettlementCycle = "T+2"
	CycleWeekly  SettlementCycle = "WEEKLY"
	CycleMonthly SettlementCycle = "MONTHLY"
)

// ValidCycle reports whether c is a known settlement cycle.
func ValidCycle(c SettlementCycle) bool {
	switch c {
	case CycleT0, CycleT1, CycleT2, CycleWeekly, CycleMonthly:
		return true
	}
	return false
}

// ClientSettlementConfig holds per-client settlement terms. Configs are
// lazily created with defaults on first read and only ever deactivated,
// never deleted.
type ClientSettlementConfig struct {
	ConfigID            uuid.UUID
	ClientCode          string
	SettlementCycle     SettlementCycle
	MinSettlementAmount decimal.Decimal
	ProcessingFeePct    decimal.Decimal
	GSTPct              decimal.Decimal
	AutoSettle          bool
	BankAccountNumber   string
	BankName            string
	IFSCCode            string
	AccountHolderName   string
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DefaultClientConfig returns the system default configuration for a client
// that has none yet: T+1, 2% processing fee, 18% GST, minimum 100.
func DefaultClientConfig(clientCode string) ClientSettlementConfig {
	now := time.Now().UTC()
	return ClientSettlementConfig{
		ConfigID:            uuid.New(),
		ClientCode:          clientCode,
		SettlementCycle:     CycleT1,
		MinSettlementAmount: decimal.NewFromInt(100),
		ProcessingFeePct:    decimal.NewFromInt(2),
		GSTPct:              decimal.NewFromInt(18),
		AutoSettle:          true,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ConfigUpdate carries the explicit mutation path for a client config.
// Nil fields are left unchanged.
type ConfigUpdate struct {
	SettlementCycle     *SettlementCycle
	MinSettlementAmount *decimal.Decimal
	ProcessingFeePct    *decimal.Decimal
	GSTPct              *decimal.Decimal
	AutoSettle          *bool
	BankAccountNumber   *string
	BankName            *string
	IFSCCode            *string
	AccountHolderName   *string
}
