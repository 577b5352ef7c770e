package store

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Storage formats. Batch dates are civil dates; instants are UTC RFC3339.
const (
	dateFormat = "2006-01-02"
)

func fmtDate(t time.Time) string {
	return t.Format(dateFormat)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateFormat, s)
	return t
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	return &t
}

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// placeholders returns "?,?,…" with n slots for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
