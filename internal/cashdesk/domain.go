package cashdesk

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/billing"
)

// JournalStatus enumerates drawer session states.
type JournalStatus string

const (
	JournalOpen   JournalStatus = "OPEN"
	JournalClosed JournalStatus = "CLOSED"
)

// Valid reports whether the status is a known member of the enum.
func (s JournalStatus) Valid() bool {
	return s == JournalOpen || s == JournalClosed
}

// Journal is one cashier drawer session for one business date. At most one
// open journal may exist per (cashier, date); the database enforces that with
// a partial unique index.
type Journal struct {
	ID             int64
	CashierRef     uuid.UUID
	BusinessDate   time.Time
	OpeningBalance int64
	// ClosingBalance is the expected cash position at close, opening balance
	// plus the non-voided cash payments linked to the journal. Set once.
	ClosingBalance *int64
	// CountedBalance is what the cashier physically counted, when declared.
	CountedBalance *int64
	Status         JournalStatus
	OpenedAt       time.Time
	ClosedAt       *time.Time
}

// Variance is counted minus expected. Zero when the drawer reconciles or when
// no count was declared.
func (j Journal) Variance() int64 {
	if j.ClosingBalance == nil || j.CountedBalance == nil {
		return 0
	}
	return *j.CountedBalance - *j.ClosingBalance
}

// MethodTotal aggregates the day's receipts for one payment method.
type MethodTotal struct {
	Method billing.PaymentMethod `json:"method"`
	Amount int64                 `json:"amount"`
	Count  int                   `json:"count"`
}

// StatusCount aggregates the day's invoices for one status.
type StatusCount struct {
	Status billing.InvoiceStatus `json:"status"`
	Count  int                   `json:"count"`
}

// DailyReport is the cash desk end-of-day view. It reads the payment ledger
// directly and does not depend on any journal being open or closed.
type DailyReport struct {
	Date             time.Time     `json:"date"`
	CashierRef       *uuid.UUID    `json:"cashier_ref,omitempty"`
	MethodTotals     []MethodTotal `json:"method_totals"`
	StatusCounts     []StatusCount `json:"status_counts"`
	CashTotal        int64         `json:"cash_total"`
	GrandTotal       int64         `json:"grand_total"`
	CashTotalDisplay string        `json:"cash_total_display"`
}
