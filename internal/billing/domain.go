package billing

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus enumerates invoice lifecycle states. Pending, PartiallyPaid
// and Paid form a monotonic chain driven only by the balance; Cancelled is a
// terminal override reachable only before any payment lands.
type InvoiceStatus string

const (
	StatusPending       InvoiceStatus = "PENDING"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// Valid reports whether the status is a known member of the enum.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPartiallyPaid, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// StatusFor derives the pay status from the totals. Cancellation is handled
// separately; this is the pure function the state machine is built on.
func StatusFor(netTotal, paidTotal int64) InvoiceStatus {
	switch {
	case paidTotal >= netTotal:
		return StatusPaid
	case paidTotal > 0:
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

// PaymentMethod enumerates how money is received at the cash desk.
type PaymentMethod string

const (
	MethodCash               PaymentMethod = "CASH"
	MethodMobileMoneyMTN     PaymentMethod = "MOBILE_MONEY_MTN"
	MethodMobileMoneyMoov    PaymentMethod = "MOBILE_MONEY_MOOV"
	MethodMobileMoneyCeltiis PaymentMethod = "MOBILE_MONEY_CELTIIS"
	MethodCard               PaymentMethod = "CARD"
	MethodBankTransfer       PaymentMethod = "BANK_TRANSFER"
	MethodCheque             PaymentMethod = "CHEQUE"
	MethodCoverage           PaymentMethod = "COVERAGE"
)

// Valid reports whether the method is a known member of the enum.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodMobileMoneyMTN, MethodMobileMoneyMoov, MethodMobileMoneyCeltiis,
		MethodCard, MethodBankTransfer, MethodCheque, MethodCoverage:
		return true
	}
	return false
}

// IsCash reports whether the method moves physical cash through the drawer.
func (m PaymentMethod) IsCash() bool {
	return m == MethodCash
}

// RequiresTransactionRef reports whether the method needs an external
// transaction reference.
func (m PaymentMethod) RequiresTransactionRef() bool {
	switch m {
	case MethodMobileMoneyMTN, MethodMobileMoneyMoov, MethodMobileMoneyCeltiis,
		MethodCard, MethodBankTransfer:
		return true
	}
	return false
}

// Invoice is one billing document for a patient event. Amounts are integer
// minor units of the clinic's single operating currency.
type Invoice struct {
	ID            int64
	Number        string
	ClinicRef     uuid.UUID
	PatientRef    uuid.UUID
	EncounterRef  *uuid.UUID
	Lines         []InvoiceLine
	GrossTotal    int64
	DiscountTotal int64
	NetTotal      int64
	PaidTotal     int64
	Status        InvoiceStatus
	OriginTag     string
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BalanceDue is the remaining unpaid amount, never negative.
func (i Invoice) BalanceDue() int64 {
	if b := i.NetTotal - i.PaidTotal; b > 0 {
		return b
	}
	return 0
}

// Settled reports whether the invoice gates clinical access open.
func (i Invoice) Settled() bool {
	return i.Status == StatusPaid
}

// InvoiceLine is one billable item. Lines are immutable once the invoice
// is created.
type InvoiceLine struct {
	ID           int64
	InvoiceID    int64
	ServiceCode  string
	Label        string
	Quantity     int64
	UnitPrice    int64
	LineDiscount int64
	Amount       int64
	CreatedAt    time.Time
}

// Payment is a single recorded receipt of money against an invoice. Rows are
// append-only; a correction sets the void flag, never edits amounts.
type Payment struct {
	ID             int64
	Number         string
	InvoiceID      int64
	Amount         int64
	Method         PaymentMethod
	TransactionRef string
	BankName       string
	ChequeNumber   string
	CoverageRef    string
	CashierRef     uuid.UUID
	JournalID      *int64
	ReceivedAt     time.Time
	VoidedAt       *time.Time
	VoidReason     string
	CreatedAt      time.Time
}

// Voided reports whether the payment has been compensated out of the totals.
func (p Payment) Voided() bool {
	return p.VoidedAt != nil
}

// PaymentResult pairs the persisted payment with the invoice position after
// it, so the cashier UI can decide whether to prompt for more.
type PaymentResult struct {
	Payment    Payment
	BalanceDue int64
	Status     InvoiceStatus
}
