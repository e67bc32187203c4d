package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LineInput describes one billable item on an invoice being created.
type LineInput struct {
	ServiceCode  string
	Label        string
	Quantity     int64
	UnitPrice    int64
	LineDiscount int64
}

// Amount computes quantity × unit price minus the line discount.
func (l LineInput) Amount() int64 {
	return l.Quantity*l.UnitPrice - l.LineDiscount
}

// CreateInvoiceInput groups fields required to create an invoice.
type CreateInvoiceInput struct {
	ClinicRef    uuid.UUID
	PatientRef   uuid.UUID
	EncounterRef *uuid.UUID
	Discount     int64
	OriginTag    string
	Lines        []LineInput
}

// Validate ensures the invoice input meets the line and discount rules.
func (in CreateInvoiceInput) Validate() error {
	if in.PatientRef == uuid.Nil {
		return fmt.Errorf("%w: patient reference required", ErrInvalidLine)
	}
	if len(in.Lines) == 0 {
		return ErrEmptyInvoice
	}
	var gross int64
	for idx, line := range in.Lines {
		if line.ServiceCode == "" {
			return fmt.Errorf("%w: line %d missing service code", ErrInvalidLine, idx)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLine, idx)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: line %d negative unit price", ErrInvalidLine, idx)
		}
		if line.LineDiscount < 0 || line.LineDiscount > line.Quantity*line.UnitPrice {
			return fmt.Errorf("%w: line %d discount out of range", ErrInvalidLine, idx)
		}
		gross += line.Amount()
	}
	if in.Discount < 0 || in.Discount > gross {
		return ErrInvalidDiscount
	}
	return nil
}

// RecordPaymentInput groups fields required to record a payment.
type RecordPaymentInput struct {
	InvoiceID      int64
	Amount         int64
	Method         PaymentMethod
	TransactionRef string
	BankName       string
	ChequeNumber   string
	CoverageRef    string
	CashierRef     uuid.UUID
	ReceivedAt     time.Time
	IdempotencyKey string
}

// Validate checks the amount, method and method-conditional fields. The
// balance comparison happens later, inside the per-invoice critical section.
func (in RecordPaymentInput) Validate() error {
	if in.InvoiceID == 0 {
		return fmt.Errorf("%w: invoice id required", ErrNotFound)
	}
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !in.Method.Valid() {
		return ErrInvalidMethod
	}
	if in.CashierRef == uuid.Nil {
		return fmt.Errorf("%w: cashier reference required", ErrInvalidAmount)
	}
	if in.Method.RequiresTransactionRef() && in.TransactionRef == "" {
		return fmt.Errorf("%w: transaction_ref required for %s", ErrMissingMethodField, in.Method)
	}
	if in.Method == MethodCheque {
		if in.BankName == "" {
			return fmt.Errorf("%w: bank_name required for cheque", ErrMissingMethodField)
		}
		if in.ChequeNumber == "" {
			return fmt.Errorf("%w: cheque_number required for cheque", ErrMissingMethodField)
		}
	}
	if in.Method == MethodCoverage && in.CoverageRef == "" {
		return fmt.Errorf("%w: coverage_ref required for coverage", ErrMissingMethodField)
	}
	return nil
}

// VoidPaymentInput wraps parameters for voiding a payment.
type VoidPaymentInput struct {
	PaymentID  int64
	Reason     string
	CashierRef uuid.UUID
}

// ListInvoicesFilter narrows invoice listings. Zero values mean "any".
type ListInvoicesFilter struct {
	Status      InvoiceStatus
	PatientRef  uuid.UUID
	NumberQuery string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}
