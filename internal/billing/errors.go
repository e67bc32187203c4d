package billing

import "errors"

// Validation errors: caller mistakes, surfaced verbatim and never retried.
var (
	ErrEmptyInvoice       = errors.New("billing: invoice requires at least one line")
	ErrInvalidLine        = errors.New("billing: invalid invoice line")
	ErrInvalidDiscount    = errors.New("billing: discount out of range")
	ErrInvalidAmount      = errors.New("billing: payment amount must be positive")
	ErrInvalidMethod      = errors.New("billing: unknown payment method")
	ErrMissingMethodField = errors.New("billing: required payment method field missing")
)

// Business-rule errors: expected outcomes of normal operation, distinguishable
// from infrastructure failures and not retryable without a corrected request.
var (
	ErrOverpayment           = errors.New("billing: amount exceeds balance due")
	ErrInvoiceHasPayments    = errors.New("billing: invoice already has payments")
	ErrInvoiceNotCancellable = errors.New("billing: invoice can no longer be cancelled")
	ErrInvoiceNotPayable     = errors.New("billing: invoice is not payable")
	ErrNoOpenJournal         = errors.New("billing: cashier has no open journal for the business date")
	ErrPaymentAlreadyVoid    = errors.New("billing: payment already void")
)

// ErrNotFound indicates an unknown invoice or payment.
var ErrNotFound = errors.New("billing: not found")
