// Package numbering issues clinic-scoped, strictly increasing document
// numbers for invoices and payment receipts.
package numbering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the independent sequences a clinic holds.
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindPayment Kind = "payment"
)

// Sequencer hands out the next value of a (clinic, kind) sequence. The
// increment must be a single atomic operation; callers never read-then-write.
type Sequencer interface {
	Next(ctx context.Context, clinicRef uuid.UUID, kind Kind) (int64, error)
}

// Service formats sequence values into display numbers. Only uniqueness and
// monotonicity are contractual; the prefix and padding are presentation.
type Service struct {
	seq Sequencer
	now func() time.Time
}

// NewService builds a Service instance.
func NewService(seq Sequencer) *Service {
	return &Service{seq: seq, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// NextInvoiceNumber returns the next invoice number for the clinic.
func (s *Service) NextInvoiceNumber(ctx context.Context, clinicRef uuid.UUID) (string, error) {
	n, err := s.seq.Next(ctx, clinicRef, KindInvoice)
	if err != nil {
		return "", fmt.Errorf("numbering: next invoice: %w", err)
	}
	return fmt.Sprintf("FAC-%d-%06d", s.now().Year(), n), nil
}

// NextPaymentNumber returns the next payment receipt number for the clinic.
func (s *Service) NextPaymentNumber(ctx context.Context, clinicRef uuid.UUID) (string, error) {
	n, err := s.seq.Next(ctx, clinicRef, KindPayment)
	if err != nil {
		return "", fmt.Errorf("numbering: next payment: %w", err)
	}
	return fmt.Sprintf("REC-%d-%06d", s.now().Year(), n), nil
}
