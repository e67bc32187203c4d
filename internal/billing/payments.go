package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/shared"
)

// RecordPayment applies a payment to an invoice. The balance read, the
// payment insert, the totals update and the journal linkage share one
// transaction under the invoice row lock: two cashiers racing on the same
// invoice serialise there, and the loser re-reads a balance that already
// includes the winner's payment. Transient contention failures are retried
// with bounded backoff; business rejections are not.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*PaymentResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "billing.payment"); err != nil {
			return nil, err
		}
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	var result PaymentResult
	var settled Invoice
	err := shared.WithRetry(ctx, s.cfg.RetryAttempts, s.cfg.RetryBackoff, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			settled = Invoice{}
			inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
			if err != nil {
				return err
			}
			if inv.Status == StatusCancelled {
				return ErrInvoiceNotPayable
			}

			balance := inv.BalanceDue()
			if input.Amount > balance {
				return ErrOverpayment
			}

			// Journal linkage is optional-but-checked: any payment taken while
			// the cashier holds an open journal is linked to it, and only cash
			// is rejected for the missing journal when the policy demands one.
			var journalID *int64
			id, err := tx.FindOpenJournal(ctx, input.CashierRef, shared.BusinessDate(receivedAt))
			switch {
			case err == nil:
				journalID = &id
			case errors.Is(err, ErrNoOpenJournal):
				if s.cfg.RequireOpenJournal && input.Method.IsCash() {
					return err
				}
			default:
				return err
			}

			number, err := s.numbers.NextPaymentNumber(ctx, inv.ClinicRef)
			if err != nil {
				return err
			}

			payment, err := tx.InsertPayment(ctx, Payment{
				Number:         number,
				InvoiceID:      inv.ID,
				Amount:         input.Amount,
				Method:         input.Method,
				TransactionRef: input.TransactionRef,
				BankName:       input.BankName,
				ChequeNumber:   input.ChequeNumber,
				CoverageRef:    input.CoverageRef,
				CashierRef:     input.CashierRef,
				JournalID:      journalID,
				ReceivedAt:     receivedAt,
			})
			if err != nil {
				return err
			}

			newPaid := inv.PaidTotal + input.Amount
			newStatus := StatusFor(inv.NetTotal, newPaid)
			if err := tx.SetInvoicePaidStatus(ctx, inv.ID, newPaid, newStatus); err != nil {
				return err
			}

			inv.PaidTotal = newPaid
			inv.Status = newStatus
			result = PaymentResult{
				Payment:    payment,
				BalanceDue: inv.BalanceDue(),
				Status:     newStatus,
			}
			if newStatus == StatusPaid {
				settled = inv
			}
			return nil
		})
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		if s.metrics != nil {
			s.metrics.ObservePayment(string(input.Method), "rejected")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObservePayment(string(input.Method), "recorded")
	}

	// The settled gate event announces a committed transition only, so it is
	// published after the transaction returns.
	if settled.ID != 0 && s.events != nil {
		_ = s.events.InvoicePaid(ctx, settled)
	}

	s.recordPaymentAudit(ctx, input.CashierRef, "payment.record", result.Payment, map[string]any{
		"number":      result.Payment.Number,
		"amount":      result.Payment.Amount,
		"method":      string(result.Payment.Method),
		"balance_due": result.BalanceDue,
	})
	s.bumpLedger(ctx)
	return &result, nil
}

// VoidPayment compensates a recorded payment out of the invoice totals. The
// row is flagged, never deleted, so the ledger stays append-only and
// auditable. Voiding may move a Paid invoice back to PartiallyPaid or
// Pending; that is the compensating path, not part of the monotonic pay
// chain.
func (s *Service) VoidPayment(ctx context.Context, input VoidPaymentInput) (*PaymentResult, error) {
	if input.PaymentID == 0 {
		return nil, fmt.Errorf("%w: payment id required", ErrNotFound)
	}
	if input.Reason == "" {
		return nil, fmt.Errorf("%w: void reason required", ErrInvalidAmount)
	}

	var result PaymentResult
	err := shared.WithRetry(ctx, s.cfg.RetryAttempts, s.cfg.RetryBackoff, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			payment, err := tx.GetPaymentForUpdate(ctx, input.PaymentID)
			if err != nil {
				return err
			}
			if payment.Voided() {
				return ErrPaymentAlreadyVoid
			}

			inv, err := tx.GetInvoiceForUpdate(ctx, payment.InvoiceID)
			if err != nil {
				return err
			}

			at := s.now()
			if err := tx.MarkPaymentVoid(ctx, payment.ID, input.Reason, at); err != nil {
				return err
			}

			newPaid := inv.PaidTotal - payment.Amount
			newStatus := inv.Status
			if inv.Status != StatusCancelled {
				newStatus = StatusFor(inv.NetTotal, newPaid)
			}
			if err := tx.SetInvoicePaidStatus(ctx, inv.ID, newPaid, newStatus); err != nil {
				return err
			}

			payment.VoidedAt = &at
			payment.VoidReason = input.Reason
			inv.PaidTotal = newPaid
			result = PaymentResult{
				Payment:    payment,
				BalanceDue: inv.BalanceDue(),
				Status:     newStatus,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordPaymentAudit(ctx, input.CashierRef, "payment.void", result.Payment, map[string]any{
		"number": result.Payment.Number,
		"reason": input.Reason,
	})
	s.bumpLedger(ctx)
	return &result, nil
}

func (s *Service) recordPaymentAudit(ctx context.Context, cashierRef uuid.UUID, action string, p Payment, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorRef: cashierRef.String(),
		Action:   action,
		Entity:   "payment",
		EntityID: fmt.Sprintf("%d", p.ID),
		Meta:     meta,
		At:       s.now(),
	})
}
