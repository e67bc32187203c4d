package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/shared"
)

// NumberingPort issues clinic-scoped document numbers.
type NumberingPort interface {
	NextInvoiceNumber(ctx context.Context, clinicRef uuid.UUID) (string, error)
	NextPaymentNumber(ctx context.Context, clinicRef uuid.UUID) (string, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventsPort announces ledger changes. InvoicePaid fires once per transition
// into the Paid state so the clinical-access gate can subscribe instead of
// polling; LedgerChanged invalidates read-side caches.
type EventsPort interface {
	InvoicePaid(ctx context.Context, inv Invoice) error
	LedgerChanged(ctx context.Context) error
}

// IdempotencyPort guards against duplicate payment submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort counts ledger activity for the ops dashboards.
type MetricsPort interface {
	ObservePayment(method, outcome string)
	ObserveInvoice(status string)
}

// Config carries the billing policy knobs.
type Config struct {
	// RequireOpenJournal gates RecordPayment on the cashier holding an open
	// journal for the business date. Some clinics run without drawers.
	RequireOpenJournal bool
	// RetryAttempts bounds retries of transient lock-contention failures.
	RetryAttempts int
	// RetryBackoff is the base delay between contention retries.
	RetryBackoff time.Duration
}

// Service handles invoice ledger and payment engine business logic.
type Service struct {
	repo        RepositoryPort
	numbers     NumberingPort
	audit       AuditPort
	events      EventsPort
	idempotency IdempotencyPort
	metrics     MetricsPort
	cfg         Config
	now         func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, numbers NumberingPort, audit AuditPort, events EventsPort, idempotency IdempotencyPort, cfg Config) *Service {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	return &Service{
		repo:        repo,
		numbers:     numbers,
		audit:       audit,
		events:      events,
		idempotency: idempotency,
		cfg:         cfg,
		now:         time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches the activity counters.
func (s *Service) WithMetrics(metrics MetricsPort) {
	s.metrics = metrics
}

// CreateInvoice validates the lines, computes totals, assigns a number and
// persists the invoice. A zero net total means every act was exempted; the
// invoice is born settled.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var gross int64
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		amount := l.Amount()
		gross += amount
		lines = append(lines, InvoiceLine{
			ServiceCode:  l.ServiceCode,
			Label:        l.Label,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			LineDiscount: l.LineDiscount,
			Amount:       amount,
		})
	}
	net := gross - input.Discount

	number, err := s.numbers.NextInvoiceNumber(ctx, input.ClinicRef)
	if err != nil {
		return nil, err
	}

	status := StatusPending
	if net == 0 {
		status = StatusPaid
	}

	inv := Invoice{
		Number:        number,
		ClinicRef:     input.ClinicRef,
		PatientRef:    input.PatientRef,
		EncounterRef:  input.EncounterRef,
		GrossTotal:    gross,
		DiscountTotal: input.Discount,
		NetTotal:      net,
		Status:        status,
		OriginTag:     input.OriginTag,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		insertedLines, err := tx.InsertInvoiceLines(ctx, inserted.ID, lines)
		if err != nil {
			return err
		}
		inserted.Lines = insertedLines
		inv = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.PatientRef.String(), "invoice.create", inv.ID, map[string]any{
		"number":    inv.Number,
		"net_total": inv.NetTotal,
		"origin":    inv.OriginTag,
	})
	if inv.Status == StatusPaid && s.events != nil {
		_ = s.events.InvoicePaid(ctx, inv)
	}
	if s.metrics != nil {
		s.metrics.ObserveInvoice(string(inv.Status))
	}
	s.bumpLedger(ctx)
	return &inv, nil
}

// CancelInvoice terminally cancels an invoice that has no payments.
func (s *Service) CancelInvoice(ctx context.Context, id int64, cashierRef uuid.UUID) (*Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.PaidTotal > 0 {
			return ErrInvoiceHasPayments
		}
		if current.Status != StatusPending && current.Status != StatusPartiallyPaid {
			return ErrInvoiceNotCancellable
		}
		at := s.now()
		if err := tx.MarkInvoiceCancelled(ctx, id, at); err != nil {
			return err
		}
		current.Status = StatusCancelled
		current.CancelledAt = &at
		inv = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, cashierRef.String(), "invoice.cancel", inv.ID, map[string]any{
		"number": inv.Number,
	})
	s.bumpLedger(ctx)
	return &inv, nil
}

// GetInvoice returns one invoice with lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// IsInvoiceSettled reports the paid gate consumed by the clinical-access
// module.
func (s *Service) IsInvoiceSettled(ctx context.Context, id int64) (bool, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return false, err
	}
	return inv.Settled(), nil
}

// ListInvoices returns invoices matching the filter with pagination metadata.
func (s *Service) ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]Invoice, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", ErrInvalidLine, filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	invoices, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page := filter.Offset/filter.Limit + 1
	return invoices, shared.NewPagination(page, filter.Limit, total), nil
}

// ListPaymentsForInvoice returns the payment history of an invoice.
func (s *Service) ListPaymentsForInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPaymentsForInvoice(ctx, invoiceID)
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorRef: actor,
		Action:   action,
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) bumpLedger(ctx context.Context) {
	if s.events != nil {
		_ = s.events.LedgerChanged(ctx)
	}
}
