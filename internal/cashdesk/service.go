package cashdesk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/clinicore/clinicore/internal/shared"
)

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles cash journal business logic.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	printer *message.Printer
	now     func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		printer: message.NewPrinter(language.French),
		now:     time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenJournalInput groups fields required to open a drawer session.
type OpenJournalInput struct {
	CashierRef     uuid.UUID
	BusinessDate   time.Time
	OpeningBalance int64
	// PIN is the drawer custody pin. Checked only when the cashier has one
	// provisioned.
	PIN string
}

// OpenJournal starts the cashier's drawer session for the business date. The
// one-open-journal rule is enforced by the database, not by a prior read, so
// two racing opens cannot both succeed.
func (s *Service) OpenJournal(ctx context.Context, input OpenJournalInput) (*Journal, error) {
	if input.CashierRef == uuid.Nil {
		return nil, shared.ErrCashierMissing
	}
	if input.OpeningBalance < 0 {
		return nil, ErrInvalidOpening
	}
	date := shared.BusinessDate(input.BusinessDate)
	if input.BusinessDate.IsZero() {
		date = shared.BusinessDate(s.now())
	}

	hash, err := s.repo.PINHash(ctx, input.CashierRef)
	if err != nil {
		return nil, err
	}
	if hash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(input.PIN)); err != nil {
			return nil, ErrInvalidPIN
		}
	}

	var journal Journal
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertJournal(ctx, Journal{
			CashierRef:     input.CashierRef,
			BusinessDate:   date,
			OpeningBalance: input.OpeningBalance,
		})
		if err != nil {
			return err
		}
		journal = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.CashierRef, "journal.open", journal.ID, map[string]any{
		"business_date":   date.Format("2006-01-02"),
		"opening_balance": input.OpeningBalance,
	})
	return &journal, nil
}

// CloseJournalInput groups fields required to close a drawer session.
type CloseJournalInput struct {
	CashierRef   uuid.UUID
	BusinessDate time.Time
	// CountedBalance is the physically counted cash, when the cashier
	// declares one. The expected closing is computed either way.
	CountedBalance *int64
}

// CloseJournal closes the session and records the expected closing balance,
// opening balance plus the journal's non-voided cash receipts. The second
// close of the same journal fails and leaves the first close untouched.
func (s *Service) CloseJournal(ctx context.Context, input CloseJournalInput) (*Journal, error) {
	if input.CashierRef == uuid.Nil {
		return nil, shared.ErrCashierMissing
	}
	date := shared.BusinessDate(input.BusinessDate)
	if input.BusinessDate.IsZero() {
		date = shared.BusinessDate(s.now())
	}

	var journal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalForUpdate(ctx, input.CashierRef, date)
		if err != nil {
			return err
		}
		if current.Status == JournalClosed {
			return ErrJournalAlreadyClosed
		}

		cash, err := tx.CashTotalForJournal(ctx, current.ID)
		if err != nil {
			return err
		}
		closing := current.OpeningBalance + cash
		at := s.now()
		if err := tx.CloseJournal(ctx, current.ID, closing, input.CountedBalance, at); err != nil {
			return err
		}

		current.Status = JournalClosed
		current.ClosingBalance = &closing
		current.CountedBalance = input.CountedBalance
		current.ClosedAt = &at
		journal = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"business_date":   date.Format("2006-01-02"),
		"closing_balance": *journal.ClosingBalance,
	}
	if journal.CountedBalance != nil {
		meta["counted_balance"] = *journal.CountedBalance
		meta["variance"] = journal.Variance()
	}
	s.recordAudit(ctx, input.CashierRef, "journal.close", journal.ID, meta)
	return &journal, nil
}

// GetJournal returns the journal for (cashier, date) in any state.
func (s *Service) GetJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (*Journal, error) {
	return s.repo.GetJournal(ctx, cashierRef, shared.BusinessDate(businessDate))
}

// GetDailyReport aggregates the day's receipts by method and the day's
// invoices by status. It reads the ledger directly and works whether or not a
// journal is open.
func (s *Service) GetDailyReport(ctx context.Context, date time.Time, cashierRef *uuid.UUID) (*DailyReport, error) {
	day := shared.BusinessDate(date)

	methods, err := s.repo.MethodTotals(ctx, day, cashierRef)
	if err != nil {
		return nil, err
	}
	statuses, err := s.repo.StatusCounts(ctx, day)
	if err != nil {
		return nil, err
	}

	report := DailyReport{
		Date:         day,
		CashierRef:   cashierRef,
		MethodTotals: methods,
		StatusCounts: statuses,
	}
	for _, t := range methods {
		report.GrandTotal += t.Amount
		if t.Method.IsCash() {
			report.CashTotal += t.Amount
		}
	}
	report.CashTotalDisplay = s.printer.Sprintf("%d", report.CashTotal)
	return &report, nil
}

func (s *Service) recordAudit(ctx context.Context, cashierRef uuid.UUID, action string, journalID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorRef: cashierRef.String(),
		Action:   action,
		Entity:   "cash_journal",
		EntityID: fmt.Sprintf("%d", journalID),
		Meta:     meta,
		At:       s.now(),
	})
}
