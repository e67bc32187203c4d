package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/clinicore/clinicore/internal/shared"
)

type journalKey struct {
	cashier uuid.UUID
	date    time.Time
}

// memoryRepository is an in-memory RepositoryPort. WithTx holds one mutex for
// the duration of the callback, which models the per-invoice row lock closely
// enough for the service tests: concurrent payments serialise and each re-reads
// the balance the previous one committed.
type memoryRepository struct {
	mu            sync.Mutex
	invoices      map[int64]*Invoice
	lines         map[int64][]InvoiceLine
	payments      map[int64]*Payment
	journals      map[journalKey]int64
	nextInvoiceID int64
	nextLineID    int64
	nextPaymentID int64

	// commitErr makes the next WithTx fail at commit time, after the
	// callback succeeded, with the writes rolled back.
	commitErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		invoices: make(map[int64]*Invoice),
		lines:    make(map[int64][]InvoiceLine),
		payments: make(map[int64]*Payment),
		journals: make(map[journalKey]int64),
	}
}

func (m *memoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapInvoices := make(map[int64]Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		snapInvoices[id] = *inv
	}
	snapPayments := make(map[int64]Payment, len(m.payments))
	for id, p := range m.payments {
		snapPayments[id] = *p
	}
	snapIDs := [3]int64{m.nextInvoiceID, m.nextLineID, m.nextPaymentID}

	rollback := func() {
		m.invoices = make(map[int64]*Invoice, len(snapInvoices))
		for id := range snapInvoices {
			inv := snapInvoices[id]
			m.invoices[id] = &inv
		}
		m.payments = make(map[int64]*Payment, len(snapPayments))
		for id := range snapPayments {
			p := snapPayments[id]
			m.payments[id] = &p
		}
		m.nextInvoiceID, m.nextLineID, m.nextPaymentID = snapIDs[0], snapIDs[1], snapIDs[2]
	}

	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		rollback()
		return err
	}
	if m.commitErr != nil {
		err := m.commitErr
		m.commitErr = nil
		rollback()
		return err
	}
	return nil
}

func (m *memoryRepository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *inv
	out.Lines = append([]InvoiceLine(nil), m.lines[id]...)
	return &out, nil
}

func (m *memoryRepository) ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.PatientRef != uuid.Nil && inv.PatientRef != filter.PatientRef {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *memoryRepository) ListPaymentsForInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for id := int64(1); id <= m.nextPaymentID; id++ {
		if p, ok := m.payments[id]; ok && p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryRepository) openJournal(cashier uuid.UUID, date time.Time, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journals[journalKey{cashier: cashier, date: date}] = id
}

type memoryTx struct {
	repo *memoryRepository
}

func (t *memoryTx) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	t.repo.nextInvoiceID++
	inv.ID = t.repo.nextInvoiceID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	stored := inv
	t.repo.invoices[inv.ID] = &stored
	return inv, nil
}

func (t *memoryTx) InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []InvoiceLine) ([]InvoiceLine, error) {
	out := make([]InvoiceLine, 0, len(lines))
	for _, line := range lines {
		t.repo.nextLineID++
		line.ID = t.repo.nextLineID
		line.InvoiceID = invoiceID
		out = append(out, line)
	}
	t.repo.lines[invoiceID] = append(t.repo.lines[invoiceID], out...)
	return out, nil
}

func (t *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return *inv, nil
}

func (t *memoryTx) SetInvoicePaidStatus(ctx context.Context, id int64, paidTotal int64, status InvoiceStatus) error {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.PaidTotal = paidTotal
	inv.Status = status
	return nil
}

func (t *memoryTx) MarkInvoiceCancelled(ctx context.Context, id int64, at time.Time) error {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = StatusCancelled
	inv.CancelledAt = &at
	return nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	t.repo.nextPaymentID++
	p.ID = t.repo.nextPaymentID
	p.CreatedAt = time.Now()
	stored := p
	t.repo.payments[p.ID] = &stored
	return p, nil
}

func (t *memoryTx) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	p, ok := t.repo.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *p, nil
}

func (t *memoryTx) MarkPaymentVoid(ctx context.Context, id int64, reason string, at time.Time) error {
	p, ok := t.repo.payments[id]
	if !ok {
		return ErrNotFound
	}
	if p.VoidedAt != nil {
		return ErrPaymentAlreadyVoid
	}
	p.VoidedAt = &at
	p.VoidReason = reason
	return nil
}

func (t *memoryTx) FindOpenJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (int64, error) {
	id, ok := t.repo.journals[journalKey{cashier: cashierRef, date: businessDate}]
	if !ok {
		return 0, ErrNoOpenJournal
	}
	return id, nil
}

type memoryNumbering struct {
	mu       sync.Mutex
	invoices int64
	payments int64
}

func (m *memoryNumbering) NextInvoiceNumber(ctx context.Context, clinicRef uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices++
	return fmt.Sprintf("FAC-2025-%06d", m.invoices), nil
}

func (m *memoryNumbering) NextPaymentNumber(ctx context.Context, clinicRef uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments++
	return fmt.Sprintf("REC-2025-%06d", m.payments), nil
}

type memoryEvents struct {
	mu    sync.Mutex
	paid  []PaidEvent
	bumps int
}

func (m *memoryEvents) InvoicePaid(ctx context.Context, inv Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid = append(m.paid, PaidEvent{InvoiceID: inv.ID, Number: inv.Number})
	return nil
}

func (m *memoryEvents) LedgerChanged(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bumps++
	return nil
}

func (m *memoryEvents) paidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paid)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

type fixture struct {
	repo        *memoryRepository
	service     *Service
	events      *memoryEvents
	audit       *memoryAudit
	idempotency *memoryIdempotency
	clinicRef   uuid.UUID
	cashierRef  uuid.UUID
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	repo := newMemoryRepository()
	events := &memoryEvents{}
	audit := &memoryAudit{}
	idem := newMemoryIdempotency()
	svc := NewService(repo, &memoryNumbering{}, audit, events, idem, cfg)
	return &fixture{
		repo:        repo,
		service:     svc,
		events:      events,
		audit:       audit,
		idempotency: idem,
		clinicRef:   uuid.New(),
		cashierRef:  uuid.New(),
	}
}

func (f *fixture) createInvoice(t *testing.T, lines []LineInput, discount int64) *Invoice {
	t.Helper()
	inv, err := f.service.CreateInvoice(context.Background(), CreateInvoiceInput{
		ClinicRef:  f.clinicRef,
		PatientRef: uuid.New(),
		Discount:   discount,
		Lines:      lines,
	})
	require.NoError(t, err)
	return inv
}

func consultationLines(price int64) []LineInput {
	return []LineInput{{ServiceCode: "CONS-GEN", Label: "Consultation generale", Quantity: 1, UnitPrice: price}}
}

func cashPayment(invoiceID, amount int64, cashier uuid.UUID) RecordPaymentInput {
	return RecordPaymentInput{
		InvoiceID:  invoiceID,
		Amount:     amount,
		Method:     MethodCash,
		CashierRef: cashier,
	}
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	f := newFixture(t, Config{})

	inv := f.createInvoice(t, []LineInput{
		{ServiceCode: "CONS-GEN", Label: "Consultation", Quantity: 1, UnitPrice: 10000},
		{ServiceCode: "LAB-NFS", Label: "NFS", Quantity: 2, UnitPrice: 4500, LineDiscount: 1000},
	}, 2000)

	require.Equal(t, "FAC-2025-000001", inv.Number)
	require.Equal(t, int64(18000), inv.GrossTotal)
	require.Equal(t, int64(2000), inv.DiscountTotal)
	require.Equal(t, int64(16000), inv.NetTotal)
	require.Equal(t, int64(0), inv.PaidTotal)
	require.Equal(t, int64(16000), inv.BalanceDue())
	require.Equal(t, StatusPending, inv.Status)
	require.Len(t, inv.Lines, 2)
	require.Equal(t, int64(8000), inv.Lines[1].Amount)
}

func TestCreateInvoiceZeroTotalBornSettled(t *testing.T) {
	f := newFixture(t, Config{})

	inv := f.createInvoice(t, []LineInput{
		{ServiceCode: "CONS-SOC", Label: "Consultation exoneree", Quantity: 1, UnitPrice: 5000, LineDiscount: 5000},
	}, 0)

	require.Equal(t, StatusPaid, inv.Status)
	require.True(t, inv.Settled())
	require.Equal(t, 1, f.events.paidCount())

	settled, err := f.service.IsInvoiceSettled(context.Background(), inv.ID)
	require.NoError(t, err)
	require.True(t, settled)
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.service.CreateInvoice(ctx, CreateInvoiceInput{
		ClinicRef:  f.clinicRef,
		PatientRef: uuid.New(),
	})
	require.ErrorIs(t, err, ErrEmptyInvoice)

	_, err = f.service.CreateInvoice(ctx, CreateInvoiceInput{
		ClinicRef:  f.clinicRef,
		PatientRef: uuid.New(),
		Lines:      []LineInput{{ServiceCode: "CONS-GEN", Quantity: 0, UnitPrice: 1000}},
	})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = f.service.CreateInvoice(ctx, CreateInvoiceInput{
		ClinicRef:  f.clinicRef,
		PatientRef: uuid.New(),
		Lines:      []LineInput{{ServiceCode: "CONS-GEN", Quantity: 1, UnitPrice: 1000, LineDiscount: 1500}},
	})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = f.service.CreateInvoice(ctx, CreateInvoiceInput{
		ClinicRef:  f.clinicRef,
		PatientRef: uuid.New(),
		Discount:   20000,
		Lines:      consultationLines(10000),
	})
	require.ErrorIs(t, err, ErrInvalidDiscount)
}

func TestPartialPaymentsSettleInvoice(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(25000), 0)

	first, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 10000, f.cashierRef))
	require.NoError(t, err)
	require.Equal(t, "REC-2025-000001", first.Payment.Number)
	require.Equal(t, int64(15000), first.BalanceDue)
	require.Equal(t, StatusPartiallyPaid, first.Status)
	require.Equal(t, 0, f.events.paidCount())

	second, err := f.service.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID:      inv.ID,
		Amount:         15000,
		Method:         MethodMobileMoneyMTN,
		TransactionRef: "MTN-778812",
		CashierRef:     f.cashierRef,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), second.BalanceDue)
	require.Equal(t, StatusPaid, second.Status)
	require.Equal(t, 1, f.events.paidCount())

	payments, err := f.service.ListPaymentsForInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
}

func TestOverpaymentRejected(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(20000), 0)

	_, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 20001, f.cashierRef))
	require.ErrorIs(t, err, ErrOverpayment)

	got, err := f.service.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.PaidTotal)
	require.Equal(t, StatusPending, got.Status)

	result, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 20000, f.cashierRef))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, result.Status)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(10000), 0)

	_, err := f.service.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: 0, Method: MethodCash, CashierRef: f.cashierRef})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.service.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: 1000, Method: "BARTER", CashierRef: f.cashierRef})
	require.ErrorIs(t, err, ErrInvalidMethod)

	_, err = f.service.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: 1000, Method: MethodCard, CashierRef: f.cashierRef})
	require.ErrorIs(t, err, ErrMissingMethodField)

	_, err = f.service.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: 1000, Method: MethodCheque, BankName: "BOA", CashierRef: f.cashierRef})
	require.ErrorIs(t, err, ErrMissingMethodField)

	_, err = f.service.RecordPayment(ctx, RecordPaymentInput{InvoiceID: inv.ID, Amount: 1000, Method: MethodCoverage, CashierRef: f.cashierRef})
	require.ErrorIs(t, err, ErrMissingMethodField)

	_, err = f.service.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID:    inv.ID,
		Amount:       1000,
		Method:       MethodCheque,
		BankName:     "BOA",
		ChequeNumber: "0042137",
		CashierRef:   f.cashierRef,
	})
	require.NoError(t, err)
}

func TestPaymentRequiresOpenJournal(t *testing.T) {
	f := newFixture(t, Config{RequireOpenJournal: true})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(10000), 0)

	_, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 5000, f.cashierRef))
	require.ErrorIs(t, err, ErrNoOpenJournal)

	// Only physical cash needs the drawer; mobile money goes through without
	// a journal.
	mobile, err := f.service.RecordPayment(ctx, RecordPaymentInput{
		InvoiceID:      inv.ID,
		Amount:         2000,
		Method:         MethodMobileMoneyMTN,
		TransactionRef: "MTN-4471",
		CashierRef:     f.cashierRef,
	})
	require.NoError(t, err)
	require.Nil(t, mobile.Payment.JournalID)

	f.repo.openJournal(f.cashierRef, shared.BusinessDate(time.Now()), 7)

	result, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 5000, f.cashierRef))
	require.NoError(t, err)
	require.NotNil(t, result.Payment.JournalID)
	require.Equal(t, int64(7), *result.Payment.JournalID)
}

func TestCashPaymentLinksOpenJournalWithoutPolicy(t *testing.T) {
	f := newFixture(t, Config{RequireOpenJournal: false})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(10000), 0)
	f.repo.openJournal(f.cashierRef, shared.BusinessDate(time.Now()), 9)

	// The policy only controls rejection; an open journal always captures
	// the cashier's takings, or the drawer close would reconcile short.
	result, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 5000, f.cashierRef))
	require.NoError(t, err)
	require.NotNil(t, result.Payment.JournalID)
	require.Equal(t, int64(9), *result.Payment.JournalID)

	// Without a journal the payment still goes through, unlinked.
	other, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 3000, uuid.New()))
	require.NoError(t, err)
	require.Nil(t, other.Payment.JournalID)
}

func TestCancelInvoiceRules(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	pending := f.createInvoice(t, consultationLines(10000), 0)
	cancelled, err := f.service.CancelInvoice(ctx, pending.ID, f.cashierRef)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.service.RecordPayment(ctx, cashPayment(pending.ID, 1000, f.cashierRef))
	require.ErrorIs(t, err, ErrInvoiceNotPayable)

	_, err = f.service.CancelInvoice(ctx, pending.ID, f.cashierRef)
	require.ErrorIs(t, err, ErrInvoiceNotCancellable)

	paidSome := f.createInvoice(t, consultationLines(10000), 0)
	_, err = f.service.RecordPayment(ctx, cashPayment(paidSome.ID, 4000, f.cashierRef))
	require.NoError(t, err)

	_, err = f.service.CancelInvoice(ctx, paidSome.ID, f.cashierRef)
	require.ErrorIs(t, err, ErrInvoiceHasPayments)
}

func TestVoidPaymentRestoresBalance(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(15000), 0)

	result, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 15000, f.cashierRef))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, result.Status)

	voided, err := f.service.VoidPayment(ctx, VoidPaymentInput{
		PaymentID:  result.Payment.ID,
		Reason:     "double keying",
		CashierRef: f.cashierRef,
	})
	require.NoError(t, err)
	require.True(t, voided.Payment.Voided())
	require.Equal(t, int64(15000), voided.BalanceDue)
	require.Equal(t, StatusPending, voided.Status)

	_, err = f.service.VoidPayment(ctx, VoidPaymentInput{
		PaymentID:  result.Payment.ID,
		Reason:     "again",
		CashierRef: f.cashierRef,
	})
	require.ErrorIs(t, err, ErrPaymentAlreadyVoid)

	got, err := f.service.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.PaidTotal)
}

func TestIdempotentPaymentSubmission(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(10000), 0)

	input := cashPayment(inv.ID, 4000, f.cashierRef)
	input.IdempotencyKey = "pay-abc-1"

	_, err := f.service.RecordPayment(ctx, input)
	require.NoError(t, err)

	_, err = f.service.RecordPayment(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	// A rejected payment releases the key so the caller can retry with a
	// corrected amount.
	over := cashPayment(inv.ID, 99999, f.cashierRef)
	over.IdempotencyKey = "pay-abc-2"
	_, err = f.service.RecordPayment(ctx, over)
	require.ErrorIs(t, err, ErrOverpayment)

	retry := cashPayment(inv.ID, 6000, f.cashierRef)
	retry.IdempotencyKey = "pay-abc-2"
	result, err := f.service.RecordPayment(ctx, retry)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, result.Status)
}

func TestPaidEventWaitsForCommit(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(10000), 0)

	// A commit-time failure must not announce the invoice as settled.
	f.repo.commitErr = errors.New("connection reset during commit")
	_, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 10000, f.cashierRef))
	require.Error(t, err)
	require.Equal(t, 0, f.events.paidCount())

	got, err := f.service.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.PaidTotal)

	result, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 10000, f.cashierRef))
	require.NoError(t, err)
	require.Equal(t, StatusPaid, result.Status)
	require.Equal(t, 1, f.events.paidCount())
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	inv := f.createInvoice(t, consultationLines(10000), 0)

	// Eleven cashiers race 1000 each against a 10000 balance. Exactly ten
	// can land; the eleventh must hit the overpayment guard.
	var g errgroup.Group
	var mu sync.Mutex
	var rejected int
	for i := 0; i < 11; i++ {
		g.Go(func() error {
			_, err := f.service.RecordPayment(ctx, cashPayment(inv.ID, 1000, uuid.New()))
			if err != nil {
				if !errors.Is(err, ErrOverpayment) {
					return err
				}
				mu.Lock()
				rejected++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, rejected)

	got, err := f.service.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), got.PaidTotal)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, 1, f.events.paidCount())
}

func TestListInvoicesFilterValidation(t *testing.T) {
	f := newFixture(t, Config{})
	_, _, err := f.service.ListInvoices(context.Background(), ListInvoicesFilter{Status: "SHRUG"})
	require.Error(t, err)
}
