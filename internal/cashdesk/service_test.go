package cashdesk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/billing"
	"github.com/clinicore/clinicore/internal/shared"
)

type memoryPayment struct {
	journalID  *int64
	method     billing.PaymentMethod
	amount     int64
	cashierRef uuid.UUID
	receivedAt time.Time
	voided     bool
}

// memoryRepository is an in-memory RepositoryPort for the service tests.
type memoryRepository struct {
	mu       sync.Mutex
	journals map[int64]*Journal
	payments []memoryPayment
	pins     map[uuid.UUID]string
	nextID   int64
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		journals: make(map[int64]*Journal),
		pins:     make(map[uuid.UUID]string),
	}
}

func (m *memoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepository) GetJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (*Journal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.find(cashierRef, businessDate)
	if j == nil {
		return nil, ErrJournalNotFound
	}
	out := *j
	return &out, nil
}

func (m *memoryRepository) ListOpenJournals(ctx context.Context, before time.Time) ([]Journal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Journal
	for _, j := range m.journals {
		if j.Status == JournalOpen && j.BusinessDate.Before(before) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memoryRepository) PINHash(ctx context.Context, cashierRef uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins[cashierRef], nil
}

func (m *memoryRepository) MethodTotals(ctx context.Context, date time.Time, cashierRef *uuid.UUID) ([]MethodTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byMethod := make(map[billing.PaymentMethod]*MethodTotal)
	var order []billing.PaymentMethod
	for _, p := range m.payments {
		if p.voided || !shared.BusinessDate(p.receivedAt).Equal(date) {
			continue
		}
		if cashierRef != nil && p.cashierRef != *cashierRef {
			continue
		}
		t, ok := byMethod[p.method]
		if !ok {
			t = &MethodTotal{Method: p.method}
			byMethod[p.method] = t
			order = append(order, p.method)
		}
		t.Amount += p.amount
		t.Count++
	}
	out := make([]MethodTotal, 0, len(order))
	for _, method := range order {
		out = append(out, *byMethod[method])
	}
	return out, nil
}

func (m *memoryRepository) StatusCounts(ctx context.Context, date time.Time) ([]StatusCount, error) {
	return nil, nil
}

func (m *memoryRepository) find(cashierRef uuid.UUID, date time.Time) *Journal {
	for _, j := range m.journals {
		if j.CashierRef == cashierRef && j.BusinessDate.Equal(date) {
			return j
		}
	}
	return nil
}

func (m *memoryRepository) addPayment(journalID *int64, method billing.PaymentMethod, amount int64, cashier uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, memoryPayment{
		journalID:  journalID,
		method:     method,
		amount:     amount,
		cashierRef: cashier,
		receivedAt: at,
	})
}

type memoryTx struct {
	repo *memoryRepository
}

func (t *memoryTx) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	if existing := t.repo.find(j.CashierRef, j.BusinessDate); existing != nil && existing.Status == JournalOpen {
		return Journal{}, ErrJournalAlreadyOpen
	}
	t.repo.nextID++
	j.ID = t.repo.nextID
	j.Status = JournalOpen
	j.OpenedAt = time.Now()
	stored := j
	t.repo.journals[j.ID] = &stored
	return j, nil
}

func (t *memoryTx) GetJournalForUpdate(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (Journal, error) {
	j := t.repo.find(cashierRef, businessDate)
	if j == nil {
		return Journal{}, ErrJournalNotFound
	}
	return *j, nil
}

func (t *memoryTx) CashTotalForJournal(ctx context.Context, journalID int64) (int64, error) {
	var total int64
	for _, p := range t.repo.payments {
		if p.voided || p.journalID == nil || *p.journalID != journalID || !p.method.IsCash() {
			continue
		}
		total += p.amount
	}
	return total, nil
}

func (t *memoryTx) CloseJournal(ctx context.Context, id int64, closing int64, counted *int64, at time.Time) error {
	j, ok := t.repo.journals[id]
	if !ok {
		return ErrJournalNotFound
	}
	if j.Status == JournalClosed {
		return ErrJournalAlreadyClosed
	}
	j.Status = JournalClosed
	j.ClosingBalance = &closing
	j.CountedBalance = counted
	j.ClosedAt = &at
	return nil
}

func TestOpenJournalOncePerDay(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	cashier := uuid.New()

	journal, err := svc.OpenJournal(ctx, OpenJournalInput{
		CashierRef:     cashier,
		OpeningBalance: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, JournalOpen, journal.Status)
	require.Equal(t, int64(10000), journal.OpeningBalance)

	_, err = svc.OpenJournal(ctx, OpenJournalInput{
		CashierRef:     cashier,
		OpeningBalance: 5000,
	})
	require.ErrorIs(t, err, ErrJournalAlreadyOpen)

	// A different cashier can open the same day.
	_, err = svc.OpenJournal(ctx, OpenJournalInput{
		CashierRef:     uuid.New(),
		OpeningBalance: 0,
	})
	require.NoError(t, err)
}

func TestOpenJournalValidation(t *testing.T) {
	svc := NewService(newMemoryRepository(), nil)
	ctx := context.Background()

	_, err := svc.OpenJournal(ctx, OpenJournalInput{OpeningBalance: 100})
	require.ErrorIs(t, err, shared.ErrCashierMissing)

	_, err = svc.OpenJournal(ctx, OpenJournalInput{CashierRef: uuid.New(), OpeningBalance: -1})
	require.ErrorIs(t, err, ErrInvalidOpening)
}

func TestOpenJournalChecksDrawerPIN(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	cashier := uuid.New()

	hash, err := bcrypt.GenerateFromPassword([]byte("4217"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.pins[cashier] = string(hash)

	_, err = svc.OpenJournal(ctx, OpenJournalInput{CashierRef: cashier, OpeningBalance: 1000, PIN: "0000"})
	require.ErrorIs(t, err, ErrInvalidPIN)

	_, err = svc.OpenJournal(ctx, OpenJournalInput{CashierRef: cashier, OpeningBalance: 1000, PIN: "4217"})
	require.NoError(t, err)
}

func TestCloseJournalComputesExpectedCash(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	cashier := uuid.New()
	now := time.Now()

	journal, err := svc.OpenJournal(ctx, OpenJournalInput{
		CashierRef:     cashier,
		OpeningBalance: 10000,
	})
	require.NoError(t, err)

	repo.addPayment(&journal.ID, billing.MethodCash, 2000, cashier, now)
	repo.addPayment(&journal.ID, billing.MethodCash, 1500, cashier, now)
	// Non-cash receipts never enter the drawer total.
	repo.addPayment(&journal.ID, billing.MethodMobileMoneyMTN, 8000, cashier, now)

	counted := int64(13000)
	closed, err := svc.CloseJournal(ctx, CloseJournalInput{
		CashierRef:     cashier,
		CountedBalance: &counted,
	})
	require.NoError(t, err)
	require.Equal(t, JournalClosed, closed.Status)
	require.NotNil(t, closed.ClosingBalance)
	require.Equal(t, int64(13500), *closed.ClosingBalance)
	require.Equal(t, int64(-500), closed.Variance())
}

func TestCloseJournalSecondCloseFails(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	cashier := uuid.New()

	journal, err := svc.OpenJournal(ctx, OpenJournalInput{CashierRef: cashier, OpeningBalance: 5000})
	require.NoError(t, err)
	repo.addPayment(&journal.ID, billing.MethodCash, 1000, cashier, time.Now())

	first, err := svc.CloseJournal(ctx, CloseJournalInput{CashierRef: cashier})
	require.NoError(t, err)
	require.Equal(t, int64(6000), *first.ClosingBalance)

	// More cash lands between the two close attempts; the second close must
	// fail without touching the recorded balance.
	repo.addPayment(&journal.ID, billing.MethodCash, 9999, cashier, time.Now())

	_, err = svc.CloseJournal(ctx, CloseJournalInput{CashierRef: cashier})
	require.ErrorIs(t, err, ErrJournalAlreadyClosed)

	got, err := svc.GetJournal(ctx, cashier, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(6000), *got.ClosingBalance)
}

func TestCloseJournalNotFound(t *testing.T) {
	svc := NewService(newMemoryRepository(), nil)
	_, err := svc.CloseJournal(context.Background(), CloseJournalInput{CashierRef: uuid.New()})
	require.ErrorIs(t, err, ErrJournalNotFound)
}

func TestDailyReportTotals(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()
	cashier := uuid.New()
	now := time.Now()

	repo.addPayment(nil, billing.MethodCash, 2000, cashier, now)
	repo.addPayment(nil, billing.MethodCash, 1500, cashier, now)
	repo.addPayment(nil, billing.MethodMobileMoneyMTN, 8000, cashier, now)
	repo.addPayment(nil, billing.MethodCoverage, 12000, uuid.New(), now)
	// Yesterday's receipt stays out of today's report.
	repo.addPayment(nil, billing.MethodCash, 700, cashier, now.AddDate(0, 0, -1))

	report, err := svc.GetDailyReport(ctx, now, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3500), report.CashTotal)
	require.Equal(t, int64(23500), report.GrandTotal)
	require.Len(t, report.MethodTotals, 3)
	require.NotEmpty(t, report.CashTotalDisplay)

	scoped, err := svc.GetDailyReport(ctx, now, &cashier)
	require.NoError(t, err)
	require.Equal(t, int64(11500), scoped.GrandTotal)
}
