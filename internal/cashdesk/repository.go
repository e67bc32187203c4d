package cashdesk

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/billing"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// RepositoryPort defines data access for cash journals and daily reports.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (*Journal, error)
	ListOpenJournals(ctx context.Context, before time.Time) ([]Journal, error)
	PINHash(ctx context.Context, cashierRef uuid.UUID) (string, error)
	MethodTotals(ctx context.Context, date time.Time, cashierRef *uuid.UUID) ([]MethodTotal, error)
	StatusCounts(ctx context.Context, date time.Time) ([]StatusCount, error)
}

// TxRepository exposes journal mutations inside a transaction. The close path
// locks the journal row so a racing second close observes the first.
type TxRepository interface {
	InsertJournal(ctx context.Context, j Journal) (Journal, error)
	GetJournalForUpdate(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (Journal, error)
	CashTotalForJournal(ctx context.Context, journalID int64) (int64, error)
	CloseJournal(ctx context.Context, id int64, closing int64, counted *int64, at time.Time) error
}

// Repository provides PostgreSQL backed persistence for the cash desk.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const journalColumns = `id, cashier_ref, business_date, opening_balance, closing_balance,
	counted_balance, status, opened_at, closed_at`

// GetJournal returns the journal for (cashier, date) regardless of state.
func (r *Repository) GetJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (*Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM cash_journals
		WHERE cashier_ref = $1 AND business_date = $2
		ORDER BY opened_at DESC LIMIT 1`
	j, err := scanJournal(r.pool.QueryRow(ctx, query, cashierRef, businessDate))
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListOpenJournals returns journals still open for business dates before the
// cutoff, used by the end-of-day reminder scan.
func (r *Repository) ListOpenJournals(ctx context.Context, before time.Time) ([]Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM cash_journals
		WHERE status = 'OPEN' AND business_date < $1
		ORDER BY business_date, cashier_ref`
	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var journals []Journal
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		journals = append(journals, j)
	}
	return journals, rows.Err()
}

// PINHash returns the bcrypt hash of the cashier's drawer pin, or empty when
// none is provisioned.
func (r *Repository) PINHash(ctx context.Context, cashierRef uuid.UUID) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT pin_hash FROM cashier_pins WHERE cashier_ref = $1`, cashierRef,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// MethodTotals aggregates non-voided payments received on the date, optionally
// narrowed to one cashier.
func (r *Repository) MethodTotals(ctx context.Context, date time.Time, cashierRef *uuid.UUID) ([]MethodTotal, error) {
	query := `
		SELECT method, COALESCE(SUM(amount), 0), COUNT(*)
		FROM payments
		WHERE voided_at IS NULL
		  AND received_at >= $1 AND received_at < $2`
	args := []any{date, date.AddDate(0, 0, 1)}
	if cashierRef != nil {
		query += ` AND cashier_ref = $3`
		args = append(args, *cashierRef)
	}
	query += ` GROUP BY method ORDER BY method`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []MethodTotal
	for rows.Next() {
		var t MethodTotal
		var method string
		if err := rows.Scan(&method, &t.Amount, &t.Count); err != nil {
			return nil, err
		}
		t.Method = billing.PaymentMethod(method)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// StatusCounts counts the invoices created on the date by status.
func (r *Repository) StatusCounts(ctx context.Context, date time.Time) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status ORDER BY status`,
		date, date.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		var status string
		if err := rows.Scan(&status, &c.Count); err != nil {
			return nil, err
		}
		c.Status = billing.InvoiceStatus(status)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// WithTx wraps fn in a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO cash_journals (cashier_ref, business_date, opening_balance, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, opened_at`,
		j.CashierRef, j.BusinessDate, j.OpeningBalance, string(JournalOpen),
	)
	if err := row.Scan(&j.ID, &j.OpenedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "cash_journals_one_open" {
			return Journal{}, ErrJournalAlreadyOpen
		}
		return Journal{}, err
	}
	j.Status = JournalOpen
	return j, nil
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (Journal, error) {
	query := `SELECT ` + journalColumns + ` FROM cash_journals
		WHERE cashier_ref = $1 AND business_date = $2
		ORDER BY opened_at DESC LIMIT 1
		FOR UPDATE`
	return scanJournal(r.tx.QueryRow(ctx, query, cashierRef, businessDate))
}

func (r *txRepository) CashTotalForJournal(ctx context.Context, journalID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE journal_id = $1 AND method = $2 AND voided_at IS NULL`,
		journalID, string(billing.MethodCash),
	).Scan(&total)
	return total, err
}

func (r *txRepository) CloseJournal(ctx context.Context, id int64, closing int64, counted *int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `
		UPDATE cash_journals
		SET status = $2, closing_balance = $3, counted_balance = $4, closed_at = $5
		WHERE id = $1 AND status = $6`,
		id, string(JournalClosed), closing, counted, at, string(JournalOpen))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalAlreadyClosed
	}
	return nil
}

func scanJournal(row pgx.Row) (Journal, error) {
	var j Journal
	var closing, counted pgtype.Int8
	var closedAt pgtype.Timestamptz
	var status string

	err := row.Scan(
		&j.ID, &j.CashierRef, &j.BusinessDate, &j.OpeningBalance,
		&closing, &counted, &status, &j.OpenedAt, &closedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Journal{}, ErrJournalNotFound
	}
	if err != nil {
		return Journal{}, err
	}

	j.Status = JournalStatus(status)
	if closing.Valid {
		j.ClosingBalance = &closing.Int64
	}
	if counted.Valid {
		j.CountedBalance = &counted.Int64
	}
	if closedAt.Valid {
		j.ClosedAt = &closedAt.Time
	}
	return j, nil
}
