package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/billing"
	"github.com/clinicore/clinicore/internal/reporting/export"
)

// LedgerTotals carries the headline sums over non-cancelled invoices.
type LedgerTotals struct {
	InvoiceCount int   `json:"invoice_count"`
	NetTotal     int64 `json:"net_total"`
	PaidTotal    int64 `json:"paid_total"`
	BalanceDue   int64 `json:"balance_due"`
}

// StatusBucket counts invoices per status, cancelled included so the bucket
// view stays complete even though cancelled amounts never enter the totals.
type StatusBucket struct {
	Status billing.InvoiceStatus `json:"status"`
	Count  int                   `json:"count"`
}

// CategoryAmount sums billed amounts per service category.
type CategoryAmount struct {
	ServiceType string `json:"service_type"`
	Amount      int64  `json:"amount"`
}

// MethodAmount sums received amounts per payment method.
type MethodAmount struct {
	Method billing.PaymentMethod `json:"method"`
	Amount int64                 `json:"amount"`
}

// InvoiceRow is one line of the invoice export. The type is defined in the
// export package to avoid an import cycle and aliased here.
type InvoiceRow = export.InvoiceRow

// RepositoryPort defines the read-side queries. All of them tolerate
// in-flight payment transactions: they read committed state only and never
// take locks.
type RepositoryPort interface {
	LedgerTotals(ctx context.Context, from, to time.Time) (LedgerTotals, error)
	StatusBuckets(ctx context.Context, from, to time.Time) ([]StatusBucket, error)
	CategoryAmounts(ctx context.Context, from, to time.Time) ([]CategoryAmount, error)
	MethodAmounts(ctx context.Context, from, to time.Time) ([]MethodAmount, error)
	InvoiceRows(ctx context.Context, from, to time.Time) ([]InvoiceRow, error)
}

// Repository provides PostgreSQL backed read models for reporting.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LedgerTotals sums the non-cancelled invoices created in the range.
func (r *Repository) LedgerTotals(ctx context.Context, from, to time.Time) (LedgerTotals, error) {
	var t LedgerTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(net_total), 0),
		       COALESCE(SUM(paid_total), 0),
		       COALESCE(SUM(GREATEST(net_total - paid_total, 0)), 0)
		FROM invoices
		WHERE status <> $1 AND created_at >= $2 AND created_at < $3`,
		string(billing.StatusCancelled), from, to,
	).Scan(&t.InvoiceCount, &t.NetTotal, &t.PaidTotal, &t.BalanceDue)
	return t, err
}

// StatusBuckets counts invoices by status in the range.
func (r *Repository) StatusBuckets(ctx context.Context, from, to time.Time) ([]StatusBucket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status ORDER BY status`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []StatusBucket
	for rows.Next() {
		var b StatusBucket
		var status string
		if err := rows.Scan(&status, &b.Count); err != nil {
			return nil, err
		}
		b.Status = billing.InvoiceStatus(status)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// CategoryAmounts sums line amounts per service category over non-cancelled
// invoices, joining the catalog for the category of each billed code.
func (r *Repository) CategoryAmounts(ctx context.Context, from, to time.Time) ([]CategoryAmount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(s.service_type, 'UNCLASSIFIED'), COALESCE(SUM(l.amount), 0)
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		LEFT JOIN billable_services s ON s.code = l.service_code
		WHERE i.status <> $1 AND i.created_at >= $2 AND i.created_at < $3
		GROUP BY 1 ORDER BY 1`,
		string(billing.StatusCancelled), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amounts []CategoryAmount
	for rows.Next() {
		var a CategoryAmount
		if err := rows.Scan(&a.ServiceType, &a.Amount); err != nil {
			return nil, err
		}
		amounts = append(amounts, a)
	}
	return amounts, rows.Err()
}

// MethodAmounts sums non-voided payments per method in the range.
func (r *Repository) MethodAmounts(ctx context.Context, from, to time.Time) ([]MethodAmount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT method, COALESCE(SUM(amount), 0)
		FROM payments
		WHERE voided_at IS NULL AND received_at >= $1 AND received_at < $2
		GROUP BY method ORDER BY method`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amounts []MethodAmount
	for rows.Next() {
		var a MethodAmount
		var method string
		if err := rows.Scan(&method, &a.Amount); err != nil {
			return nil, err
		}
		a.Method = billing.PaymentMethod(method)
		amounts = append(amounts, a)
	}
	return amounts, rows.Err()
}

// InvoiceRows lists invoices for export, oldest first so re-exports of the
// same range produce identical files.
func (r *Repository) InvoiceRows(ctx context.Context, from, to time.Time) ([]InvoiceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT number, created_at, patient_ref, net_total, paid_total,
		       GREATEST(net_total - paid_total, 0), status
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvoiceRow
	for rows.Next() {
		var row InvoiceRow
		var status string
		if err := rows.Scan(&row.Number, &row.Date, &row.PatientRef, &row.NetTotal,
			&row.PaidTotal, &row.BalanceDue, &status); err != nil {
			return nil, err
		}
		row.Status = billing.InvoiceStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}
