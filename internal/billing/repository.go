package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

// RepositoryPort defines data access for the invoice ledger and payment
// engine. Mutations that must be atomic run inside WithTx.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]Invoice, int, error)
	ListPaymentsForInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// TxRepository exposes the operations available within a transaction. The
// per-invoice critical section is the FOR UPDATE row lock taken by
// GetInvoiceForUpdate; everything between it and commit is atomic.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []InvoiceLine) ([]InvoiceLine, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	SetInvoicePaidStatus(ctx context.Context, id int64, paidTotal int64, status InvoiceStatus) error
	MarkInvoiceCancelled(ctx context.Context, id int64, at time.Time) error
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	MarkPaymentVoid(ctx context.Context, id int64, reason string, at time.Time) error

	// Journal linkage needed inside payment transactions. Reads the journal
	// row here rather than through cashdesk so the check and the payment
	// insert share one transaction.
	FindOpenJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (int64, error)
}

// Repository provides PostgreSQL backed persistence for billing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, clinic_ref, patient_ref, encounter_ref, gross_total,
	discount_total, net_total, paid_total, status, origin_tag, cancelled_at, created_at, updated_at`

const paymentColumns = `id, number, invoice_id, amount, method, transaction_ref, bank_name,
	cheque_number, coverage_ref, cashier_ref, journal_id, received_at, voided_at, void_reason, created_at`

// GetInvoice retrieves an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	lines, err := r.listLines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return &inv, nil
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, service_code, label, quantity, unit_price, line_discount, amount, created_at
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(
			&line.ID, &line.InvoiceID, &line.ServiceCode, &line.Label,
			&line.Quantity, &line.UnitPrice, &line.LineDiscount, &line.Amount, &line.CreatedAt,
		); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListInvoices returns invoices matching the filter plus the total count.
func (r *Repository) ListInvoices(ctx context.Context, filter ListInvoicesFilter) ([]Invoice, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	argNum := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.PatientRef != uuid.Nil {
		where += fmt.Sprintf(" AND patient_ref = $%d", argNum)
		args = append(args, filter.PatientRef)
		argNum++
	}
	if filter.NumberQuery != "" {
		where += fmt.Sprintf(" AND number ILIKE $%d", argNum)
		args = append(args, "%"+filter.NumberQuery+"%")
		argNum++
	}
	if !filter.From.IsZero() {
		where += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, filter.From)
		argNum++
	}
	if !filter.To.IsZero() {
		where += fmt.Sprintf(" AND created_at < $%d", argNum)
		args = append(args, filter.To)
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM invoices"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices` + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

// ListPaymentsForInvoice returns all payments against an invoice, voided
// entries included so the audit trail stays visible.
func (r *Repository) ListPaymentsForInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1 ORDER BY received_at, id`
	rows, err := r.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
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

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (number, clinic_ref, patient_ref, encounter_ref, gross_total,
			discount_total, net_total, paid_total, status, origin_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
		RETURNING id, created_at, updated_at`,
		inv.Number, inv.ClinicRef, inv.PatientRef, inv.EncounterRef, inv.GrossTotal,
		inv.DiscountTotal, inv.NetTotal, string(inv.Status), inv.OriginTag,
	)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) InsertInvoiceLines(ctx context.Context, invoiceID int64, lines []InvoiceLine) ([]InvoiceLine, error) {
	out := make([]InvoiceLine, 0, len(lines))
	for _, line := range lines {
		row := r.tx.QueryRow(ctx, `
			INSERT INTO invoice_lines (invoice_id, service_code, label, quantity, unit_price, line_discount, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`,
			invoiceID, line.ServiceCode, line.Label, line.Quantity, line.UnitPrice, line.LineDiscount, line.Amount,
		)
		line.InvoiceID = invoiceID
		if err := row.Scan(&line.ID, &line.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

// GetInvoiceForUpdate locks the invoice row for the rest of the transaction.
func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	return scanInvoice(r.tx.QueryRow(ctx, query, id))
}

func (r *txRepository) SetInvoicePaidStatus(ctx context.Context, id int64, paidTotal int64, status InvoiceStatus) error {
	cmd, err := r.tx.Exec(ctx, `
		UPDATE invoices SET paid_total = $2, status = $3, updated_at = NOW()
		WHERE id = $1`, id, paidTotal, string(status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkInvoiceCancelled(ctx context.Context, id int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `
		UPDATE invoices SET status = $2, cancelled_at = $3, updated_at = NOW()
		WHERE id = $1`, id, string(StatusCancelled), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO payments (number, invoice_id, amount, method, transaction_ref, bank_name,
			cheque_number, coverage_ref, cashier_ref, journal_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		p.Number, p.InvoiceID, p.Amount, string(p.Method), p.TransactionRef, p.BankName,
		p.ChequeNumber, p.CoverageRef, p.CashierRef, p.JournalID, p.ReceivedAt,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(r.tx.QueryRow(ctx, query, id))
}

func (r *txRepository) MarkPaymentVoid(ctx context.Context, id int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `
		UPDATE payments SET voided_at = $2, void_reason = $3
		WHERE id = $1 AND voided_at IS NULL`, id, at, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentAlreadyVoid
	}
	return nil
}

func (r *txRepository) FindOpenJournal(ctx context.Context, cashierRef uuid.UUID, businessDate time.Time) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		SELECT id FROM cash_journals
		WHERE cashier_ref = $1 AND business_date = $2 AND status = 'OPEN'`,
		cashierRef, businessDate,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNoOpenJournal
	}
	return id, err
}

// --- scan helpers ---

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var encounterRef pgtype.UUID
	var cancelledAt pgtype.Timestamptz
	var status string

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.ClinicRef, &inv.PatientRef, &encounterRef,
		&inv.GrossTotal, &inv.DiscountTotal, &inv.NetTotal, &inv.PaidTotal,
		&status, &inv.OriginTag, &cancelledAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, err
	}

	inv.Status = InvoiceStatus(status)
	if encounterRef.Valid {
		ref := uuid.UUID(encounterRef.Bytes)
		inv.EncounterRef = &ref
	}
	if cancelledAt.Valid {
		inv.CancelledAt = &cancelledAt.Time
	}
	return inv, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var journalID pgtype.Int8
	var voidedAt pgtype.Timestamptz
	var voidReason pgtype.Text
	var method string

	err := row.Scan(
		&p.ID, &p.Number, &p.InvoiceID, &p.Amount, &method, &p.TransactionRef,
		&p.BankName, &p.ChequeNumber, &p.CoverageRef, &p.CashierRef, &journalID,
		&p.ReceivedAt, &voidedAt, &voidReason, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}

	p.Method = PaymentMethod(method)
	if journalID.Valid {
		p.JournalID = &journalID.Int64
	}
	if voidedAt.Valid {
		p.VoidedAt = &voidedAt.Time
	}
	if voidReason.Valid {
		p.VoidReason = voidReason.String
	}
	return p, nil
}
