package numbering

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides the PostgreSQL backed sequencer. The upsert increments
// the counter row in one statement, so concurrent callers serialise on the
// row lock and each sees a distinct value.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next atomically increments and returns the (clinic, kind) counter.
func (r *Repository) Next(ctx context.Context, clinicRef uuid.UUID, kind Kind) (int64, error) {
	const query = `
		INSERT INTO number_sequences (clinic_ref, kind, value, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (clinic_ref, kind)
		DO UPDATE SET value = number_sequences.value + 1, updated_at = NOW()
		RETURNING value`

	var value int64
	err := r.pool.QueryRow(ctx, query, clinicRef, string(kind)).Scan(&value)
	return value, err
}
