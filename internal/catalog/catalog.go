// Package catalog reads the externally owned billable-services catalog.
// The billing core consumes labels and base tariffs; it never writes here.
package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownService indicates the code is not in the catalog.
var ErrUnknownService = errors.New("catalog: unknown service code")

// Item is one billable service entry.
type Item struct {
	Code        string
	Label       string
	BaseTariff  int64
	ServiceType string
}

// Lookup resolves service codes to catalog items.
type Lookup interface {
	FindByCode(ctx context.Context, code string) (Item, error)
}

// Repository provides PostgreSQL backed catalog reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByCode returns the catalog item for a service code.
func (r *Repository) FindByCode(ctx context.Context, code string) (Item, error) {
	const query = `
		SELECT code, label, base_tariff, service_type
		FROM billable_services
		WHERE code = $1`

	var item Item
	err := r.pool.QueryRow(ctx, query, code).Scan(&item.Code, &item.Label, &item.BaseTariff, &item.ServiceType)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrUnknownService
	}
	if err != nil {
		return Item{}, err
	}
	return item, nil
}
