package shared

import (
	"context"

	"github.com/google/uuid"
)

// Cashier identifies the acting cashier on a request. Identity is resolved
// upstream; the core only carries the opaque reference.
type Cashier struct {
	Ref  uuid.UUID
	Name string
}

type cashierContextKey struct{}

// ContextWithCashier stores the cashier in context.
func ContextWithCashier(ctx context.Context, c Cashier) context.Context {
	return context.WithValue(ctx, cashierContextKey{}, c)
}

// CashierFromContext extracts the cashier from context.
func CashierFromContext(ctx context.Context) (Cashier, bool) {
	c, ok := ctx.Value(cashierContextKey{}).(Cashier)
	return c, ok && c.Ref != uuid.Nil
}
