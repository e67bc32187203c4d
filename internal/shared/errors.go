package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCashierMissing occurs when a request carries no cashier identity.
	ErrCashierMissing = errors.New("cashier identity missing")
)
