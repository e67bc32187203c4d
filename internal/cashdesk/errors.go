package cashdesk

import "errors"

var (
	ErrJournalAlreadyOpen   = errors.New("an open journal already exists for this cashier and date")
	ErrJournalNotFound      = errors.New("journal not found")
	ErrJournalAlreadyClosed = errors.New("journal is already closed")
	ErrInvalidOpening       = errors.New("opening balance must not be negative")
	ErrInvalidPIN           = errors.New("drawer pin does not match")
)
