package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/billing"
)

// InvoiceRow is one line of the invoice export. It lives here rather than in
// the reporting package so that reporting can import export without a cycle;
// reporting re-exports it via a type alias.
type InvoiceRow struct {
	Number     string
	Date       time.Time
	PatientRef uuid.UUID
	NetTotal   int64
	PaidTotal  int64
	BalanceDue int64
	Status     billing.InvoiceStatus
}
