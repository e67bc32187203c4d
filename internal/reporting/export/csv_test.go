package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinicore/internal/billing"
)

func TestWriteInvoicesCSVContract(t *testing.T) {
	patientA := uuid.MustParse("0d4cbad2-5a63-4bd8-9e1f-1f3f4cf0c6aa")
	patientB := uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")

	rows := []InvoiceRow{
		{
			Number:     "FAC-2025-000001",
			Date:       time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC),
			PatientRef: patientA,
			NetTotal:   25000,
			PaidTotal:  10000,
			BalanceDue: 15000,
			Status:     billing.StatusPartiallyPaid,
		},
		{
			Number:     "FAC-2025-000002",
			Date:       time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
			PatientRef: patientB,
			NetTotal:   8000,
			PaidTotal:  8000,
			BalanceDue: 0,
			Status:     billing.StatusPaid,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInvoicesCSV(&buf, rows))

	want := "number,date,patient_ref,net_total,paid_total,balance_due,status\n" +
		"FAC-2025-000001,2025-03-10,0d4cbad2-5a63-4bd8-9e1f-1f3f4cf0c6aa,25000,10000,15000,PARTIALLY_PAID\n" +
		"FAC-2025-000002,2025-03-10,9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d,8000,8000,0,PAID\n"
	require.Equal(t, want, buf.String())
}

func TestWriteInvoicesCSVEmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInvoicesCSV(&buf, nil))
	require.Equal(t, "number,date,patient_ref,net_total,paid_total,balance_due,status\n", buf.String())
}
