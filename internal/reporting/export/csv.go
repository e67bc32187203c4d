package export

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteInvoicesCSV serialises invoice rows to the export contract: UTF-8,
// comma-delimited, fixed header, dates as 2006-01-02, amounts as raw minor
// units with no grouping. Consumers parse this file; the shape is frozen.
func WriteInvoicesCSV(w io.Writer, rows []InvoiceRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"number", "date", "patient_ref", "net_total", "paid_total", "balance_due", "status"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Number,
			row.Date.Format("2006-01-02"),
			row.PatientRef.String(),
			strconv.FormatInt(row.NetTotal, 10),
			strconv.FormatInt(row.PaidTotal, 10),
			strconv.FormatInt(row.BalanceDue, 10),
			string(row.Status),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
