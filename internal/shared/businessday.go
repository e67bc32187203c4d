package shared

import "time"

// BusinessDate normalises a timestamp to the calendar day a journal and its
// payments are attributed to. Clock time and zone offsets are dropped; the
// clinic operates on local calendar days.
func BusinessDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
