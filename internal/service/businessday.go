package service

import "time"

// NextBusinessDay returns t when it falls on Monday to Friday, otherwise the
// same clock time on the following Monday. Weekdays are read in t's own frame.
func NextBusinessDay(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
