package entitlement

import "time"

// AddMonths moves t by n calendar months, clamping the day to the last day
// of the target month: Jan 31 + 1 month is Feb 29 in a leap year, not Mar 2
// as time.AddDate would give.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	if last := daysIn(y, m+time.Month(n), t.Location()); d > last {
		d = last
	}
	return time.Date(y, m+time.Month(n), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days of the (normalised) month.
func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
