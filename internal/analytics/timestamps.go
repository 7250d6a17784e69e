package analytics

import "time"

// DateLayout renders calendar days in reports and export filenames.
const DateLayout = "2006-01-02"

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// WindowStart returns midnight of the first day of a window of days calendar
// days that ends on the day containing now.
func WindowStart(now time.Time, days int, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -(days - 1))
}

// DayRange converts inclusive calendar days into a half-open [from, until)
// interval.
func DayRange(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	return StartOfDay(start, loc), StartOfDay(end, loc).AddDate(0, 0, 1)
}
