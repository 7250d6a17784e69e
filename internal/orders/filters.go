package orders

import (
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// ParseDateBound reads an RFC3339 timestamp or a YYYY-MM-DD date. A date-only
// lower bound starts at midnight in loc; a date-only upper bound runs to the
// last instant of that day so the whole day is included. Empty input is nil.
func ParseDateBound(raw string, upper bool, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	day, err := time.ParseInLocation(dateOnlyLayout, raw, loc)
	if err != nil {
		return nil, err
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
