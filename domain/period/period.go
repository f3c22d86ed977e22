// Package period provides the accounting period model.
// All functions are pure - no side effects, no clock access.
package period

import "time"

// Period is an accounting window granularity.
type Period int

// Periods ordered by granularity, shortest first. Eternity is unbounded and
// sorts after every finite period.
const (
	Second Period = iota
	Minute
	Hour
	Day
	Week
	Month
	Year
	Eternity
)

// All lists every period in ascending granularity order.
var All = []Period{Second, Minute, Hour, Day, Week, Month, Year, Eternity}

var names = map[Period]string{
	Second:   "second",
	Minute:   "minute",
	Hour:     "hour",
	Day:      "day",
	Week:     "week",
	Month:    "month",
	Year:     "year",
	Eternity: "eternity",
}

// String returns the lowercase period name.
func (p Period) String() string {
	if s, ok := names[p]; ok {
		return s
	}
	return "unknown"
}

// Parse returns the period named by s.
func Parse(s string) (Period, bool) {
	for p, name := range names {
		if name == s {
			return p, true
		}
	}
	return 0, false
}

// Granularity orders periods by window length. Larger values mean longer
// windows; Eternity is the greatest.
func (p Period) Granularity() int {
	return int(p)
}

// Finite reports whether the period has calendar boundaries.
func (p Period) Finite() bool {
	return p != Eternity
}

// Start returns the beginning of the cycle containing t, aligned to UTC
// calendar boundaries. Weeks start on Monday. For Eternity there is no
// boundary and ok is false.
func (p Period) Start(t time.Time) (time.Time, bool) {
	t = t.UTC()
	switch p {
	case Second:
		return t.Truncate(time.Second), true
	case Minute:
		return t.Truncate(time.Minute), true
	case Hour:
		return t.Truncate(time.Hour), true
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	case Week:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset), true
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
	case Year:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC), true
	default:
		return time.Time{}, false
	}
}

// End returns the exclusive end of the cycle containing t, so the cycle is
// the half-open interval [Start, End). For Eternity ok is false.
func (p Period) End(t time.Time) (time.Time, bool) {
	start, ok := p.Start(t)
	if !ok {
		return time.Time{}, false
	}
	switch p {
	case Second:
		return start.Add(time.Second), true
	case Minute:
		return start.Add(time.Minute), true
	case Hour:
		return start.Add(time.Hour), true
	case Day:
		return start.AddDate(0, 0, 1), true
	case Week:
		return start.AddDate(0, 0, 7), true
	case Month:
		return start.AddDate(0, 1, 0), true
	case Year:
		return start.AddDate(1, 0, 0), true
	default:
		return time.Time{}, false
	}
}
