// Package timeutil provides the UTC day arithmetic used by the sync
// pipeline and the profile analytics. Codeforces timestamps and every
// stored record are UTC, so all helpers normalise to UTC first.
// No external dependencies - uses only standard library.
package timeutil

import (
	"math"
	"time"
)

// Day is the length of one calendar day in UTC.
const Day = 24 * time.Hour

// DateLayout is the calendar key format (ISO date).
const DateLayout = "2006-01-02"

// Clock returns the current time. Components take a Clock so tests can pin "now".
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// DateKey formats t as its UTC calendar date, e.g. "2024-03-09".
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// maxDurationDays is the longest span a time.Duration can hold, in days.
const maxDurationDays = int(math.MaxInt64 / int64(Day))

// DaysAgo returns the instant exactly n days before now. Spans too long for
// a time.Duration return the zero time, which precedes every record.
func DaysAgo(now time.Time, n int) time.Time {
	if n > maxDurationDays {
		return time.Time{}
	}
	return now.Add(-time.Duration(n) * Day)
}

// FromEpochSeconds converts an upstream epoch-seconds timestamp into a UTC
// time with millisecond precision.
func FromEpochSeconds(sec int64) time.Time {
	return time.UnixMilli(sec * 1000).UTC()
}

// CeilDaysBetween returns the number of started days between from and to,
// never less than 1.
func CeilDaysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 1
	}
	days := int(math.Ceil(float64(d) / float64(Day)))
	if days < 1 {
		return 1
	}
	return days
}
