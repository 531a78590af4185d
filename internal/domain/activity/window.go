package activity

import (
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/pkg/timeutil"
)

// Window is a trailing day span used to filter records.
type Window int

// Unbounded selects every record.
const Unbounded Window = -1

// DefaultWindow is the profile view default (days).
const DefaultWindow Window = 30

// NewWindow validates a day count: -1 or any non-negative number.
func NewWindow(days int) (Window, error) {
	if days < -1 {
		return 0, shared.ErrInvalidWindow
	}
	return Window(days), nil
}

// IsUnbounded reports whether the window selects everything.
func (w Window) IsUnbounded() bool {
	return w == Unbounded
}

// Since returns the inclusive lower bound for records, or the zero time
// when the window is unbounded.
func (w Window) Since(now time.Time) time.Time {
	if w.IsUnbounded() {
		return time.Time{}
	}
	return timeutil.DaysAgo(now, int(w))
}
