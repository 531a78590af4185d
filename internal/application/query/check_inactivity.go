package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK INACTIVITY QUERY
// A student is inactive when no stored submission falls inside the trailing
// window. A submission exactly at the window start counts as activity.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultInactivityWindowDays is used when no window is given.
const DefaultInactivityWindowDays = 7

// InactivityHandler answers inactivity checks from local storage.
type InactivityHandler struct {
	submissions activity.SubmissionRepository
	clock       timeutil.Clock
}

// NewInactivityHandler creates a new InactivityHandler. A nil clock uses
// the system clock.
func NewInactivityHandler(submissions activity.SubmissionRepository, clock timeutil.Clock) *InactivityHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &InactivityHandler{submissions: submissions, clock: clock}
}

// IsInactive reports whether the student has no submissions in the last
// windowDays days. windowDays <= 0 selects the default window.
func (h *InactivityHandler) IsInactive(ctx context.Context, studentID string, windowDays int) (bool, error) {
	if studentID == "" {
		return false, shared.NewDomainError("activity", "IsInactive", shared.ErrEmptyValue, "student_id must be provided")
	}
	if windowDays <= 0 {
		windowDays = DefaultInactivityWindowDays
	}

	since := timeutil.DaysAgo(h.clock(), windowDays)
	n, err := h.submissions.CountSince(ctx, studentID, since)
	if err != nil {
		return false, fmt.Errorf("check_inactivity: count submissions: %w", err)
	}
	return n == 0, nil
}
