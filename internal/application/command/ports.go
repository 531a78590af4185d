// Package command contains write operations (CQRS - Commands).
// Commands change stored state: syncing a student from Codeforces, running
// the batch pass over every student, and managing registrations.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// UpstreamProfile is the rating summary fetched from Codeforces.
type UpstreamProfile struct {
	Rating    int
	MaxRating int
}

// CodeforcesClient fetches a handle's data. Every failure is typed by the
// implementation; the sync engine treats all of them as non-fatal.
type CodeforcesClient interface {
	// FetchProfile fetches the current and max rating.
	FetchProfile(ctx context.Context, handle string) (*UpstreamProfile, error)

	// FetchSubmissions fetches every submission of the handle.
	FetchSubmissions(ctx context.Context, handle string) ([]activity.Submission, error)

	// FetchRatingHistory fetches every rated contest of the handle.
	FetchRatingHistory(ctx context.Context, handle string) ([]activity.ContestParticipation, error)
}

// Locker provides named, non-blocking mutual exclusion.
type Locker interface {
	// TryLock acquires key or fails with shared.ErrLockHeld.
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// ProfileCacheInvalidator drops cached profile statistics of a student.
type ProfileCacheInvalidator interface {
	InvalidateProfile(ctx context.Context, studentID string) error
}

// invalidateProfile drops the cached profiles of studentID after a write
// that changes what the profile shows. A nil cache is a no-op and failures
// are only logged.
func invalidateProfile(ctx context.Context, cache ProfileCacheInvalidator, logger *slog.Logger, studentID string) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateProfile(ctx, studentID); err != nil {
		logger.Warn("failed to invalidate profile cache", "student_id", studentID, "error", err)
	}
}

// Notifier delivers a notification to a student.
type Notifier interface {
	Send(ctx context.Context, kind notification.Kind, s *student.Student) (notification.Receipt, error)
}

// InactivityChecker decides inactivity from stored submissions.
type InactivityChecker interface {
	IsInactive(ctx context.Context, studentID string, windowDays int) (bool, error)
}

// Throttle paces the batch between students.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// Lock keys.
const (
	batchLockKey      = "batch:run"
	syncLockKeyPrefix = "sync:"
)

func syncLockKey(studentID string) string {
	return syncLockKeyPrefix + studentID
}
