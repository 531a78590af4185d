package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STUDENT COMMAND
// Pulls one student's profile, submissions and rating history from
// Codeforces and fully replaces the stored copies. A failed sub-fetch keeps
// the previously stored data.
// ══════════════════════════════════════════════════════════════════════════════

// ErrSyncInProgress is returned when another sync holds the student's lock.
var ErrSyncInProgress = shared.NewDomainError("sync", "Lock", shared.ErrConflict, "a sync of this student is already running")

// SyncStudentCommand contains the data needed to sync a student.
type SyncStudentCommand struct {
	// StudentID is the internal ID of the student to sync.
	StudentID string
}

// Validate validates the command.
func (c SyncStudentCommand) Validate() error {
	if c.StudentID == "" {
		return shared.NewDomainError("sync", "Validate", shared.ErrEmptyValue, "student_id must be provided")
	}
	return nil
}

// SyncOutcome is the result of synchronizing one student.
type SyncOutcome struct {
	StudentID string `json:"student_id"`
	Handle    string `json:"handle,omitempty"`

	// Success is false only when the lookup or the final save failed.
	Success bool `json:"success"`

	// Error describes a failed sync.
	Error string `json:"error,omitempty"`

	ProfileUpdated      bool `json:"profile_updated"`
	SubmissionsReplaced bool `json:"submissions_replaced"`
	ContestsReplaced    bool `json:"contests_replaced"`
	SubmissionCount     int  `json:"submission_count"`
	ContestCount        int  `json:"contest_count"`

	// Warnings lists the sub-steps that failed without failing the sync.
	Warnings []string `json:"warnings,omitempty"`

	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

func (o *SyncOutcome) warn(step string, err error) {
	o.Warnings = append(o.Warnings, fmt.Sprintf("%s: %v", step, err))
}

func (o *SyncOutcome) fail(err error) (*SyncOutcome, error) {
	o.Success = false
	o.Error = err.Error()
	return o, err
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SyncStudentHandler handles the SyncStudentCommand.
type SyncStudentHandler struct {
	studentRepo    student.Repository
	submissionRepo activity.SubmissionRepository
	contestRepo    activity.ContestRepository
	client         CodeforcesClient

	locker  Locker
	cache   ProfileCacheInvalidator
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// SyncOption configures a SyncStudentHandler.
type SyncOption func(*SyncStudentHandler)

// WithSyncLocker guards each student with a named lock.
func WithSyncLocker(l Locker) SyncOption {
	return func(h *SyncStudentHandler) { h.locker = l }
}

// WithProfileCache invalidates cached statistics after each sync.
func WithProfileCache(c ProfileCacheInvalidator) SyncOption {
	return func(h *SyncStudentHandler) { h.cache = c }
}

// WithSyncClock overrides the clock.
func WithSyncClock(c Clock) SyncOption {
	return func(h *SyncStudentHandler) { h.clock = c }
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(h *SyncStudentHandler) { h.logger = l }
}

// WithSyncMetrics records sync results.
func WithSyncMetrics(m *metrics.Metrics) SyncOption {
	return func(h *SyncStudentHandler) { h.metrics = m }
}

// NewSyncStudentHandler creates a new SyncStudentHandler.
func NewSyncStudentHandler(
	studentRepo student.Repository,
	submissionRepo activity.SubmissionRepository,
	contestRepo activity.ContestRepository,
	client CodeforcesClient,
	opts ...SyncOption,
) *SyncStudentHandler {
	h := &SyncStudentHandler{
		studentRepo:    studentRepo,
		submissionRepo: submissionRepo,
		contestRepo:    contestRepo,
		client:         client,
		clock:          systemClock,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle executes the sync. The returned outcome is never nil; err is set
// exactly when outcome.Success is false.
func (h *SyncStudentHandler) Handle(ctx context.Context, cmd SyncStudentCommand) (*SyncOutcome, error) {
	outcome := &SyncOutcome{StudentID: cmd.StudentID}

	if err := cmd.Validate(); err != nil {
		return outcome.fail(err)
	}

	if h.locker != nil {
		unlock, err := h.locker.TryLock(ctx, syncLockKey(cmd.StudentID))
		if err != nil {
			if errors.Is(err, shared.ErrConflict) {
				err = ErrSyncInProgress
			}
			h.metrics.IncSync(metrics.ResultRejected)
			return outcome.fail(err)
		}
		defer unlock()
	}

	s, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		h.metrics.IncSync(metrics.ResultFailure)
		return outcome.fail(fmt.Errorf("sync_student: find student: %w", err))
	}
	outcome.Handle = s.Handle.String()
	logger := h.logger.With("student_id", s.ID, "handle", s.Handle)

	state := student.SyncState{}

	// 1. Profile
	if profile, err := h.client.FetchProfile(ctx, s.Handle.String()); err != nil {
		outcome.warn("profile", err)
		logger.Warn("profile fetch failed, keeping stored ratings", "error", err)
	} else {
		state.Ratings = &student.Ratings{Current: profile.Rating, Max: profile.MaxRating}
		s.ApplyRatings(profile.Rating, profile.MaxRating)
		outcome.ProfileUpdated = true
	}

	// 2. Submissions
	if subs, err := h.client.FetchSubmissions(ctx, s.Handle.String()); err != nil {
		outcome.warn("submissions", err)
		logger.Warn("submissions fetch failed, keeping stored submissions", "error", err)
	} else {
		for i := range subs {
			subs[i].StudentID = s.ID
		}
		if err := h.submissionRepo.ReplaceForStudent(ctx, s.ID, subs); err != nil {
			outcome.warn("store submissions", err)
			logger.Error("failed to replace submissions", "error", err)
		} else {
			outcome.SubmissionsReplaced = true
			outcome.SubmissionCount = len(subs)
		}
	}

	// 3. Rating history
	if contests, err := h.client.FetchRatingHistory(ctx, s.Handle.String()); err != nil {
		outcome.warn("rating history", err)
		logger.Warn("rating history fetch failed, keeping stored contests", "error", err)
	} else {
		for i := range contests {
			contests[i].StudentID = s.ID
		}
		if err := h.contestRepo.ReplaceForStudent(ctx, s.ID, contests); err != nil {
			outcome.warn("store contests", err)
			logger.Error("failed to replace contests", "error", err)
		} else {
			outcome.ContestsReplaced = true
			outcome.ContestCount = len(contests)
		}
	}

	// 4. Sync timestamp, regardless of sub-fetch outcomes
	state.SyncedAt = h.clock().UTC()
	if err := h.studentRepo.SaveSyncState(ctx, s.ID, state); err != nil {
		h.metrics.IncSync(metrics.ResultFailure)
		logger.Error("failed to save sync state", "error", err)
		return outcome.fail(fmt.Errorf("sync_student: save sync state: %w", err))
	}
	s.MarkSynced(state.SyncedAt)
	outcome.SyncedAt = s.LastSyncedAt
	outcome.Success = true

	invalidateProfile(ctx, h.cache, logger, s.ID)

	h.metrics.IncSync(metrics.ResultSuccess)
	logger.Info("student synced",
		"submissions", outcome.SubmissionCount,
		"contests", outcome.ContestCount,
		"warnings", len(outcome.Warnings),
	)
	return outcome, nil
}
