package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN BATCH COMMAND
// One pass over every student: sync, check inactivity, remind. Students are
// processed one at a time with a throttle wait before each.
// ══════════════════════════════════════════════════════════════════════════════

// ErrBatchInProgress is returned when a batch is already running.
var ErrBatchInProgress = shared.NewDomainError("batch", "Run", shared.ErrConflict, "a batch run is already in progress")

// Syncer syncs one student.
type Syncer interface {
	Handle(ctx context.Context, cmd SyncStudentCommand) (*SyncOutcome, error)
}

// RunBatchConfig contains configuration for the batch runner.
type RunBatchConfig struct {
	// InactivityWindowDays is the trailing window checked after each sync.
	InactivityWindowDays int
}

// DefaultRunBatchConfig returns sensible defaults.
func DefaultRunBatchConfig() RunBatchConfig {
	return RunBatchConfig{InactivityWindowDays: 7}
}

// BatchFailure describes one student the batch could not sync.
type BatchFailure struct {
	StudentID string `json:"student_id"`
	Handle    string `json:"handle"`
	Error     string `json:"error"`
}

// BatchOutcome summarizes a batch run.
type BatchOutcome struct {
	RunID string `json:"run_id"`

	Total            int `json:"total"`
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
	InactiveDetected int `json:"inactive_detected"`
	Notified         int `json:"notified"`
	NotifyFailed     int `json:"notify_failed"`

	// Cancelled is set when the context ended before every student was
	// processed.
	Cancelled bool `json:"cancelled"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Failures []BatchFailure `json:"failures,omitempty"`
}

// Duration returns the wall time of the run.
func (o *BatchOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

func (o *BatchOutcome) counts() metrics.BatchCounts {
	return metrics.BatchCounts{
		Succeeded:    o.Succeeded,
		Failed:       o.Failed,
		Inactive:     o.InactiveDetected,
		Notified:     o.Notified,
		NotifyFailed: o.NotifyFailed,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunBatchHandler runs batch passes.
type RunBatchHandler struct {
	studentRepo student.Repository
	syncer      Syncer
	inactivity  InactivityChecker
	notifier    Notifier
	throttle    Throttle

	config  RunBatchConfig
	locker  Locker
	cache   ProfileCacheInvalidator
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	running     atomic.Bool
	lastOutcome atomic.Pointer[BatchOutcome]
}

// BatchOption configures a RunBatchHandler.
type BatchOption func(*RunBatchHandler)

// WithBatchConfig overrides the defaults.
func WithBatchConfig(cfg RunBatchConfig) BatchOption {
	return func(h *RunBatchHandler) { h.config = cfg }
}

// WithBatchLocker adds a cross-process single-flight guard.
func WithBatchLocker(l Locker) BatchOption {
	return func(h *RunBatchHandler) { h.locker = l }
}

// WithBatchProfileCache drops cached profiles after a reminder is counted.
func WithBatchProfileCache(c ProfileCacheInvalidator) BatchOption {
	return func(h *RunBatchHandler) { h.cache = c }
}

// WithBatchClock overrides the clock.
func WithBatchClock(c Clock) BatchOption {
	return func(h *RunBatchHandler) { h.clock = c }
}

// WithBatchLogger sets the logger.
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(h *RunBatchHandler) { h.logger = l }
}

// WithBatchMetrics records run results.
func WithBatchMetrics(m *metrics.Metrics) BatchOption {
	return func(h *RunBatchHandler) { h.metrics = m }
}

// NewRunBatchHandler creates a new RunBatchHandler.
func NewRunBatchHandler(
	studentRepo student.Repository,
	syncer Syncer,
	inactivity InactivityChecker,
	notifier Notifier,
	throttle Throttle,
	opts ...BatchOption,
) *RunBatchHandler {
	h := &RunBatchHandler{
		studentRepo: studentRepo,
		syncer:      syncer,
		inactivity:  inactivity,
		notifier:    notifier,
		throttle:    throttle,
		config:      DefaultRunBatchConfig(),
		clock:       systemClock,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.config.InactivityWindowDays <= 0 {
		h.config.InactivityWindowDays = DefaultRunBatchConfig().InactivityWindowDays
	}
	return h
}

// IsRunning reports whether a batch is in progress in this process.
func (h *RunBatchHandler) IsRunning() bool {
	return h.running.Load()
}

// LastOutcome returns the outcome of the last finished run, or nil.
func (h *RunBatchHandler) LastOutcome() *BatchOutcome {
	return h.lastOutcome.Load()
}

// Handle runs one batch. It returns ErrBatchInProgress without doing any
// work when another run holds the guard.
func (h *RunBatchHandler) Handle(ctx context.Context) (*BatchOutcome, error) {
	if !h.running.CompareAndSwap(false, true) {
		h.metrics.ObserveBatch(metrics.ResultSkipped, metrics.BatchCounts{}, 0)
		return nil, ErrBatchInProgress
	}
	defer h.running.Store(false)

	if h.locker != nil {
		unlock, err := h.locker.TryLock(ctx, batchLockKey)
		if err != nil {
			h.metrics.ObserveBatch(metrics.ResultSkipped, metrics.BatchCounts{}, 0)
			if errors.Is(err, shared.ErrConflict) {
				return nil, ErrBatchInProgress
			}
			return nil, fmt.Errorf("run_batch: acquire lock: %w", err)
		}
		defer unlock()
	}

	outcome := &BatchOutcome{
		RunID:     uuid.NewString(),
		StartedAt: h.clock().UTC(),
	}
	logger := h.logger.With("run_id", outcome.RunID)

	students, err := h.studentRepo.List(ctx, student.DefaultListOptions())
	if err != nil {
		outcome.FinishedAt = h.clock().UTC()
		h.metrics.ObserveBatch(metrics.ResultFailure, outcome.counts(), outcome.Duration())
		return nil, fmt.Errorf("run_batch: list students: %w", err)
	}
	outcome.Total = len(students)
	logger.Info("batch started", "students", outcome.Total)

	for _, s := range students {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			break
		}
		if err := h.throttle.Wait(ctx); err != nil {
			outcome.Cancelled = true
			break
		}
		h.processStudent(ctx, logger, s, outcome)
	}

	outcome.FinishedAt = h.clock().UTC()
	h.lastOutcome.Store(outcome)
	h.metrics.ObserveBatch(metrics.ResultSuccess, outcome.counts(), outcome.Duration())

	logger.Info("batch finished",
		"total", outcome.Total,
		"succeeded", outcome.Succeeded,
		"failed", outcome.Failed,
		"inactive", outcome.InactiveDetected,
		"notified", outcome.Notified,
		"notify_failed", outcome.NotifyFailed,
		"cancelled", outcome.Cancelled,
		"duration", outcome.Duration(),
	)
	return outcome, nil
}

// processStudent never lets one student's failure escape into the loop.
func (h *RunBatchHandler) processStudent(ctx context.Context, logger *slog.Logger, s *student.Student, outcome *BatchOutcome) {
	logger = logger.With("student_id", s.ID, "handle", s.Handle)

	defer func() {
		if r := recover(); r != nil {
			outcome.Failed++
			outcome.Failures = append(outcome.Failures, BatchFailure{
				StudentID: s.ID,
				Handle:    s.Handle.String(),
				Error:     fmt.Sprintf("panic: %v", r),
			})
			logger.Error("panic while processing student", "panic", r)
		}
	}()

	res, err := h.syncer.Handle(ctx, SyncStudentCommand{StudentID: s.ID})
	if err == nil && (res == nil || !res.Success) {
		err = errors.New("sync reported failure")
	}
	if err != nil {
		outcome.Failed++
		outcome.Failures = append(outcome.Failures, BatchFailure{
			StudentID: s.ID,
			Handle:    s.Handle.String(),
			Error:     err.Error(),
		})
		logger.Warn("sync failed", "error", err)
		return
	}
	outcome.Succeeded++

	inactive, err := h.inactivity.IsInactive(ctx, s.ID, h.config.InactivityWindowDays)
	if err != nil {
		logger.Warn("inactivity check failed", "error", err)
		return
	}
	if !inactive {
		return
	}
	outcome.InactiveDetected++

	if !s.NotificationsEnabled {
		logger.Debug("inactive, notifications disabled")
		return
	}

	receipt, err := h.notifier.Send(ctx, notification.KindInactivityReminder, s)
	if err != nil {
		outcome.NotifyFailed++
		h.metrics.IncNotification(notification.KindInactivityReminder.String(), metrics.ResultFailure)
		logger.Warn("inactivity reminder failed", "error", err)
		return
	}
	outcome.Notified++
	h.metrics.IncNotification(notification.KindInactivityReminder.String(), metrics.ResultSuccess)

	if _, err := h.studentRepo.IncrementNotificationsSent(ctx, s.ID); err != nil {
		logger.Warn("failed to record sent notification", "error", err)
	} else {
		invalidateProfile(ctx, h.cache, logger, s.ID)
	}
	logger.Info("inactivity reminder sent", "channel", receipt.Channel, "message_id", receipt.MessageID)
}
