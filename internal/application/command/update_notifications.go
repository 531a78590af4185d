package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION SETTINGS COMMANDS
// Lets an operator switch reminders on or off per student and send a test
// reminder on demand.
// ══════════════════════════════════════════════════════════════════════════════

// SetNotificationsCommand enables or disables inactivity reminders.
type SetNotificationsCommand struct {
	StudentID string
	Enabled   bool
}

// SendTestNotificationCommand sends an inactivity reminder right away.
type SendTestNotificationCommand struct {
	StudentID string
}

// NotificationsHandler handles the notification settings commands.
type NotificationsHandler struct {
	studentRepo student.Repository
	notifier    Notifier
	cache       ProfileCacheInvalidator
	clock       Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewNotificationsHandler creates a new NotificationsHandler. cache may be nil.
func NewNotificationsHandler(
	studentRepo student.Repository,
	notifier Notifier,
	cache ProfileCacheInvalidator,
	clock Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
) *NotificationsHandler {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationsHandler{
		studentRepo: studentRepo,
		notifier:    notifier,
		cache:       cache,
		clock:       clock,
		logger:      logger,
		metrics:     m,
	}
}

// SetEnabled stores the new setting and returns the updated student.
func (h *NotificationsHandler) SetEnabled(ctx context.Context, cmd SetNotificationsCommand) (*student.Student, error) {
	if cmd.StudentID == "" {
		return nil, shared.NewDomainError("notification", "Set", shared.ErrEmptyValue, "student_id must be provided")
	}

	s, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("set_notifications: %w", err)
	}
	if s.NotificationsEnabled == cmd.Enabled {
		return s, nil
	}

	s.SetNotifications(cmd.Enabled, h.clock())
	if err := h.studentRepo.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("set_notifications: save: %w", err)
	}
	invalidateProfile(ctx, h.cache, h.logger, s.ID)
	h.logger.Info("notifications toggled", "student_id", s.ID, "enabled", cmd.Enabled)
	return s, nil
}

// SendTest delivers an inactivity reminder regardless of activity. It
// respects the student's opt-out and counts toward NotificationsSent.
func (h *NotificationsHandler) SendTest(ctx context.Context, cmd SendTestNotificationCommand) (notification.Receipt, error) {
	s, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return notification.Receipt{}, fmt.Errorf("send_test_notification: %w", err)
	}
	if !s.NotificationsEnabled {
		return notification.Receipt{}, shared.ErrNotificationDisabled
	}

	receipt, err := h.notifier.Send(ctx, notification.KindInactivityReminder, s)
	if err != nil {
		h.metrics.IncNotification(notification.KindInactivityReminder.String(), metrics.ResultFailure)
		return notification.Receipt{}, fmt.Errorf("send_test_notification: %w", err)
	}
	h.metrics.IncNotification(notification.KindInactivityReminder.String(), metrics.ResultSuccess)

	if _, err := h.studentRepo.IncrementNotificationsSent(ctx, s.ID); err != nil {
		h.logger.Warn("failed to record sent notification", "student_id", s.ID, "error", err)
	} else {
		invalidateProfile(ctx, h.cache, h.logger, s.ID)
	}
	return receipt, nil
}
