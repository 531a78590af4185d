package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// LogSender writes notifications to the log instead of delivering them.
// Used in development when no real channel is configured.
type LogSender struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, now: time.Now}
}

func (l *LogSender) Channel() notification.Channel { return notification.ChannelLog }

// CanReach is always true.
func (l *LogSender) CanReach(*student.Student) bool { return true }

func (l *LogSender) Deliver(_ context.Context, s *student.Student, msg notification.Message) (notification.Receipt, error) {
	id := uuid.NewString()
	l.logger.Info("notification (log channel)",
		"message_id", id,
		"kind", msg.Kind,
		"student_id", s.ID,
		"handle", s.Handle,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return notification.Receipt{MessageID: id, Channel: notification.ChannelLog, SentAt: l.now().UTC()}, nil
}
