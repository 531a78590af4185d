// Package notifier delivers rendered notifications over email, Telegram or
// the log, picking the first channel that can reach the student.
package notifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// DefaultWindowDays is the inactivity window quoted in reminders.
const DefaultWindowDays = 7

// Router implements the application Notifier over a list of channels.
type Router struct {
	senders    []notification.ChannelSender
	windowDays int
	logger     *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithWindowDays sets the window quoted in inactivity reminders.
func WithWindowDays(days int) RouterOption {
	return func(r *Router) {
		if days > 0 {
			r.windowDays = days
		}
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router. Senders are tried in the given order.
func NewRouter(senders []notification.ChannelSender, opts ...RouterOption) *Router {
	r := &Router{
		senders:    senders,
		windowDays: DefaultWindowDays,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Channels lists the configured channel names.
func (r *Router) Channels() []string {
	out := make([]string, 0, len(r.senders))
	for _, s := range r.senders {
		out = append(out, string(s.Channel()))
	}
	return out
}

// Send renders the notification and delivers it on the first reachable
// channel. When a channel fails the next reachable one is tried.
func (r *Router) Send(ctx context.Context, kind notification.Kind, s *student.Student) (notification.Receipt, error) {
	msg, err := notification.Render(kind, s, r.windowDays)
	if err != nil {
		return notification.Receipt{}, shared.WrapError("notification", "Render", shared.ErrInvalidArgument, "render failed", err)
	}

	var errs []error
	for _, sender := range r.senders {
		if !sender.CanReach(s) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return notification.Receipt{}, err
		}

		receipt, err := sender.Deliver(ctx, s, msg)
		if err != nil {
			r.logger.Warn("notification delivery failed",
				"channel", sender.Channel(),
				"kind", kind,
				"student_id", s.ID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}

		r.logger.Info("notification delivered",
			"channel", receipt.Channel,
			"kind", kind,
			"student_id", s.ID,
			"message_id", receipt.MessageID,
		)
		return receipt, nil
	}

	if len(errs) == 0 {
		return notification.Receipt{}, shared.ErrNoChannel
	}
	return notification.Receipt{}, shared.WrapError("notification", "Send", shared.ErrUnavailable, "all channels failed", errors.Join(errs...))
}
