// Package notification contains the notification model: what is sent to a
// student, over which channel, and the receipt of a delivery. Delivery
// mechanics live in infrastructure/notifier.
package notification

import (
	"context"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// KIND & CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// Kind identifies what a notification is about.
type Kind string

const (
	// KindInactivityReminder - no submissions in the inactivity window.
	KindInactivityReminder Kind = "inactivity_reminder"

	// KindWelcome - sent once after registration.
	KindWelcome Kind = "welcome"
)

// IsValid checks the kind.
func (k Kind) IsValid() bool {
	return k == KindInactivityReminder || k == KindWelcome
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// Channel is a delivery mechanism.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelLog      Channel = "log"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE & RECEIPT
// ══════════════════════════════════════════════════════════════════════════════

// Message is a rendered notification.
type Message struct {
	Kind    Kind
	Subject string

	// HTML is the rich body (email).
	HTML string

	// Text is the plain body (Telegram, logs, email alternative).
	Text string
}

// Receipt confirms a delivery.
type Receipt struct {
	// MessageID - channel-specific message identifier.
	MessageID string

	// Channel - the channel that delivered the message.
	Channel Channel

	// SentAt - delivery time.
	SentAt time.Time
}

// ChannelSender delivers rendered messages over one channel.
type ChannelSender interface {
	// Channel names the channel.
	Channel() Channel

	// CanReach reports whether the student has an address on this channel.
	CanReach(s *student.Student) bool

	// Deliver sends the message and returns its receipt.
	Deliver(ctx context.Context, s *student.Student, msg Message) (Receipt, error)
}
