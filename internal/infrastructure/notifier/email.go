package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// SMTPConfig configures the email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope and header sender address.
	From     string
	FromName string

	// StartTLS upgrades the connection before authenticating.
	StartTLS bool

	Timeout time.Duration
}

// DefaultSMTPConfig returns defaults for a submission port with STARTTLS.
func DefaultSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Port:     587,
		FromName: "CF Progress Hub",
		StartTLS: true,
		Timeout:  30 * time.Second,
	}
}

// Enabled reports whether enough is configured to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// EMAIL SENDER
// ══════════════════════════════════════════════════════════════════════════════

// EmailSender delivers notifications over SMTP.
type EmailSender struct {
	config SMTPConfig
	now    func() time.Time
}

func NewEmailSender(config SMTPConfig) (*EmailSender, error) {
	if !config.Enabled() {
		return nil, errors.New("smtp: host and from address are required")
	}
	if config.Port <= 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &EmailSender{config: config, now: time.Now}, nil
}

func (e *EmailSender) Channel() notification.Channel { return notification.ChannelEmail }

func (e *EmailSender) CanReach(s *student.Student) bool {
	return s.HasEmail()
}

// Deliver sends a multipart text/HTML message.
func (e *EmailSender) Deliver(ctx context.Context, s *student.Student, msg notification.Message) (notification.Receipt, error) {
	if !e.CanReach(s) {
		return notification.Receipt{}, errors.New("smtp: student has no email address")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(e.config.From))
	sentAt := e.now().UTC()
	body := e.buildMessage(s.Contact.Email, messageID, sentAt, msg)

	if err := e.send(ctx, s.Contact.Email, body); err != nil {
		return notification.Receipt{}, fmt.Errorf("smtp deliver: %w", err)
	}
	return notification.Receipt{MessageID: messageID, Channel: notification.ChannelEmail, SentAt: sentAt}, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

func (e *EmailSender) buildMessage(to, messageID string, at time.Time, msg notification.Message) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s <%s>\r\n", e.config.FromName, e.config.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", to))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", at.Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")

	boundary := "cfhub-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))

	// Plain text first, HTML last: clients prefer the last part they understand.
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")

	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}

func (e *EmailSender) send(ctx context.Context, to, body string) error {
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))

	dialer := &net.Dialer{Timeout: e.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(e.config.Timeout))
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if e.config.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: e.config.Host, MinVersion: tls.VersionTLS12}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if e.config.Username != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	// The message is accepted once DATA closes.
	_ = client.Quit()
	return nil
}
