package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Token string

	// APIURL overrides the Bot API endpoint. Empty uses the default.
	APIURL string

	Timeout time.Duration
}

// TelegramSender delivers the plain-text body to a student's chat.
type TelegramSender struct {
	bot *tele.Bot
	now func() time.Time
}

// NewTelegramSender creates an outbound-only bot. It never polls.
func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	settings := tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	}
	b, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	return &TelegramSender{bot: b, now: time.Now}, nil
}

func (t *TelegramSender) Channel() notification.Channel { return notification.ChannelTelegram }

func (t *TelegramSender) CanReach(s *student.Student) bool {
	return s.HasTelegram()
}

func (t *TelegramSender) Deliver(ctx context.Context, s *student.Student, msg notification.Message) (notification.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return notification.Receipt{}, err
	}
	if !t.CanReach(s) {
		return notification.Receipt{}, errors.New("telegram: student has no chat id")
	}

	text := msg.Subject + "\n\n" + msg.Text
	sent, err := t.bot.Send(tele.ChatID(s.Contact.TelegramChatID), text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return notification.Receipt{}, fmt.Errorf("telegram deliver: %w", err)
	}

	return notification.Receipt{
		MessageID: strconv.Itoa(sent.ID),
		Channel:   notification.ChannelTelegram,
		SentAt:    t.now().UTC(),
	}, nil
}
