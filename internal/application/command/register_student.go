package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER STUDENT COMMAND
// Registers a new student after checking the handle exists on Codeforces,
// then runs the first sync and sends a welcome message.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterStudentCommand contains the data needed to register a student.
type RegisterStudentCommand struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Handle         string `json:"handle"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// RegisterStudentResult contains the result of registration.
type RegisterStudentResult struct {
	Student *student.Student `json:"student"`

	// Sync is the outcome of the initial sync, nil if it could not start.
	Sync *SyncOutcome `json:"sync"`

	// Welcomed reports whether the welcome message was delivered.
	Welcomed bool `json:"welcomed"`
}

// RegisterStudentHandler handles the RegisterStudentCommand.
type RegisterStudentHandler struct {
	studentRepo student.Repository
	client      CodeforcesClient
	syncer      Syncer
	notifier    Notifier
	clock       Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewRegisterStudentHandler creates a new RegisterStudentHandler. notifier
// may be nil, in which case no welcome message is sent.
func NewRegisterStudentHandler(
	studentRepo student.Repository,
	client CodeforcesClient,
	syncer Syncer,
	notifier Notifier,
	clock Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
) *RegisterStudentHandler {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterStudentHandler{
		studentRepo: studentRepo,
		client:      client,
		syncer:      syncer,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
		metrics:     m,
	}
}

// Handle executes the registration.
func (h *RegisterStudentHandler) Handle(ctx context.Context, cmd RegisterStudentCommand) (*RegisterStudentResult, error) {
	s, err := student.NewStudent(student.NewStudentParams{
		ID:             uuid.NewString(),
		Name:           cmd.Name,
		Email:          cmd.Email,
		Phone:          cmd.Phone,
		Handle:         student.Handle(cmd.Handle),
		TelegramChatID: cmd.TelegramChatID,
		Now:            h.clock(),
	})
	if err != nil {
		return nil, invalidStudent("Register", err)
	}

	if _, err := h.studentRepo.GetByHandle(ctx, s.Handle); err == nil {
		return nil, shared.ErrHandleTaken
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("register_student: check handle: %w", err)
	}

	if err := verifyHandle(ctx, h.client, s.Handle); err != nil {
		return nil, err
	}

	if err := h.studentRepo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("register_student: create: %w", err)
	}
	logger := h.logger.With("student_id", s.ID, "handle", s.Handle)
	logger.Info("student registered")

	result := &RegisterStudentResult{Student: s}

	out, err := h.syncer.Handle(ctx, SyncStudentCommand{StudentID: s.ID})
	result.Sync = out
	if err != nil {
		logger.Warn("initial sync failed", "error", err)
	} else if fresh, err := h.studentRepo.GetByID(ctx, s.ID); err == nil {
		result.Student = fresh
	}

	if h.notifier != nil {
		if _, err := h.notifier.Send(ctx, notification.KindWelcome, result.Student); err != nil {
			h.metrics.IncNotification(notification.KindWelcome.String(), metrics.ResultFailure)
			logger.Warn("welcome message failed", "error", err)
		} else {
			h.metrics.IncNotification(notification.KindWelcome.String(), metrics.ResultSuccess)
			result.Welcomed = true
		}
	}

	return result, nil
}

// verifyHandle asks Codeforces whether the handle exists.
func verifyHandle(ctx context.Context, client CodeforcesClient, handle student.Handle) error {
	_, err := client.FetchProfile(ctx, handle.String())
	switch {
	case err == nil:
		return nil
	case shared.IsNotFound(err):
		return shared.WrapError("student", "Validate", shared.ErrInvalidArgument,
			fmt.Sprintf("handle %q is not known to Codeforces", handle), shared.ErrUnknownHandle)
	default:
		return shared.WrapError("student", "Validate", shared.ErrUnavailable,
			"could not verify handle with Codeforces", err)
	}
}

// invalidStudent tags entity validation errors as invalid arguments.
func invalidStudent(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.WrapError("student", op, shared.ErrInvalidArgument, "validation failed", err)
}
