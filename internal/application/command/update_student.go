package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE / DELETE STUDENT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateStudentCommand carries a partial update. Nil fields are unchanged.
type UpdateStudentCommand struct {
	StudentID      string  `json:"-"`
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Handle         *string `json:"handle,omitempty"`
	TelegramChatID *int64  `json:"telegram_chat_id,omitempty"`
}

// Validate validates the command.
func (c UpdateStudentCommand) Validate() error {
	if c.StudentID == "" {
		return shared.NewDomainError("student", "Update", shared.ErrEmptyValue, "student_id must be provided")
	}
	return nil
}

func (c UpdateStudentCommand) params() student.UpdateParams {
	p := student.UpdateParams{
		Name:           c.Name,
		Email:          c.Email,
		Phone:          c.Phone,
		TelegramChatID: c.TelegramChatID,
	}
	if c.Handle != nil {
		h := student.Handle(*c.Handle)
		p.Handle = &h
	}
	return p
}

// UpdateStudentResult contains the result of an update.
type UpdateStudentResult struct {
	Student *student.Student `json:"student"`

	// Sync is set when the handle changed and a re-sync ran.
	Sync *SyncOutcome `json:"sync,omitempty"`
}

// UpdateStudentHandler handles UpdateStudentCommand and DeleteStudentCommand.
type UpdateStudentHandler struct {
	studentRepo student.Repository
	client      CodeforcesClient
	syncer      Syncer
	cache       ProfileCacheInvalidator
	clock       Clock
	logger      *slog.Logger
}

// NewUpdateStudentHandler creates a new UpdateStudentHandler. cache may be nil.
func NewUpdateStudentHandler(
	studentRepo student.Repository,
	client CodeforcesClient,
	syncer Syncer,
	cache ProfileCacheInvalidator,
	clock Clock,
	logger *slog.Logger,
) *UpdateStudentHandler {
	if clock == nil {
		clock = systemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateStudentHandler{
		studentRepo: studentRepo,
		client:      client,
		syncer:      syncer,
		cache:       cache,
		clock:       clock,
		logger:      logger,
	}
}

// Handle applies the update. A changed handle is verified against
// Codeforces first and triggers a re-sync afterwards.
func (h *UpdateStudentHandler) Handle(ctx context.Context, cmd UpdateStudentCommand) (*UpdateStudentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := h.studentRepo.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("update_student: %w", err)
	}

	handleChanged, err := s.Apply(cmd.params(), h.clock())
	if err != nil {
		return nil, invalidStudent("Update", err)
	}

	if handleChanged {
		if err := verifyHandle(ctx, h.client, s.Handle); err != nil {
			return nil, err
		}
	}

	if err := h.studentRepo.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update_student: save: %w", err)
	}
	invalidateProfile(ctx, h.cache, h.logger, s.ID)
	h.logger.Info("student updated", "student_id", s.ID, "handle_changed", handleChanged)

	result := &UpdateStudentResult{Student: s}
	if !handleChanged {
		return result, nil
	}

	out, err := h.syncer.Handle(ctx, SyncStudentCommand{StudentID: s.ID})
	result.Sync = out
	if err != nil {
		h.logger.Warn("re-sync after handle change failed", "student_id", s.ID, "error", err)
	} else if fresh, err := h.studentRepo.GetByID(ctx, s.ID); err == nil {
		result.Student = fresh
	}
	return result, nil
}

// DeleteStudentCommand removes a student and its activity.
type DeleteStudentCommand struct {
	StudentID string
}

// Delete removes the student. Submissions and contests go with it.
func (h *UpdateStudentHandler) Delete(ctx context.Context, cmd DeleteStudentCommand) error {
	if cmd.StudentID == "" {
		return shared.NewDomainError("student", "Delete", shared.ErrEmptyValue, "student_id must be provided")
	}
	if err := h.studentRepo.Delete(ctx, cmd.StudentID); err != nil {
		return fmt.Errorf("delete_student: %w", err)
	}
	invalidateProfile(ctx, h.cache, h.logger, cmd.StudentID)
	h.logger.Info("student deleted", "student_id", cmd.StudentID)
	return nil
}
