package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION STATS QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// NotificationStatsDTO is the per-student reminder summary.
type NotificationStatsDTO struct {
	StudentID    string     `json:"student_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Enabled      bool       `json:"enabled"`
	Sent         int        `json:"sent"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// NotificationSystemDTO summarizes reminders across all students.
type NotificationSystemDTO struct {
	TotalStudents int      `json:"total_students"`
	EnabledCount  int      `json:"enabled_count"`
	DisabledCount int      `json:"disabled_count"`
	TotalSent     int      `json:"total_sent"`
	Channels      []string `json:"channels"`
}

// NotificationStatsHandler answers notification queries.
type NotificationStatsHandler struct {
	studentRepo student.Repository
	channels    []string
}

// NewNotificationStatsHandler creates a new handler. channels names the
// configured delivery channels.
func NewNotificationStatsHandler(studentRepo student.Repository, channels []string) *NotificationStatsHandler {
	if channels == nil {
		channels = []string{}
	}
	return &NotificationStatsHandler{studentRepo: studentRepo, channels: channels}
}

// ForStudent returns the summary of one student.
func (h *NotificationStatsHandler) ForStudent(ctx context.Context, studentID string) (*NotificationStatsDTO, error) {
	s, err := h.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("notification_stats: %w", err)
	}
	return &NotificationStatsDTO{
		StudentID:    s.ID,
		Name:         s.Name,
		Email:        s.Contact.Email,
		Enabled:      s.NotificationsEnabled,
		Sent:         s.NotificationsSent,
		LastSyncedAt: s.LastSyncedAt,
	}, nil
}

// System returns totals across every student.
func (h *NotificationStatsHandler) System(ctx context.Context) (*NotificationSystemDTO, error) {
	students, err := h.studentRepo.List(ctx, student.DefaultListOptions())
	if err != nil {
		return nil, fmt.Errorf("notification_stats: %w", err)
	}

	dto := &NotificationSystemDTO{TotalStudents: len(students), Channels: h.channels}
	for _, s := range students {
		if s.NotificationsEnabled {
			dto.EnabledCount++
		}
		dto.TotalSent += s.NotificationsSent
	}
	dto.DisabledCount = dto.TotalStudents - dto.EnabledCount
	return dto, nil
}
