// Package query contains read operations (CQRS - Queries).
// Queries read local storage only; nothing here calls Codeforces.
package query

import (
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is the API representation of a student.
type StudentDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Handle         string `json:"handle"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`

	CurrentRating int `json:"current_rating"`
	MaxRating     int `json:"max_rating"`

	// LastSyncedAt - nil if never synced.
	LastSyncedAt *time.Time `json:"last_synced_at"`

	NotificationsEnabled bool `json:"notifications_enabled"`
	NotificationsSent    int  `json:"notifications_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStudentDTO converts a student.
func NewStudentDTO(s *student.Student) StudentDTO {
	return StudentDTO{
		ID:                   s.ID,
		Name:                 s.Name,
		Email:                s.Contact.Email,
		Phone:                s.Contact.Phone,
		Handle:               s.Handle.String(),
		TelegramChatID:       s.Contact.TelegramChatID,
		CurrentRating:        s.CurrentRating,
		MaxRating:            s.MaxRating,
		LastSyncedAt:         s.LastSyncedAt,
		NotificationsEnabled: s.NotificationsEnabled,
		NotificationsSent:    s.NotificationsSent,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// ProblemDTO describes a problem.
type ProblemDTO struct {
	ContestID int      `json:"contest_id"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    int      `json:"rating"`
	Tags      []string `json:"tags"`
}

// SubmissionDTO is one submission.
type SubmissionDTO struct {
	ID          int64      `json:"id"`
	ContestID   int        `json:"contest_id"`
	Problem     ProblemDTO `json:"problem"`
	Verdict     string     `json:"verdict"`
	Language    string     `json:"language"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// NewSubmissionDTO converts a submission.
func NewSubmissionDTO(s activity.Submission) SubmissionDTO {
	tags := s.Problem.Tags
	if tags == nil {
		tags = []string{}
	}
	return SubmissionDTO{
		ID:        s.ExternalID,
		ContestID: s.ContestID,
		Problem: ProblemDTO{
			ContestID: s.Problem.ContestID,
			Index:     s.Problem.Index,
			Name:      s.Problem.Name,
			Rating:    s.Problem.Rating,
			Tags:      tags,
		},
		Verdict:     string(s.Verdict),
		Language:    s.Language,
		SubmittedAt: s.SubmittedAt,
	}
}

// ContestDTO is one rated contest result.
type ContestDTO struct {
	ContestID    int       `json:"contest_id"`
	ContestName  string    `json:"contest_name"`
	Rank         int       `json:"rank"`
	OldRating    int       `json:"old_rating"`
	NewRating    int       `json:"new_rating"`
	RatingChange int       `json:"rating_change"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewContestDTO converts a participation.
func NewContestDTO(c activity.ContestParticipation) ContestDTO {
	return ContestDTO{
		ContestID:    c.ContestID,
		ContestName:  c.ContestName,
		Rank:         c.Rank,
		OldRating:    c.OldRating,
		NewRating:    c.NewRating,
		RatingChange: c.RatingChange,
		OccurredAt:   c.OccurredAt,
	}
}
