package activity

import (
	"context"
	"time"
)

// SubmissionRepository stores the submission set of each student.
type SubmissionRepository interface {
	// ReplaceForStudent atomically swaps the student's whole submission set.
	// On error the previous set is left untouched.
	ReplaceForStudent(ctx context.Context, studentID string, subs []Submission) error

	// ListForStudent returns submissions with SubmittedAt >= since, newest
	// first. A zero since returns the full set.
	ListForStudent(ctx context.Context, studentID string, since time.Time) ([]Submission, error)

	// CountSince counts submissions with SubmittedAt >= since.
	CountSince(ctx context.Context, studentID string, since time.Time) (int, error)
}

// ContestRepository stores the contest history of each student.
type ContestRepository interface {
	// ReplaceForStudent atomically swaps the student's whole contest history.
	// On error the previous history is left untouched.
	ReplaceForStudent(ctx context.Context, studentID string, contests []ContestParticipation) error

	// ListForStudent returns participations with OccurredAt >= since, newest
	// first. A zero since returns the full history.
	ListForStudent(ctx context.Context, studentID string, since time.Time) ([]ContestParticipation, error)
}
