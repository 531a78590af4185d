// Package activity contains the Codeforces activity records stored for a
// student: submissions and contest participations. Both sets are owned by
// exactly one student and are only ever replaced as a whole.
// This is a pure domain layer with zero external dependencies.
package activity

import (
	"fmt"
	"time"
)

// Verdict is the judge outcome of a submission.
type Verdict string

// VerdictAccepted marks a solved submission.
const VerdictAccepted Verdict = "OK"

// Problem describes the problem a submission was made for.
type Problem struct {
	// ContestID - contest the problem belongs to, 0 for gym/acmsguru problems.
	ContestID int

	// Index - problem letter within the contest, e.g. "C1".
	Index string

	// Name - problem title.
	Name string

	// Rating - difficulty, 0 when Codeforces has not rated the problem.
	Rating int

	// Tags - topic tags.
	Tags []string
}

// Submission is one judged attempt by a student.
type Submission struct {
	// ExternalID - Codeforces submission id.
	ExternalID int64

	// StudentID - owner.
	StudentID string

	// ContestID - 0 when absent upstream.
	ContestID int

	Problem  Problem
	Verdict  Verdict
	Language string

	// SubmittedAt - UTC, millisecond precision.
	SubmittedAt time.Time
}

// IsAccepted reports whether the submission solved the problem.
func (s Submission) IsAccepted() bool {
	return s.Verdict == VerdictAccepted
}

// ProblemKey identifies a problem for distinct-solve counting.
func (s Submission) ProblemKey() string {
	return fmt.Sprintf("%d-%s", s.ContestID, s.Problem.Name)
}

// ContestParticipation is one rated contest result.
type ContestParticipation struct {
	StudentID   string
	ContestID   int
	ContestName string
	Rank        int
	OldRating   int
	NewRating   int

	// RatingChange - NewRating minus OldRating.
	RatingChange int

	// OccurredAt - rating update time, UTC.
	OccurredAt time.Time
}

// NewContestParticipation builds a record and derives the rating change.
func NewContestParticipation(studentID string, contestID int, name string, rank, oldRating, newRating int, at time.Time) ContestParticipation {
	return ContestParticipation{
		StudentID:    studentID,
		ContestID:    contestID,
		ContestName:  name,
		Rank:         rank,
		OldRating:    oldRating,
		NewRating:    newRating,
		RatingChange: newRating - oldRating,
		OccurredAt:   at.UTC(),
	}
}
