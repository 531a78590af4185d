package codeforces

import (
	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to domain transformations
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts Codeforces DTOs into domain records. Output is a pure
// function of input, so replaying the same payload yields identical rows.
type Mapper struct{}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Ratings returns the current and max rating; unrated users map to 0.
func (m *Mapper) Ratings(p *ProfileDTO) (current, maxRating int) {
	if p == nil {
		return 0, 0
	}
	return p.Rating, p.MaxRating
}

// Submissions maps a user.status result. StudentID is left for the caller.
func (m *Mapper) Submissions(dtos []SubmissionDTO) []activity.Submission {
	out := make([]activity.Submission, 0, len(dtos))
	for _, d := range dtos {
		tags := make([]string, len(d.Problem.Tags))
		copy(tags, d.Problem.Tags)

		out = append(out, activity.Submission{
			ExternalID: d.ID,
			ContestID:  d.ContestID,
			Problem: activity.Problem{
				ContestID: d.Problem.ContestID,
				Index:     d.Problem.Index,
				Name:      d.Problem.Name,
				Rating:    d.Problem.Rating,
				Tags:      tags,
			},
			Verdict:     activity.Verdict(d.Verdict),
			Language:    d.ProgrammingLanguage,
			SubmittedAt: timeutil.FromEpochSeconds(d.CreationTimeSeconds),
		})
	}
	return out
}

// Contests maps a user.rating result and derives each rating change.
func (m *Mapper) Contests(dtos []RatingChangeDTO) []activity.ContestParticipation {
	out := make([]activity.ContestParticipation, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, activity.NewContestParticipation(
			"",
			d.ContestID,
			d.ContestName,
			d.Rank,
			d.OldRating,
			d.NewRating,
			timeutil.FromEpochSeconds(d.RatingUpdateTimeSeconds),
		))
	}
	return out
}
