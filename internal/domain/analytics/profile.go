// Package analytics derives profile statistics from stored activity.
// Everything here is a pure function of its input; storage access and
// window filtering happen in the query layer.
package analytics

import (
	"math"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/pkg/timeutil"
)

// RecentSubmissionsLimit caps the submissions returned for display.
const RecentSubmissionsLimit = 100

// HistogramBucket is the width of a difficulty histogram bucket.
const HistogramBucket = 100

// Input is the filtered data a profile is computed from.
type Input struct {
	// StudentCreatedAt anchors the per-day average of an unbounded window.
	StudentCreatedAt time.Time

	// ProblemWindow is the window the submissions were filtered with.
	ProblemWindow activity.Window

	// Submissions must be ordered newest first.
	Submissions []activity.Submission

	// Contests must be ordered newest first.
	Contests []activity.ContestParticipation

	Now time.Time
}

// Profile is the derived view of a student's activity.
type Profile struct {
	// SolvedCount - distinct (contest, problem name) pairs with an accepted verdict.
	SolvedCount int

	// AverageDifficulty - mean rating of accepted submissions, rounded.
	AverageDifficulty int

	// Hardest - the accepted submission with the highest problem rating.
	Hardest *activity.Submission

	// AveragePerDay - SolvedCount per effective day, two decimals.
	AveragePerDay float64

	// ActivityCalendar - UTC date to number of submissions of any verdict.
	ActivityCalendar map[string]int

	// DifficultyHistogram - rating bucket to number of distinct solved
	// problems. Repeat accepted submissions of one problem count once, so
	// bucket totals add up to SolvedCount.
	DifficultyHistogram map[int]int

	Contests          []activity.ContestParticipation
	RecentSubmissions []activity.Submission
}

// ComputeProfile aggregates over the full input; only RecentSubmissions is capped.
func ComputeProfile(in Input) Profile {
	p := Profile{
		ActivityCalendar:    make(map[string]int),
		DifficultyHistogram: make(map[int]int),
		Contests:            in.Contests,
		RecentSubmissions:   in.Submissions,
	}
	if len(p.RecentSubmissions) > RecentSubmissionsLimit {
		p.RecentSubmissions = p.RecentSubmissions[:RecentSubmissionsLimit]
	}

	solved := make(map[string]struct{})
	var (
		accepted    int
		ratingTotal int
	)

	for i := range in.Submissions {
		sub := &in.Submissions[i]
		p.ActivityCalendar[timeutil.DateKey(sub.SubmittedAt)]++

		if !sub.IsAccepted() {
			continue
		}
		accepted++
		ratingTotal += sub.Problem.Rating
		if _, seen := solved[sub.ProblemKey()]; !seen {
			solved[sub.ProblemKey()] = struct{}{}
			p.DifficultyHistogram[bucketOf(sub.Problem.Rating)]++
		}

		// strict comparison keeps the first submission on ties
		if p.Hardest == nil || sub.Problem.Rating > p.Hardest.Problem.Rating {
			p.Hardest = sub
		}
	}

	p.SolvedCount = len(solved)
	if accepted > 0 {
		p.AverageDifficulty = int(math.Round(float64(ratingTotal) / float64(accepted)))
	}

	days := EffectiveDays(in.ProblemWindow, in.StudentCreatedAt, in.Now)
	p.AveragePerDay = math.Round(float64(p.SolvedCount)/float64(days)*100) / 100

	return p
}

// EffectiveDays is the divisor of the per-day average: the window length
// when bounded, otherwise the days since registration. Never below 1.
func EffectiveDays(w activity.Window, createdAt, now time.Time) int {
	if w.IsUnbounded() {
		return timeutil.CeilDaysBetween(createdAt, now)
	}
	if w < 1 {
		return 1
	}
	return int(w)
}

func bucketOf(rating int) int {
	return int(math.Floor(float64(rating)/HistogramBucket)) * HistogramBucket
}
