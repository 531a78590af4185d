package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRepository implements activity.SubmissionRepository.
type SubmissionRepository struct {
	store *Store
}

func cloneSubmissions(subs []activity.Submission) []activity.Submission {
	out := make([]activity.Submission, len(subs))
	copy(out, subs)
	for i := range out {
		if subs[i].Problem.Tags != nil {
			out[i].Problem.Tags = append([]string(nil), subs[i].Problem.Tags...)
		}
	}
	return out
}

// ReplaceForStudent swaps the student's submission set.
func (r *SubmissionRepository) ReplaceForStudent(_ context.Context, studentID string, subs []activity.Submission) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.students[studentID]; !ok {
		return shared.ErrStudentNotFound
	}

	next := cloneSubmissions(subs)
	for i := range next {
		next[i].StudentID = studentID
	}
	sort.SliceStable(next, func(i, j int) bool {
		if !next[i].SubmittedAt.Equal(next[j].SubmittedAt) {
			return next[i].SubmittedAt.After(next[j].SubmittedAt)
		}
		return next[i].ExternalID > next[j].ExternalID
	})
	r.store.submissions[studentID] = next
	return nil
}

// ListForStudent returns submissions at or after since, newest first.
func (r *SubmissionRepository) ListForStudent(_ context.Context, studentID string, since time.Time) ([]activity.Submission, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]activity.Submission, 0)
	for _, s := range r.store.submissions[studentID] {
		if !since.IsZero() && s.SubmittedAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return cloneSubmissions(out), nil
}

// CountSince counts submissions at or after since.
func (r *SubmissionRepository) CountSince(_ context.Context, studentID string, since time.Time) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	n := 0
	for _, s := range r.store.submissions[studentID] {
		if !s.SubmittedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTESTS
// ══════════════════════════════════════════════════════════════════════════════

// ContestRepository implements activity.ContestRepository.
type ContestRepository struct {
	store *Store
}

// ReplaceForStudent swaps the student's contest history.
func (r *ContestRepository) ReplaceForStudent(_ context.Context, studentID string, contests []activity.ContestParticipation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.students[studentID]; !ok {
		return shared.ErrStudentNotFound
	}

	next := make([]activity.ContestParticipation, len(contests))
	copy(next, contests)
	for i := range next {
		next[i].StudentID = studentID
	}
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].OccurredAt.After(next[j].OccurredAt)
	})
	r.store.contests[studentID] = next
	return nil
}

// ListForStudent returns participations at or after since, newest first.
func (r *ContestRepository) ListForStudent(_ context.Context, studentID string, since time.Time) ([]activity.ContestParticipation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]activity.ContestParticipation, 0)
	for _, c := range r.store.contests[studentID] {
		if !since.IsZero() && c.OccurredAt.Before(since) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
