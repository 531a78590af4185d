// Package memory implements the repositories on top of process memory.
// It backs tests and single-node runs without PostgreSQL; every value is
// copied on the way in and on the way out.
package memory

import (
	"sync"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store holds students and their activity under one lock so a delete
// cascades atomically.
type Store struct {
	mu sync.RWMutex

	// students indexed by ID.
	students map[string]*student.Student

	// submissions indexed by student ID, newest first.
	submissions map[string][]activity.Submission

	// contests indexed by student ID, newest first.
	contests map[string][]activity.ContestParticipation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		students:    make(map[string]*student.Student),
		submissions: make(map[string][]activity.Submission),
		contests:    make(map[string][]activity.ContestParticipation),
	}
}

// Students returns the student repository view of the store.
func (s *Store) Students() *StudentRepository {
	return &StudentRepository{store: s}
}

// Submissions returns the submission repository view of the store.
func (s *Store) Submissions() *SubmissionRepository {
	return &SubmissionRepository{store: s}
}

// Contests returns the contest repository view of the store.
func (s *Store) Contests() *ContestRepository {
	return &ContestRepository{store: s}
}

// Compile-time interface checks.
var (
	_ student.Repository            = (*StudentRepository)(nil)
	_ activity.SubmissionRepository = (*SubmissionRepository)(nil)
	_ activity.ContestRepository    = (*ContestRepository)(nil)
)
