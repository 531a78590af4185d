package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// StudentRepository implements student.Repository.
type StudentRepository struct {
	store *Store
}

func cloneStudent(s *student.Student) *student.Student {
	c := *s
	if s.LastSyncedAt != nil {
		t := *s.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}

// conflict returns the uniqueness error s would cause, ignoring the row
// with the same ID.
func (r *StudentRepository) conflict(s *student.Student) error {
	for _, other := range r.store.students {
		if other.ID == s.ID {
			continue
		}
		if strings.EqualFold(other.Handle.String(), s.Handle.String()) {
			return shared.ErrHandleTaken
		}
		if s.Contact.Email != "" && strings.EqualFold(other.Contact.Email, s.Contact.Email) {
			return shared.ErrEmailTaken
		}
	}
	return nil
}

// Create stores a new student.
func (r *StudentRepository) Create(_ context.Context, s *student.Student) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.students[s.ID]; ok {
		return shared.NewDomainError("student", "Create", shared.ErrAlreadyExists, "student id already exists")
	}
	if err := r.conflict(s); err != nil {
		return err
	}
	r.store.students[s.ID] = cloneStudent(s)
	return nil
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

// GetByHandle returns a student by handle, ignoring case.
func (r *StudentRepository) GetByHandle(_ context.Context, handle student.Handle) (*student.Student, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, s := range r.store.students {
		if strings.EqualFold(s.Handle.String(), handle.String()) {
			return cloneStudent(s), nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

// Update writes the profile fields of s.
func (r *StudentRepository) Update(_ context.Context, s *student.Student) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.students[s.ID]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if err := r.conflict(s); err != nil {
		return err
	}
	stored.Name = s.Name
	stored.Handle = s.Handle
	stored.Contact = s.Contact
	stored.NotificationsEnabled = s.NotificationsEnabled
	stored.UpdatedAt = s.UpdatedAt
	return nil
}

// SaveSyncState writes the sync-owned fields only.
func (r *StudentRepository) SaveSyncState(_ context.Context, id string, state student.SyncState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s, ok := r.store.students[id]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if state.Ratings != nil {
		s.ApplyRatings(state.Ratings.Current, state.Ratings.Max)
	}
	s.MarkSynced(state.SyncedAt)
	return nil
}

// Delete removes the student and its activity.
func (r *StudentRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.students[id]; !ok {
		return shared.ErrStudentNotFound
	}
	delete(r.store.students, id)
	delete(r.store.submissions, id)
	delete(r.store.contests, id)
	return nil
}

// List returns students in the requested order.
func (r *StudentRepository) List(_ context.Context, opts student.ListOptions) ([]*student.Student, error) {
	r.store.mu.RLock()
	all := make([]*student.Student, 0, len(r.store.students))
	for _, s := range r.store.students {
		all = append(all, cloneStudent(s))
	}
	r.store.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if opts.SortDesc {
			a, b = b, a
		}
		switch opts.SortBy {
		case student.SortByCurrentRating:
			if a.CurrentRating != b.CurrentRating {
				return a.CurrentRating < b.CurrentRating
			}
		case student.SortByHandle:
			ha, hb := strings.ToLower(a.Handle.String()), strings.ToLower(b.Handle.String())
			if ha != hb {
				return ha < hb
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return []*student.Student{}, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

// Count returns the number of students.
func (r *StudentRepository) Count(_ context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.students), nil
}

// IncrementNotificationsSent bumps the delivered counter.
func (r *StudentRepository) IncrementNotificationsSent(_ context.Context, id string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s, ok := r.store.students[id]
	if !ok {
		return 0, shared.ErrStudentNotFound
	}
	s.NotificationsSent++
	return s.NotificationsSent, nil
}
