package student

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for students.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create stores a new student.
	// Returns shared.ErrHandleTaken or shared.ErrEmailTaken on conflicts.
	Create(ctx context.Context, s *Student) error

	// GetByID returns a student by internal ID.
	// Returns shared.ErrStudentNotFound if absent.
	GetByID(ctx context.Context, id string) (*Student, error)

	// GetByHandle returns a student by handle (case-insensitive).
	// Returns shared.ErrStudentNotFound if absent.
	GetByHandle(ctx context.Context, handle Handle) (*Student, error)

	// Update persists the profile fields: name, contact, handle,
	// notification setting and UpdatedAt. Ratings, LastSyncedAt and
	// NotificationsSent are owned by SaveSyncState and
	// IncrementNotificationsSent and are left untouched.
	// Returns shared.ErrStudentNotFound if absent.
	Update(ctx context.Context, s *Student) error

	// SaveSyncState persists the fields owned by the sync engine. Ratings
	// are written only when state.Ratings is set.
	// Returns shared.ErrStudentNotFound if absent.
	SaveSyncState(ctx context.Context, id string, state SyncState) error

	// Delete removes the student together with its submissions and contests.
	// Returns shared.ErrStudentNotFound if absent.
	Delete(ctx context.Context, id string) error

	// ─────────────────────────────────────────────────────────────────────────
	// Bulk Operations
	// ─────────────────────────────────────────────────────────────────────────

	// List returns students ordered as requested.
	List(ctx context.Context, opts ListOptions) ([]*Student, error)

	// Count returns the number of students.
	Count(ctx context.Context) (int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Notification accounting
	// ─────────────────────────────────────────────────────────────────────────

	// IncrementNotificationsSent atomically bumps the delivered counter and
	// returns the new value.
	IncrementNotificationsSent(ctx context.Context, id string) (int, error)
}

// Ratings is a rating summary.
type Ratings struct {
	Current int
	Max     int
}

// SyncState is the part of a student written by a sync.
type SyncState struct {
	// Ratings - nil when the profile fetch failed.
	Ratings *Ratings

	// SyncedAt - completion time of the sync.
	SyncedAt time.Time
}

// SortField selects the ordering column for List.
type SortField string

const (
	SortByCreatedAt     SortField = "created_at"
	SortByCurrentRating SortField = "current_rating"
	SortByHandle        SortField = "handle"
)

// IsValid reports whether the field is supported.
func (f SortField) IsValid() bool {
	switch f {
	case SortByCreatedAt, SortByCurrentRating, SortByHandle:
		return true
	default:
		return false
	}
}

// ListOptions contains pagination and sorting parameters.
type ListOptions struct {
	// Offset - number of rows to skip.
	Offset int

	// Limit - maximum number of rows, 0 means no limit.
	Limit int

	// SortBy - ordering column.
	SortBy SortField

	// SortDesc - descending order.
	SortDesc bool
}

// DefaultListOptions returns every student, newest registration first.
func DefaultListOptions() ListOptions {
	return ListOptions{
		SortBy:   SortByCreatedAt,
		SortDesc: true,
	}
}

// WithLimit sets the limit.
func (o ListOptions) WithLimit(limit int) ListOptions {
	o.Limit = limit
	return o
}

// WithOffset sets the offset.
func (o ListOptions) WithOffset(offset int) ListOptions {
	o.Offset = offset
	return o
}

// WithSort sets the ordering.
func (o ListOptions) WithSort(field SortField, desc bool) ListOptions {
	o.SortBy = field
	o.SortDesc = desc
	return o
}
