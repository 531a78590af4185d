package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

var _ student.Repository = (*StudentRepository)(nil)

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const insertColumns = `
	id, handle, name, email, phone, telegram_chat_id,
	current_rating, max_rating, last_synced_at,
	notifications_enabled, notifications_sent, created_at, updated_at`

const selectColumns = `
	id::text, handle, name, email, phone, telegram_chat_id,
	current_rating, max_rating, last_synced_at,
	notifications_enabled, notifications_sent, created_at, updated_at`

// validID reports whether id can address a row. Malformed ids are treated
// as absent rather than as query errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// conflictError maps a unique violation to the domain error of its index.
func conflictError(err error) error {
	if !IsUniqueViolation(err) {
		return nil
	}
	if strings.Contains(ConstraintName(err), "email") {
		return shared.ErrEmailTaken
	}
	return shared.ErrHandleTaken
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.conn.Pool().Exec(ctx, query,
		s.ID,
		s.Handle.String(),
		s.Name,
		s.Contact.Email,
		s.Contact.Phone,
		s.Contact.TelegramChatID,
		s.CurrentRating,
		s.MaxRating,
		s.LastSyncedAt,
		s.NotificationsEnabled,
		s.NotificationsSent,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if cErr := conflictError(err); cErr != nil {
			return cErr
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// GetByID returns a student by internal ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	if !validID(id) {
		return nil, shared.ErrStudentNotFound
	}
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+selectColumns+` FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

// GetByHandle returns a student by handle, ignoring case.
func (r *StudentRepository) GetByHandle(ctx context.Context, handle student.Handle) (*student.Student, error) {
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+selectColumns+` FROM students WHERE LOWER(handle) = LOWER($1)`, handle.String())
	return scanStudent(row)
}

// Update writes the profile fields only.
func (r *StudentRepository) Update(ctx context.Context, s *student.Student) error {
	if !validID(s.ID) {
		return shared.ErrStudentNotFound
	}
	query := `
		UPDATE students SET
			name = $2,
			handle = $3,
			email = $4,
			phone = $5,
			telegram_chat_id = $6,
			notifications_enabled = $7,
			updated_at = $8
		WHERE id = $1
	`

	tag, err := r.conn.Pool().Exec(ctx, query,
		s.ID,
		s.Name,
		s.Handle.String(),
		s.Contact.Email,
		s.Contact.Phone,
		s.Contact.TelegramChatID,
		s.NotificationsEnabled,
		s.UpdatedAt,
	)
	if err != nil {
		if cErr := conflictError(err); cErr != nil {
			return cErr
		}
		return fmt.Errorf("failed to update student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// SaveSyncState writes the ratings (when present) and the sync time.
func (r *StudentRepository) SaveSyncState(ctx context.Context, id string, state student.SyncState) error {
	if !validID(id) {
		return shared.ErrStudentNotFound
	}
	var (
		query string
		args  []any
	)
	syncedAt := state.SyncedAt.UTC()

	if state.Ratings != nil {
		query = `
			UPDATE students SET
				current_rating = $2,
				max_rating = $3,
				last_synced_at = $4,
				updated_at = $4
			WHERE id = $1
		`
		args = []any{id, state.Ratings.Current, state.Ratings.Max, syncedAt}
	} else {
		query = `UPDATE students SET last_synced_at = $2, updated_at = $2 WHERE id = $1`
		args = []any{id, syncedAt}
	}

	tag, err := r.conn.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// Delete removes a student. Activity rows go with it via ON DELETE CASCADE.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return shared.ErrStudentNotFound
	}
	tag, err := r.conn.Pool().Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Bulk Operations
// ─────────────────────────────────────────────────────────────────────────────

// orderClause maps a sort field to a fixed SQL fragment.
func orderClause(opts student.ListOptions) string {
	dir := "ASC"
	if opts.SortDesc {
		dir = "DESC"
	}

	var col string
	switch opts.SortBy {
	case student.SortByCurrentRating:
		col = "current_rating"
	case student.SortByHandle:
		col = "LOWER(handle)"
	default:
		col = "created_at"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", col, dir, dir)
}

// List returns students ordered as requested.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]*student.Student, error) {
	query := `SELECT ` + selectColumns + ` FROM students ` + orderClause(opts)

	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	out := make([]*student.Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return n, nil
}

// IncrementNotificationsSent bumps the delivered counter in one statement.
func (r *StudentRepository) IncrementNotificationsSent(ctx context.Context, id string) (int, error) {
	if !validID(id) {
		return 0, shared.ErrStudentNotFound
	}
	var n int
	err := r.conn.Pool().QueryRow(ctx,
		`UPDATE students SET notifications_sent = notifications_sent + 1 WHERE id = $1 RETURNING notifications_sent`,
		id,
	).Scan(&n)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrStudentNotFound
		}
		return 0, fmt.Errorf("failed to increment notifications: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanStudent(row pgx.Row) (*student.Student, error) {
	var (
		s            student.Student
		handle       string
		lastSyncedAt *time.Time
	)

	err := row.Scan(
		&s.ID,
		&handle,
		&s.Name,
		&s.Contact.Email,
		&s.Contact.Phone,
		&s.Contact.TelegramChatID,
		&s.CurrentRating,
		&s.MaxRating,
		&lastSyncedAt,
		&s.NotificationsEnabled,
		&s.NotificationsSent,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.Handle = student.Handle(handle)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if lastSyncedAt != nil {
		t := lastSyncedAt.UTC()
		s.LastSyncedAt = &t
	}
	return &s, nil
}
