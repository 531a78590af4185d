package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPOSITORIES
// Both sets are replaced as a whole inside one transaction: lock the owner
// row, delete, bulk insert with COPY.
// ══════════════════════════════════════════════════════════════════════════════

// lockOwner locks the student row for the rest of the transaction, so two
// replaces for the same student serialize.
func lockOwner(ctx context.Context, tx pgx.Tx, studentID string) error {
	if !validID(studentID) {
		return shared.ErrStudentNotFound
	}
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM students WHERE id = $1 FOR UPDATE`, studentID).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("lock student: %w", err)
	}
	return nil
}

// copyOwner encodes the owner id for the binary COPY protocol. The id was
// validated by lockOwner.
func copyOwner(studentID string) [16]byte {
	return uuid.MustParse(studentID)
}

// sinceClause returns the optional time filter and its arguments.
func sinceClause(column string, studentID string, since time.Time) (string, []any) {
	if since.IsZero() {
		return "student_id = $1", []any{studentID}
	}
	return "student_id = $1 AND " + column + " >= $2", []any{studentID, since.UTC()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Submissions
// ─────────────────────────────────────────────────────────────────────────────

// SubmissionRepository implements activity.SubmissionRepository.
type SubmissionRepository struct {
	conn *Connection
}

var _ activity.SubmissionRepository = (*SubmissionRepository)(nil)

func NewSubmissionRepository(conn *Connection) *SubmissionRepository {
	return &SubmissionRepository{conn: conn}
}

var submissionCopyColumns = []string{
	"student_id", "external_id", "contest_id",
	"problem_contest_id", "problem_index", "problem_name", "problem_rating", "tags",
	"verdict", "language", "submitted_at",
}

// ReplaceForStudent swaps the whole submission set in one transaction.
func (r *SubmissionRepository) ReplaceForStudent(ctx context.Context, studentID string, subs []activity.Submission) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, studentID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM submissions WHERE student_id = $1`, studentID); err != nil {
			return fmt.Errorf("delete submissions: %w", err)
		}
		if len(subs) == 0 {
			return nil
		}
		owner := copyOwner(studentID)

		_, err := tx.CopyFrom(ctx, pgx.Identifier{"submissions"}, submissionCopyColumns,
			pgx.CopyFromSlice(len(subs), func(i int) ([]any, error) {
				s := subs[i]
				tags := s.Problem.Tags
				if tags == nil {
					tags = []string{}
				}
				return []any{
					owner, s.ExternalID, s.ContestID,
					s.Problem.ContestID, s.Problem.Index, s.Problem.Name, s.Problem.Rating, tags,
					string(s.Verdict), s.Language, s.SubmittedAt.UTC(),
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy submissions: %w", err)
		}
		return nil
	})
}

// ListForStudent returns submissions newest first.
func (r *SubmissionRepository) ListForStudent(ctx context.Context, studentID string, since time.Time) ([]activity.Submission, error) {
	if !validID(studentID) {
		return []activity.Submission{}, nil
	}
	where, args := sinceClause("submitted_at", studentID, since)

	rows, err := r.conn.Pool().Query(ctx, `
		SELECT student_id::text, external_id, contest_id,
			   problem_contest_id, problem_index, problem_name, problem_rating, tags,
			   verdict, language, submitted_at
		FROM submissions
		WHERE `+where+`
		ORDER BY submitted_at DESC, external_id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]activity.Submission, 0)
	for rows.Next() {
		var (
			s       activity.Submission
			verdict string
		)
		if err := rows.Scan(
			&s.StudentID, &s.ExternalID, &s.ContestID,
			&s.Problem.ContestID, &s.Problem.Index, &s.Problem.Name, &s.Problem.Rating, &s.Problem.Tags,
			&verdict, &s.Language, &s.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.Verdict = activity.Verdict(verdict)
		s.SubmittedAt = s.SubmittedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSince counts submissions with submitted_at >= since.
func (r *SubmissionRepository) CountSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	if !validID(studentID) {
		return 0, nil
	}
	where, args := sinceClause("submitted_at", studentID, since)

	var n int
	if err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Contests
// ─────────────────────────────────────────────────────────────────────────────

// ContestRepository implements activity.ContestRepository.
type ContestRepository struct {
	conn *Connection
}

var _ activity.ContestRepository = (*ContestRepository)(nil)

func NewContestRepository(conn *Connection) *ContestRepository {
	return &ContestRepository{conn: conn}
}

var contestCopyColumns = []string{
	"student_id", "contest_id", "contest_name", "rank",
	"old_rating", "new_rating", "rating_change", "occurred_at",
}

// ReplaceForStudent swaps the whole contest history in one transaction.
func (r *ContestRepository) ReplaceForStudent(ctx context.Context, studentID string, contests []activity.ContestParticipation) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockOwner(ctx, tx, studentID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM contest_participations WHERE student_id = $1`, studentID); err != nil {
			return fmt.Errorf("delete contests: %w", err)
		}
		if len(contests) == 0 {
			return nil
		}
		owner := copyOwner(studentID)

		_, err := tx.CopyFrom(ctx, pgx.Identifier{"contest_participations"}, contestCopyColumns,
			pgx.CopyFromSlice(len(contests), func(i int) ([]any, error) {
				c := contests[i]
				return []any{
					owner, c.ContestID, c.ContestName, c.Rank,
					c.OldRating, c.NewRating, c.NewRating - c.OldRating, c.OccurredAt.UTC(),
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy contests: %w", err)
		}
		return nil
	})
}

// ListForStudent returns participations newest first.
func (r *ContestRepository) ListForStudent(ctx context.Context, studentID string, since time.Time) ([]activity.ContestParticipation, error) {
	if !validID(studentID) {
		return []activity.ContestParticipation{}, nil
	}
	where, args := sinceClause("occurred_at", studentID, since)

	rows, err := r.conn.Pool().Query(ctx, `
		SELECT student_id::text, contest_id, contest_name, rank,
			   old_rating, new_rating, rating_change, occurred_at
		FROM contest_participations
		WHERE `+where+`
		ORDER BY occurred_at DESC, contest_id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	defer rows.Close()

	out := make([]activity.ContestParticipation, 0)
	for rows.Next() {
		var c activity.ContestParticipation
		if err := rows.Scan(
			&c.StudentID, &c.ContestID, &c.ContestName, &c.Rank,
			&c.OldRating, &c.NewRating, &c.RatingChange, &c.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		c.OccurredAt = c.OccurredAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
