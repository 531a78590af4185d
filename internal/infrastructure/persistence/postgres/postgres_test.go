package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

func TestOrderClause(t *testing.T) {
	tests := []struct {
		name string
		opts student.ListOptions
		want string
	}{
		{"default", student.ListOptions{}, "ORDER BY created_at ASC, id ASC"},
		{"created desc", student.DefaultListOptions(), "ORDER BY created_at DESC, id DESC"},
		{"rating", student.ListOptions{SortBy: student.SortByCurrentRating, SortDesc: true}, "ORDER BY current_rating DESC, id DESC"},
		{"handle", student.ListOptions{SortBy: student.SortByHandle}, "ORDER BY LOWER(handle) ASC, id ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderClause(tt.opts))
		})
	}
}

func TestSinceClause(t *testing.T) {
	where, args := sinceClause("submitted_at", "id", time.Time{})
	assert.Equal(t, "student_id = $1", where)
	assert.Len(t, args, 1)

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	where, args = sinceClause("submitted_at", "id", since)
	assert.Equal(t, "student_id = $1 AND submitted_at >= $2", where)
	assert.Equal(t, []any{"id", since}, args)
}

func TestMigrationsOrdered(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

func TestPendingVersions(t *testing.T) {
	migs := []Migration{
		{Version: 1, IsApplied: true},
		{Version: 2},
		{Version: 3},
	}
	assert.Equal(t, []int{2, 3}, pendingVersions(migs))

	migs[1].IsApplied, migs[2].IsApplied = true, true
	assert.Empty(t, pendingVersions(migs))
}

// ───────────────────────────────────────────────────────────────────────────────
// Integration (CFHUB_TEST_DATABASE_URL)
// ───────────────────────────────────────────────────────────────────────────────

func newTestConn(t *testing.T) *Connection {
	t.Helper()

	url := os.Getenv("CFHUB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CFHUB_TEST_DATABASE_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = url

	ctx := context.Background()
	conn, err := NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	return conn
}

func newPGStudent(t *testing.T, handle string) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:     uuid.NewString(),
		Name:   "Integration Tester",
		Email:  handle + "@example.com",
		Handle: student.Handle(handle),
	})
	require.NoError(t, err)
	return s
}

func TestStudentRepository_Integration(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()
	repo := NewStudentRepository(conn)

	handle := "pg_" + uuid.NewString()[:8]
	s := newPGStudent(t, handle)
	require.NoError(t, repo.Create(ctx, s))
	t.Cleanup(func() { _ = repo.Delete(context.Background(), s.ID) })

	dup := newPGStudent(t, handle)
	dup.Contact.Email = "other-" + dup.Contact.Email
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrHandleTaken)

	got, err := repo.GetByHandle(ctx, student.Handle(handle))
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Nil(t, got.LastSyncedAt)

	syncedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.SaveSyncState(ctx, s.ID, student.SyncState{
		Ratings:  &student.Ratings{Current: 1400, Max: 1500},
		SyncedAt: syncedAt,
	}))

	n, err := repo.IncrementNotificationsSent(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A stale copy must not clobber sync-owned fields.
	s.Name = "Renamed Tester"
	require.NoError(t, repo.Update(ctx, s))

	got, err = repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Tester", got.Name)
	assert.Equal(t, 1400, got.CurrentRating)
	assert.Equal(t, 1, got.NotificationsSent)
	require.NotNil(t, got.LastSyncedAt)
	assert.WithinDuration(t, syncedAt, *got.LastSyncedAt, time.Millisecond)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestActivityRepositories_Integration(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()
	students := NewStudentRepository(conn)
	subs := NewSubmissionRepository(conn)
	contests := NewContestRepository(conn)

	s := newPGStudent(t, "pga_"+uuid.NewString()[:8])
	require.NoError(t, students.Create(ctx, s))

	base := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	first := []activity.Submission{
		{ExternalID: 1, Problem: activity.Problem{Name: "A", Tags: []string{"math"}}, Verdict: activity.VerdictAccepted, SubmittedAt: base},
		{ExternalID: 2, Problem: activity.Problem{Name: "B"}, Verdict: "WRONG_ANSWER", SubmittedAt: base.Add(time.Hour)},
	}
	require.NoError(t, subs.ReplaceForStudent(ctx, s.ID, first))

	second := []activity.Submission{
		{ExternalID: 3, Problem: activity.Problem{Name: "C"}, Verdict: activity.VerdictAccepted, SubmittedAt: base.Add(48 * time.Hour)},
	}
	require.NoError(t, subs.ReplaceForStudent(ctx, s.ID, second))

	all, err := subs.ListForStudent(ctx, s.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3), all[0].ExternalID)
	assert.Equal(t, s.ID, all[0].StudentID)

	n, err := subs.CountSince(ctx, s.ID, base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, contests.ReplaceForStudent(ctx, s.ID, []activity.ContestParticipation{
		activity.NewContestParticipation("", 1850, "Round", 10, 1400, 1450, base),
	}))
	history, err := contests.ListForStudent(ctx, s.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 50, history[0].RatingChange)

	require.NoError(t, students.Delete(ctx, s.ID))
	all, err = subs.ListForStudent(ctx, s.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, subs.ReplaceForStudent(ctx, s.ID, first), shared.ErrStudentNotFound)
}

func TestMigrator_StatusAndCheck_Integration(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()
	m := NewMigrator(conn)

	migs, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, migs, len(GetMigrations()))
	for _, mig := range migs {
		assert.True(t, mig.IsApplied, "version %d", mig.Version)
		assert.False(t, mig.AppliedAt.IsZero())
	}
	assert.NoError(t, m.Check(ctx))
}
