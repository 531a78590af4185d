package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/application/query"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/cf-progress-hub/internal/interface/http/handlers"
)

// ───────────────────────────────────────────────────────────────────────────────
// Stubs
// ───────────────────────────────────────────────────────────────────────────────

type stubRunner struct {
	err error
}

func (r *stubRunner) Handle(context.Context) (*command.BatchOutcome, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &command.BatchOutcome{RunID: "run-7", Total: 3, Succeeded: 3}, nil
}

func (r *stubRunner) IsRunning() bool                     { return false }
func (r *stubRunner) LastOutcome() *command.BatchOutcome { return nil }

type stubSyncer struct {
	err error
}

func (s *stubSyncer) Handle(_ context.Context, cmd command.SyncStudentCommand) (*command.SyncOutcome, error) {
	out := &command.SyncOutcome{StudentID: cmd.StudentID}
	if s.err != nil {
		out.Error = s.err.Error()
		return out, s.err
	}
	out.Success = true
	return out, nil
}

type stubProfile struct {
	got query.GetProfileQuery
	err error
}

func (p *stubProfile) Handle(_ context.Context, q query.GetProfileQuery) (*query.ProfileView, error) {
	p.got = q
	if p.err != nil {
		return nil, p.err
	}
	return &query.ProfileView{
		ContestWindowDays: q.ContestWindowDays,
		ProblemWindowDays: q.ProblemWindowDays,
		Statistics:        query.StatisticsDTO{SolvedCount: 4},
	}, nil
}

type stubRegistrar struct {
	err error
}

func (r *stubRegistrar) Handle(_ context.Context, cmd command.RegisterStudentCommand) (*command.RegisterStudentResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	s, err := student.NewStudent(student.NewStudentParams{
		ID:     "s-1",
		Name:   cmd.Name,
		Email:  cmd.Email,
		Handle: student.Handle(cmd.Handle),
	})
	if err != nil {
		return nil, err
	}
	return &command.RegisterStudentResult{Student: s, Welcomed: true}, nil
}

type stubLister struct {
	err error
}

func (l *stubLister) Handle(_ context.Context, q query.ListStudentsQuery) (*query.ListStudentsResult, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &query.ListStudentsResult{Students: []query.StudentDTO{{ID: "s-1", Handle: "tourist"}}, Total: 1}, nil
}

func (l *stubLister) ExportCSV(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "Name,Email\nAda,ada@example.com\n")
	return err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, runner scheduler.BatchRunner) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(scheduler.DefaultScheduleConfig(), runner,
		scheduler.WithClock(func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }),
		scheduler.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	return s
}

func newTestServer(t *testing.T, cfg Config, deps Dependencies) http.Handler {
	t.Helper()
	deps.Logger = quietLogger()
	cfg.RateLimitPerSecond = 0
	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// ───────────────────────────────────────────────────────────────────────────────
// Schedule
// ───────────────────────────────────────────────────────────────────────────────

func TestReconfigureSchedule(t *testing.T) {
	sched := newTestScheduler(t, &stubRunner{})
	h := newTestServer(t, DefaultConfig(), Dependencies{Scheduler: sched})

	t.Run("invalid expression is 400 and changes nothing", func(t *testing.T) {
		rec, env := do(t, h, http.MethodPut, "/api/v1/schedule", `{"expression":"every tuesday"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "invalid_argument", env.Error.Code)
		assert.Equal(t, scheduler.DefaultExpression, sched.Status().Expression)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec, _ := do(t, h, http.MethodPut, "/api/v1/schedule", `{"expression":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid expression is applied", func(t *testing.T) {
		rec, env := do(t, h, http.MethodPut, "/api/v1/schedule", `{"expression":"0 */6 * * *"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var st scheduler.ScheduleStatus
		require.NoError(t, json.Unmarshal(env.Data, &st))
		assert.Equal(t, "0 */6 * * *", st.Expression)
		require.NotNil(t, st.NextRun)
		assert.Equal(t, time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC), *st.NextRun)
	})
}

func TestScheduleStatusAndPresets(t *testing.T) {
	h := newTestServer(t, DefaultConfig(), Dependencies{Scheduler: newTestScheduler(t, &stubRunner{})})

	rec, env := do(t, h, http.MethodGet, "/api/v1/schedule/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st scheduler.ScheduleStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Enabled)

	rec, env = do(t, h, http.MethodGet, "/api/v1/schedule/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var presets []scheduler.Preset
	require.NoError(t, json.Unmarshal(env.Data, &presets))
	assert.Len(t, presets, 6)
}

func TestTriggerBatch(t *testing.T) {
	t.Run("returns the outcome", func(t *testing.T) {
		h := newTestServer(t, DefaultConfig(), Dependencies{Scheduler: newTestScheduler(t, &stubRunner{})})
		rec, env := do(t, h, http.MethodPost, "/api/v1/schedule/trigger", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var out command.BatchOutcome
		require.NoError(t, json.Unmarshal(env.Data, &out))
		assert.Equal(t, "run-7", out.RunID)
		assert.Equal(t, 3, out.Succeeded)
	})

	t.Run("in progress is 409", func(t *testing.T) {
		h := newTestServer(t, DefaultConfig(), Dependencies{
			Scheduler: newTestScheduler(t, &stubRunner{err: command.ErrBatchInProgress}),
		})
		rec, _ := do(t, h, http.MethodPost, "/api/v1/schedule/trigger", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// ───────────────────────────────────────────────────────────────────────────────
// Sync & profile
// ───────────────────────────────────────────────────────────────────────────────

func TestSyncStudentStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown student", fmt.Errorf("sync_student: find student: %w", shared.ErrStudentNotFound), http.StatusNotFound},
		{"lock held", command.ErrSyncInProgress, http.StatusConflict},
		{"storage down", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, DefaultConfig(), Dependencies{SyncStudent: &stubSyncer{err: tt.err}})
			rec, env := do(t, h, http.MethodPost, "/api/v1/students/abc/sync", "")
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusInternalServerError {
				require.NotNil(t, env.Error)
				assert.NotContains(t, env.Error.Message, "connection refused")
			}
		})
	}
}

func TestGetProfile(t *testing.T) {
	t.Run("defaults both windows to 30 days", func(t *testing.T) {
		p := &stubProfile{}
		h := newTestServer(t, DefaultConfig(), Dependencies{GetProfile: p})

		rec, _ := do(t, h, http.MethodGet, "/api/v1/students/abc/profile", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc", p.got.StudentID)
		assert.Equal(t, 30, p.got.ContestWindowDays)
		assert.Equal(t, 30, p.got.ProblemWindowDays)
	})

	t.Run("passes explicit windows", func(t *testing.T) {
		p := &stubProfile{}
		h := newTestServer(t, DefaultConfig(), Dependencies{GetProfile: p})

		rec, _ := do(t, h, http.MethodGet, "/api/v1/students/abc/profile?contestDays=-1&problemDays=7", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, -1, p.got.ContestWindowDays)
		assert.Equal(t, 7, p.got.ProblemWindowDays)
	})

	t.Run("non-integer window is 400", func(t *testing.T) {
		h := newTestServer(t, DefaultConfig(), Dependencies{GetProfile: &stubProfile{}})
		rec, _ := do(t, h, http.MethodGet, "/api/v1/students/abc/profile?contestDays=week", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejected window is 400", func(t *testing.T) {
		h := newTestServer(t, DefaultConfig(), Dependencies{GetProfile: &stubProfile{err: shared.ErrInvalidWindow}})
		rec, _ := do(t, h, http.MethodGet, "/api/v1/students/abc/profile?contestDays=-5", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing student is 404", func(t *testing.T) {
		h := newTestServer(t, DefaultConfig(), Dependencies{GetProfile: &stubProfile{err: shared.ErrStudentNotFound}})
		rec, _ := do(t, h, http.MethodGet, "/api/v1/students/nope/profile", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// ───────────────────────────────────────────────────────────────────────────────
// Students
// ───────────────────────────────────────────────────────────────────────────────

func TestRegisterStudentStatusCodes(t *testing.T) {
	body := `{"name":"Ada Lovelace","email":"ada@example.com","handle":"ada_l"}`

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"handle taken", shared.ErrHandleTaken, http.StatusConflict},
		{"unknown handle", shared.WrapError("student", "Validate", shared.ErrInvalidArgument, "unknown", shared.ErrUnknownHandle), http.StatusBadRequest},
		{"upstream down", shared.WrapError("student", "Validate", shared.ErrUnavailable, "could not verify", errors.New("timeout")), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, DefaultConfig(), Dependencies{RegisterStudent: &stubRegistrar{err: tt.err}})
			rec, env := do(t, h, http.MethodPost, "/api/v1/students", body)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusCreated {
				var resp registrationResponse
				require.NoError(t, json.Unmarshal(env.Data, &resp))
				assert.Equal(t, "ada_l", resp.Student.Handle)
				assert.True(t, resp.Welcomed)
			}
		})
	}
}

func TestRegisterStudent_RejectsUnknownFields(t *testing.T) {
	h := newTestServer(t, DefaultConfig(), Dependencies{RegisterStudent: &stubRegistrar{}})
	rec, _ := do(t, h, http.MethodPost, "/api/v1/students", `{"name":"Ada","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndExportStudents(t *testing.T) {
	h := newTestServer(t, DefaultConfig(), Dependencies{ListStudents: &stubLister{}})

	rec, env := do(t, h, http.MethodGet, "/api/v1/students?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.TotalCount)
	assert.Equal(t, 10, env.Meta.Limit)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/students/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "ada@example.com")

	rec, _ = do(t, h, http.MethodGet, "/api/v1/students?offset=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingDependencyIs501(t *testing.T) {
	h := newTestServer(t, DefaultConfig(), Dependencies{})
	rec, _ := do(t, h, http.MethodGet, "/api/v1/schedule/status", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

// ───────────────────────────────────────────────────────────────────────────────
// Auth
// ───────────────────────────────────────────────────────────────────────────────

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AdminTokenHash = string(hash)
	h := newTestServer(t, cfg, Dependencies{Scheduler: newTestScheduler(t, &stubRunner{})})

	rec, env := do(t, h, http.MethodPost, "/api/v1/schedule/trigger", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "missing_token", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/schedule/trigger", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/schedule/trigger", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Reads stay open.
	rec, _ = do(t, h, http.MethodGet, "/api/v1/schedule/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServer_RejectsMalformedHash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdminTokenHash = "plaintext-token"
	_, err := NewServer(cfg, Dependencies{Logger: quietLogger()})
	assert.ErrorIs(t, err, handlers.ErrInvalidTokenHash)
}

// ───────────────────────────────────────────────────────────────────────────────
// Health & metrics
// ───────────────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	h := newTestServer(t, DefaultConfig(), Dependencies{HealthChecker: checker})

	rec, _ := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	rec, env := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var st handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Healthy)
	assert.Equal(t, "Some checks failed: redis", st.Message)
	assert.True(t, st.Checks["postgres"].Healthy)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncSync(metrics.ResultSuccess)
	h := newTestServer(t, DefaultConfig(), Dependencies{Metrics: m})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cfhub_sync_total")
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestServer(t, DefaultConfig(), Dependencies{})
	rec, _ := do(t, h, http.MethodGet, "/live", "", "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRateLimit(t *testing.T) {
	srv, err := NewServer(Config{RateLimitPerSecond: 1, RateLimitBurst: 1}, Dependencies{Logger: quietLogger()})
	require.NoError(t, err)
	h := srv.Handler()

	rec, _ := do(t, h, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
