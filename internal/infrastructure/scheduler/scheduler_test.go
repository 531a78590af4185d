package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeRunner struct {
	mu      sync.Mutex
	calls   atomic.Int32
	err     error
	last    *command.BatchOutcome
	running bool
}

func (f *fakeRunner) Handle(context.Context) (*command.BatchOutcome, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := &command.BatchOutcome{RunID: "run-1", Total: 2, Succeeded: 2}
	f.mu.Lock()
	f.last = out
	f.mu.Unlock()
	return out, nil
}

func (f *fakeRunner) IsRunning() bool { return f.running }

func (f *fakeRunner) LastOutcome() *command.BatchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestScheduler(t *testing.T, cfg ScheduleConfig, runner BatchRunner) *Scheduler {
	t.Helper()
	s, err := New(cfg, runner,
		WithClock(fixedClock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(ScheduleConfig{Expression: "not a cron", Enabled: true}, &fakeRunner{})
	assert.ErrorIs(t, err, ErrInvalidExpression)
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = New(ScheduleConfig{Expression: "", Enabled: true}, &fakeRunner{})
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = New(ScheduleConfig{Expression: DefaultExpression, Timezone: "Mars/Olympus"}, &fakeRunner{})
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestStatus_NextRunFromInjectedClock(t *testing.T) {
	s := newTestScheduler(t, DefaultScheduleConfig(), &fakeRunner{})

	st := s.Status()
	assert.Equal(t, DefaultExpression, st.Expression)
	assert.True(t, st.Enabled)
	assert.Equal(t, "UTC", st.Timezone)
	assert.Nil(t, st.LastRun)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, time.Date(2024, 6, 16, 2, 0, 0, 0, time.UTC), *st.NextRun)
}

func TestStatus_NextRunHonoursTimezone(t *testing.T) {
	cfg := DefaultScheduleConfig()
	cfg.Timezone = "Asia/Almaty"
	s := newTestScheduler(t, cfg, &fakeRunner{})

	st := s.Status()
	require.NotNil(t, st.NextRun)
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	assert.Equal(t, 2, st.NextRun.In(loc).Hour())
	assert.True(t, st.NextRun.After(fixedNow))
}

func TestReconfigure_InvalidExpressionChangesNothing(t *testing.T) {
	s := newTestScheduler(t, DefaultScheduleConfig(), &fakeRunner{})

	_, err := s.Reconfigure(ReconfigureRequest{Expression: strPtr("61 * * * *"), Enabled: boolPtr(false)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidExpression)

	st := s.Status()
	assert.Equal(t, DefaultExpression, st.Expression)
	assert.True(t, st.Enabled)
}

func TestReconfigure_RecomputesNextRun(t *testing.T) {
	s := newTestScheduler(t, DefaultScheduleConfig(), &fakeRunner{})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	st, err := s.Reconfigure(ReconfigureRequest{Expression: strPtr(" 0 */6 * * * ")})
	require.NoError(t, err)
	assert.Equal(t, "0 */6 * * *", st.Expression)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC), *st.NextRun)
	assert.True(t, st.Started)
}

func TestReconfigure_DisableClearsNextRun(t *testing.T) {
	s := newTestScheduler(t, DefaultScheduleConfig(), &fakeRunner{})

	st, err := s.Reconfigure(ReconfigureRequest{Enabled: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Nil(t, st.NextRun)

	st, err = s.Reconfigure(ReconfigureRequest{Enabled: boolPtr(true)})
	require.NoError(t, err)
	assert.NotNil(t, st.NextRun)
}

func TestReconfigure_AcceptsDescriptors(t *testing.T) {
	s := newTestScheduler(t, DefaultScheduleConfig(), &fakeRunner{})

	st, err := s.Reconfigure(ReconfigureRequest{Expression: strPtr("@every 1h")})
	require.NoError(t, err)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, fixedNow.Add(time.Hour), *st.NextRun)
}

func TestTriggerNow_StoresOutcome(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, DefaultScheduleConfig(), runner)

	out, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", out.RunID)

	st := s.Status()
	require.NotNil(t, st.LastRun)
	assert.Equal(t, fixedNow, *st.LastRun)
	require.NotNil(t, st.LastOutcome)
	assert.Equal(t, 2, st.LastOutcome.Succeeded)
}

func TestTriggerNow_PropagatesInProgress(t *testing.T) {
	runner := &fakeRunner{err: command.ErrBatchInProgress}
	s := newTestScheduler(t, DefaultScheduleConfig(), runner)

	_, err := s.TriggerNow(context.Background())
	assert.ErrorIs(t, err, command.ErrBatchInProgress)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestStart_FiresOnSchedule(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, ScheduleConfig{Expression: "@every 1s", Enabled: true}, runner)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Status().Started)
}

func TestStart_DisabledNeverFires(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, ScheduleConfig{Expression: "@every 1s", Enabled: false}, runner)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	assert.Zero(t, runner.calls.Load())
}

func TestPresets_AllParse(t *testing.T) {
	s := newTestScheduler(t, DefaultScheduleConfig(), &fakeRunner{})
	ps := Presets()
	require.Len(t, ps, 6)
	for _, p := range ps {
		_, _, err := s.parse(p.Expression)
		assert.NoError(t, err, p.Name)
	}
}
