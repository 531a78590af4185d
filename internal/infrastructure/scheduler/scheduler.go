// Package scheduler fires the batch sync on a cron schedule. It holds
// exactly one schedule that can be inspected and reconfigured at runtime.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidExpression is returned for a cron expression the parser rejects.
	ErrInvalidExpression = shared.NewDomainError("schedule", "Parse", shared.ErrInvalidArgument, "invalid cron expression")

	// ErrInvalidTimezone is returned for an unknown IANA zone name.
	ErrInvalidTimezone = shared.NewDomainError("schedule", "Parse", shared.ErrInvalidArgument, "invalid timezone")

	// ErrSchedulerAlreadyRunning is returned by a second Start.
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultExpression fires every day at 02:00.
const DefaultExpression = "0 2 * * *"

// ScheduleConfig is the single active trigger.
type ScheduleConfig struct {
	// Expression is a 5-field cron expression or a descriptor such as
	// "@daily" or "@every 1h".
	Expression string

	Enabled bool

	// Timezone is an IANA zone name; empty means UTC.
	Timezone string
}

// DefaultScheduleConfig returns the daily 02:00 UTC schedule.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Expression: DefaultExpression,
		Enabled:    true,
		Timezone:   "UTC",
	}
}

// BatchRunner runs one batch sync.
type BatchRunner interface {
	Handle(ctx context.Context) (*command.BatchOutcome, error)
	IsRunning() bool
	LastOutcome() *command.BatchOutcome
}

// ScheduleStatus is a snapshot of the scheduler.
type ScheduleStatus struct {
	Expression string     `json:"expression"`
	Enabled    bool       `json:"enabled"`
	Timezone   string     `json:"timezone"`
	LastRun    *time.Time `json:"last_run"`
	NextRun    *time.Time `json:"next_run"`

	// Running reports whether a batch is in progress right now.
	Running bool `json:"running"`

	// Started reports whether the trigger loop is active.
	Started bool `json:"started"`

	Uptime      string                `json:"uptime"`
	LastOutcome *command.BatchOutcome `json:"last_outcome"`
}

// ReconfigureRequest is a partial update. Nil fields are left unchanged.
type ReconfigureRequest struct {
	Expression *string `json:"expression,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// Preset is a predefined schedule option.
type Preset struct {
	Name        string `json:"name"`
	Expression  string `json:"expression"`
	Description string `json:"description"`
}

var presets = []Preset{
	{Name: "daily_2am", Expression: "0 2 * * *", Description: "Every day at 2:00 AM"},
	{Name: "daily_3am", Expression: "0 3 * * *", Description: "Every day at 3:00 AM"},
	{Name: "daily_4am", Expression: "0 4 * * *", Description: "Every day at 4:00 AM"},
	{Name: "every_6h", Expression: "0 */6 * * *", Description: "Every 6 hours"},
	{Name: "every_12h", Expression: "0 */12 * * *", Description: "Every 12 hours"},
	{Name: "every_minute", Expression: "* * * * *", Description: "Every minute (testing only)"},
}

// Presets returns the predefined schedule options.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler fires the batch runner on the configured schedule.
type Scheduler struct {
	mu sync.Mutex

	cfg      ScheduleConfig
	loc      *time.Location
	parser   cron.Parser
	schedule cron.Schedule

	runner BatchRunner
	clock  func() time.Time
	logger *slog.Logger

	c         *cron.Cron
	entryID   cron.EntryID
	ctx       context.Context
	started   bool
	startedAt time.Time
	lastRun   *time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithClock injects the time source used for LastRun and NextRun.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler. The configuration is validated up front.
func New(cfg ScheduleConfig, runner BatchRunner, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		runner: runner,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	sched, expr, err := s.parse(cfg.Expression)
	if err != nil {
		return nil, err
	}

	cfg.Expression = expr
	cfg.Timezone = loc.String()
	s.cfg, s.loc, s.schedule = cfg, loc, sched
	return s, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, name, err)
	}
	return loc, nil
}

func (s *Scheduler) parse(expr string) (cron.Schedule, string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, "", fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	return sched, expr, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start installs the trigger (when enabled) and starts the cron loop. Fires
// run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSchedulerAlreadyRunning
	}

	s.ctx = ctx
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	if s.cfg.Enabled {
		s.installLocked()
	}
	s.c.Start()
	s.started = true
	s.startedAt = s.clock()

	s.logger.Info("scheduler started",
		"expression", s.cfg.Expression,
		"enabled", s.cfg.Enabled,
		"tz", s.loc.String(),
	)
	return nil
}

// Stop removes the trigger and waits for an in-flight fire to finish or
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	done := s.c.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out waiting for running batch")
		return ctx.Err()
	}
}

func (s *Scheduler) installLocked() {
	s.entryID = s.c.Schedule(s.schedule, cron.FuncJob(s.fire))
}

func (s *Scheduler) uninstallLocked() {
	if s.entryID != 0 {
		s.c.Remove(s.entryID)
		s.entryID = 0
	}
}

// fire is the cron callback.
func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	now := s.clock().UTC()
	s.lastRun = &now
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := s.runner.Handle(ctx)
	switch {
	case errors.Is(err, command.ErrBatchInProgress):
		s.logger.Warn("scheduled batch skipped: previous run still in progress")
	case err != nil:
		s.logger.Error("scheduled batch failed", "error", err)
	default:
		s.logger.Info("scheduled batch completed",
			"run_id", outcome.RunID,
			"succeeded", outcome.Succeeded,
			"failed", outcome.Failed,
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & RECONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() ScheduleStatus {
	now := s.clock()
	st := ScheduleStatus{
		Expression: s.cfg.Expression,
		Enabled:    s.cfg.Enabled,
		Timezone:   s.loc.String(),
		Started:    s.started,
	}
	if s.lastRun != nil {
		t := *s.lastRun
		st.LastRun = &t
	}
	if s.cfg.Enabled {
		next := s.schedule.Next(now.In(s.loc)).UTC()
		st.NextRun = &next
	}
	if s.started {
		st.Uptime = now.Sub(s.startedAt).Truncate(time.Second).String()
	}
	if s.runner != nil {
		st.Running = s.runner.IsRunning()
		st.LastOutcome = s.runner.LastOutcome()
	}
	return st
}

// Reconfigure validates and applies a partial update. On error nothing
// changes. Disabling prevents future fires only; a running batch continues.
func (s *Scheduler) Reconfigure(req ReconfigureRequest) (ScheduleStatus, error) {
	var (
		sched cron.Schedule
		expr  string
	)
	if req.Expression != nil {
		var err error
		sched, expr, err = s.parse(*req.Expression)
		if err != nil {
			return ScheduleStatus{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sched != nil {
		s.schedule = sched
		s.cfg.Expression = expr
	}
	if req.Enabled != nil {
		s.cfg.Enabled = *req.Enabled
	}

	if s.started {
		s.uninstallLocked()
		if s.cfg.Enabled {
			s.installLocked()
		}
	}

	s.logger.Info("schedule reconfigured",
		"expression", s.cfg.Expression,
		"enabled", s.cfg.Enabled,
	)
	return s.statusLocked(), nil
}

// TriggerNow runs the batch immediately, subject to the single-flight guard.
func (s *Scheduler) TriggerNow(ctx context.Context) (*command.BatchOutcome, error) {
	s.mu.Lock()
	now := s.clock().UTC()
	s.lastRun = &now
	s.mu.Unlock()

	s.logger.Info("manual batch triggered")
	return s.runner.Handle(ctx)
}
