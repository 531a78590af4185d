// Package main is the entry point of the CF Progress Hub worker.
//
// The worker owns the whole pipeline in one process:
//   - the cron scheduler that triggers the nightly batch sync
//   - the batch runner that syncs every student from Codeforces
//   - inactivity detection and notifications after each sync
//   - the REST API for students, profiles, schedule and notifications
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/alem-hub/cf-progress-hub/config"
	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/application/query"
	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/external/codeforces"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/notifier"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/service"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/throttle"
	httpserver "github.com/alem-hub/cf-progress-hub/internal/interface/http"
	"github.com/alem-hub/cf-progress-hub/internal/interface/http/handlers"
	"github.com/alem-hub/cf-progress-hub/pkg/logger"
	"github.com/alem-hub/cf-progress-hub/pkg/retry"
	"github.com/alem-hub/cf-progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// storage groups the repositories the application layer needs.
type storage struct {
	students    student.Repository
	submissions activity.SubmissionRepository
	contests    activity.ContestRepository
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting CF Progress Hub worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"schedule", cfg.Scheduler.Expression,
		"timezone", cfg.Scheduler.Timezone,
	)

	m := metrics.New(metrics.WithRuntimeMetrics())

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE (PostgreSQL, or in-memory when no URL is configured)
	// ─────────────────────────────────────────────────────────────────────────
	var store storage
	if cfg.Database.URL != "" {
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()
		health.AddCheck("postgres", handlers.NewPingCheck(conn))
		health.AddCheck("schema", postgres.NewMigrator(conn).Check)

		store = storage{
			students:    postgres.NewStudentRepository(conn),
			submissions: postgres.NewSubmissionRepository(conn),
			contests:    postgres.NewContestRepository(conn),
		}
	} else {
		log.Warn("database.url is empty, using in-memory store; data is lost on restart")
		mem := memory.NewStore()
		store = storage{
			students:    mem.Students(),
			submissions: mem.Submissions(),
			contests:    mem.Contests(),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional: profile cache and cross-process locks)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		locker      command.Locker = memory.NewLocker()
		invalidator command.ProfileCacheInvalidator
		profiles    query.ProfileCache
	)
	if cfg.Redis.Addr != "" {
		cache, err := connectRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing redis connection...")
			_ = cache.Close()
		}()
		health.AddCheck("redis", handlers.NewPingCheck(cache))

		profileCache := redis.NewProfileCache(cache, cfg.Redis.ProfileTTL)
		invalidator = profileCache
		profiles = profileCache
		locker = redis.NewLocker(cache, cfg.Redis.LockTTL, log)
	} else {
		log.Info("redis.addr is empty, profile cache disabled and locks are in-process")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	cfConfig := codeforces.DefaultClientConfig()
	cfConfig.BaseURL = cfg.Codeforces.BaseURL
	cfConfig.Timeout = cfg.Codeforces.Timeout
	cfConfig.RequestsPerSecond = cfg.Codeforces.RequestsPerSecond
	cfConfig.Burst = cfg.Codeforces.Burst
	cfConfig.Breaker.MinRequests = cfg.Codeforces.BreakerMinRequests
	cfConfig.Breaker.FailureRatio = cfg.Codeforces.BreakerFailureRatio
	cfConfig.Breaker.Timeout = cfg.Codeforces.BreakerTimeout
	cfConfig.UserAgent = cfg.App.Name + "/" + cfg.App.Version

	cfClient := codeforces.NewClient(cfConfig,
		codeforces.WithLogger(log.With("component", "codeforces")),
		codeforces.WithMetrics(m),
	)
	upstream := service.NewCodeforcesAdapter(cfClient)

	router, err := setupNotifier(cfg, log)
	if err != nil {
		return err
	}
	log.Info("notification channels ready", "channels", router.Channels())

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	clock := command.Clock(timeutil.SystemClock)

	syncOpts := []command.SyncOption{
		command.WithSyncLocker(locker),
		command.WithSyncClock(clock),
		command.WithSyncLogger(log.With("component", "sync")),
		command.WithSyncMetrics(m),
	}
	if invalidator != nil {
		syncOpts = append(syncOpts, command.WithProfileCache(invalidator))
	}
	syncHandler := command.NewSyncStudentHandler(store.students, store.submissions, store.contests, upstream, syncOpts...)

	registerHandler := command.NewRegisterStudentHandler(store.students, upstream, syncHandler, router, clock, log, m)
	updateHandler := command.NewUpdateStudentHandler(store.students, upstream, syncHandler, invalidator, clock, log)
	notificationsHandler := command.NewNotificationsHandler(store.students, router, invalidator, clock, log, m)

	inactivity := query.NewInactivityHandler(store.submissions, timeutil.SystemClock)
	profileHandler := query.NewGetProfileHandler(store.students, store.submissions, store.contests, profiles, timeutil.SystemClock, log, m)
	listHandler := query.NewListStudentsHandler(store.students)
	statsHandler := query.NewNotificationStatsHandler(store.students, router.Channels())

	batchOpts := []command.BatchOption{
		command.WithBatchConfig(command.RunBatchConfig{InactivityWindowDays: cfg.Batch.InactivityWindowDays}),
		command.WithBatchLocker(locker),
		command.WithBatchClock(clock),
		command.WithBatchLogger(log.With("component", "batch")),
		command.WithBatchMetrics(m),
	}
	if invalidator != nil {
		batchOpts = append(batchOpts, command.WithBatchProfileCache(invalidator))
	}
	batch := command.NewRunBatchHandler(store.students, syncHandler, inactivity, router,
		throttle.FixedDelay(cfg.Batch.Delay), batchOpts...)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultScheduleConfig()
	schedConfig.Enabled = cfg.Scheduler.Enabled
	if cfg.Scheduler.Expression != "" {
		schedConfig.Expression = cfg.Scheduler.Expression
	}
	if cfg.Scheduler.Timezone != "" {
		schedConfig.Timezone = cfg.Scheduler.Timezone
	}
	sched, err := scheduler.New(schedConfig, batch,
		scheduler.WithLogger(log.With("component", "scheduler")),
		scheduler.WithClock(clock),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.HTTP.Addr
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.AdminTokenHash = cfg.HTTP.AdminTokenHash
	httpConfig.RateLimitPerSecond = cfg.HTTP.RateLimitPerSecond
	httpConfig.RateLimitBurst = cfg.HTTP.RateLimitBurst

	server, err := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Scheduler:         sched,
		SyncStudent:       syncHandler,
		GetProfile:        profileHandler,
		RegisterStudent:   registerHandler,
		EditStudent:       updateHandler,
		ListStudents:      listHandler,
		Notifications:     notificationsHandler,
		NotificationStats: statsHandler,
		HealthChecker:     health,
		Metrics:           m,
		Logger:            log.With("component", "http"),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}
	serverErr := server.StartAsync()

	if httpConfig.AdminTokenHash == "" {
		log.Warn("http.admin_token_hash is empty, mutating routes are unauthenticated")
	}
	log.Info("CF Progress Hub worker is running", "addr", httpConfig.Addr)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	// Stop waits for a running batch to finish.
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler shutdown failed", "error", err)
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging and installs it as the default.
func setupLogger(cfg *config.Config) *slog.Logger {
	format := logger.FormatText
	if cfg.IsProduction() {
		format = logger.FormatJSON
	}
	return logger.Setup(logger.Options{
		Level:  cfg.App.LogLevel,
		Format: format,
		Attrs: []slog.Attr{
			slog.String("service", cfg.App.Name),
		},
	})
}

// logRetry returns a retry callback that reports a failed connection attempt.
func logRetry(log *slog.Logger, what string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed, retrying",
			"target", what,
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err,
		)
	}
}

// connectPostgres waits for the database and brings the schema up to date.
func connectPostgres(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	log.Info("connecting to database...")
	pgConfig := postgres.DefaultConfig()
	pgConfig.URL = cfg.Database.URL
	pgConfig.MaxConns = cfg.Database.MaxConns
	pgConfig.MinConns = cfg.Database.MinConns

	backoff := retry.ConnectBackoff(cfg.Database.ConnectRetries, logRetry(log, "postgres"))
	conn, err := retry.Do(ctx, backoff, func(ctx context.Context) (*postgres.Connection, error) {
		// A malformed URL will not fix itself.
		if _, err := pgConfig.PoolConfig(); err != nil {
			return nil, retry.Permanent(err)
		}
		return postgres.NewConnection(ctx, pgConfig)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	applied, err := postgres.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date", "applied", applied)
	return conn, nil
}

// connectRedis waits for Redis.
func connectRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	log.Info("connecting to redis...", "addr", cfg.Redis.Addr)
	redisConfig := redis.DefaultConfig()
	redisConfig.Addr = cfg.Redis.Addr
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB

	backoff := retry.ConnectBackoff(cfg.Redis.ConnectRetries, logRetry(log, "redis"))
	cache, err := retry.Do(ctx, backoff, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, redisConfig)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return cache, nil
}

// setupNotifier builds the channel router. Email and Telegram join when
// configured; the log channel is always last so every student is reachable.
func setupNotifier(cfg *config.Config, log *slog.Logger) (*notifier.Router, error) {
	var senders []notification.ChannelSender

	smtpConfig := notifier.DefaultSMTPConfig()
	smtpConfig.Host = cfg.SMTP.Host
	smtpConfig.Port = cfg.SMTP.Port
	smtpConfig.Username = cfg.SMTP.Username
	smtpConfig.Password = cfg.SMTP.Password
	smtpConfig.From = cfg.SMTP.From
	smtpConfig.FromName = cfg.SMTP.FromName
	smtpConfig.StartTLS = cfg.SMTP.StartTLS
	if smtpConfig.Enabled() {
		email, err := notifier.NewEmailSender(smtpConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create email sender: %w", err)
		}
		senders = append(senders, email)
	}

	if cfg.Telegram.Token != "" {
		tg, err := notifier.NewTelegramSender(notifier.TelegramConfig{
			Token:  cfg.Telegram.Token,
			APIURL: cfg.Telegram.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram sender: %w", err)
		}
		senders = append(senders, tg)
	}

	senders = append(senders, notifier.NewLogSender(log.With("component", "notifications")))
	if len(senders) == 1 {
		log.Warn("no delivery channel configured, notifications are only logged")
	}

	return notifier.NewRouter(senders,
		notifier.WithWindowDays(cfg.Batch.InactivityWindowDays),
		notifier.WithRouterLogger(log.With("component", "notifier")),
	), nil
}
