// Package config loads the worker configuration. Sources are layered from
// low to high precedence: built-in defaults, an optional YAML file named by
// CFHUB_CONFIG, then CFHUB_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

const (
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "CFHUB_"

	// FileEnvVar names the YAML file to load.
	FileEnvVar = "CFHUB_CONFIG"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `koanf:"app"`
	HTTP       HTTPConfig       `koanf:"http"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Codeforces CodeforcesConfig `koanf:"codeforces"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Batch      BatchConfig      `koanf:"batch"`
	SMTP       SMTPConfig       `koanf:"smtp"`
	Telegram   TelegramConfig   `koanf:"telegram"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `koanf:"name"`
	Environment Environment `koanf:"env"`
	Version     string      `koanf:"version"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig holds the REST API settings.
type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// AdminTokenHash is the bcrypt hash of the admin bearer token. Empty
	// leaves mutating routes open.
	AdminTokenHash string `koanf:"admin_token_hash"`

	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`

	// ConnectRetries bounds the startup wait for the database.
	ConnectRetries int `koanf:"connect_retries"`
}

// RedisConfig holds Redis settings. An empty Addr disables the profile
// cache and selects the in-process locker.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	ProfileTTL time.Duration `koanf:"profile_ttl"`
	LockTTL    time.Duration `koanf:"lock_ttl"`

	ConnectRetries int `koanf:"connect_retries"`
}

// CodeforcesConfig holds the upstream API settings.
type CodeforcesConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`

	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
}

// SchedulerConfig holds the batch trigger.
type SchedulerConfig struct {
	Expression string `koanf:"expression"`
	Enabled    bool   `koanf:"enabled"`
	Timezone   string `koanf:"timezone"`
}

// BatchConfig holds batch pacing and inactivity settings.
type BatchConfig struct {
	// Delay is the pause between two students.
	Delay time.Duration `koanf:"delay"`

	InactivityWindowDays int `koanf:"inactivity_window_days"`
}

// SMTPConfig holds the email channel. An empty Host disables it.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
	StartTLS bool   `koanf:"starttls"`
}

// TelegramConfig holds the Telegram channel. An empty Token disables it.
type TelegramConfig struct {
	Token  string `koanf:"token"`
	APIURL string `koanf:"api_url"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "cf-progress-hub",
			Environment:     EnvDevelopment,
			Version:         "dev",
			LogLevel:        "info",
			ShutdownTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:               ":8080",
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       10 * time.Minute,
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
		},
		Database: DatabaseConfig{
			MaxConns:       10,
			MinConns:       1,
			ConnectRetries: 5,
		},
		Redis: RedisConfig{
			ProfileTTL:     10 * time.Minute,
			LockTTL:        2 * time.Minute,
			ConnectRetries: 5,
		},
		Codeforces: CodeforcesConfig{
			BaseURL:             "https://codeforces.com/api",
			Timeout:             30 * time.Second,
			RequestsPerSecond:   0.5,
			Burst:               1,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
			BreakerTimeout:      2 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Expression: "0 2 * * *",
			Enabled:    true,
			Timezone:   "UTC",
		},
		Batch: BatchConfig{
			Delay:                time.Second,
			InactivityWindowDays: 7,
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "CF Progress Hub",
			StartTLS: true,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load builds a Config from defaults, the optional file and the environment,
// then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envKey maps CFHUB_SECTION_FIELD_NAME to section.field_name. The first
// segment after the prefix names the section.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + field
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("app.env %q must be development, staging or production", c.App.Environment))
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("app.log_level %q is not a level", c.App.LogLevel))
	}

	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr must not be empty")
	}
	if c.HTTP.AdminTokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.HTTP.AdminTokenHash)); err != nil {
			errs = append(errs, "http.admin_token_hash must be a bcrypt hash")
		}
	}

	if c.App.Environment == EnvProduction && c.Database.URL == "" {
		errs = append(errs, "database.url is required in production")
	}
	if c.Database.MaxConns < 1 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "database pool sizes must satisfy 0 <= min_conns <= max_conns, max_conns >= 1")
	}

	if c.Redis.Addr != "" && (c.Redis.ProfileTTL <= 0 || c.Redis.LockTTL <= 0) {
		errs = append(errs, "redis.profile_ttl and redis.lock_ttl must be positive")
	}

	if c.Codeforces.BaseURL == "" {
		errs = append(errs, "codeforces.base_url must not be empty")
	}
	if c.Codeforces.RequestsPerSecond <= 0 || c.Codeforces.Burst < 1 {
		errs = append(errs, "codeforces.requests_per_second must be positive and codeforces.burst at least 1")
	}
	if c.Codeforces.BreakerFailureRatio <= 0 || c.Codeforces.BreakerFailureRatio > 1 {
		errs = append(errs, "codeforces.breaker_failure_ratio must be in (0, 1]")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Scheduler.Expression); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler.expression %q: %v", c.Scheduler.Expression, err))
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("scheduler.timezone %q is unknown", c.Scheduler.Timezone))
		}
	}

	if c.Batch.Delay < 0 {
		errs = append(errs, "batch.delay must not be negative")
	}
	if c.Batch.InactivityWindowDays < 1 {
		errs = append(errs, "batch.inactivity_window_days must be at least 1")
	}

	if c.SMTP.Host != "" && (c.SMTP.Port <= 0 || c.SMTP.From == "") {
		errs = append(errs, "smtp.port and smtp.from are required when smtp.host is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
