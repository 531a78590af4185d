package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.Expression)
	assert.Equal(t, 7, cfg.Batch.InactivityWindowDays)
	assert.Equal(t, time.Second, cfg.Batch.Delay)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv(FileEnvVar, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "https://codeforces.com/api", cfg.Codeforces.BaseURL)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(FileEnvVar, "")
	t.Setenv("CFHUB_HTTP_ADDR", ":9090")
	t.Setenv("CFHUB_SCHEDULER_EXPRESSION", "0 */6 * * *")
	t.Setenv("CFHUB_SCHEDULER_ENABLED", "false")
	t.Setenv("CFHUB_BATCH_DELAY", "250ms")
	t.Setenv("CFHUB_BATCH_INACTIVITY_WINDOW_DAYS", "14")
	t.Setenv("CFHUB_DATABASE_MAX_CONNS", "20")
	t.Setenv("CFHUB_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "0 */6 * * *", cfg.Scheduler.Expression)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Delay)
	assert.Equal(t, 14, cfg.Batch.InactivityWindowDays)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Minute, cfg.Redis.ProfileTTL)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: staging
  log_level: debug
smtp:
  host: smtp.example.com
  from: tracker@example.com
scheduler:
  expression: "@daily"
`), 0o600))

	t.Setenv(FileEnvVar, path)
	t.Setenv("CFHUB_APP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "@daily", cfg.Scheduler.Expression)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(FileEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("token"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid admin hash", func(c *Config) { c.HTTP.AdminTokenHash = string(hash) }, ""},
		{"plain admin token", func(c *Config) { c.HTTP.AdminTokenHash = "token" }, "admin_token_hash"},
		{"bad cron", func(c *Config) { c.Scheduler.Expression = "61 * * * *" }, "scheduler.expression"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Nowhere/City" }, "scheduler.timezone"},
		{"zero window", func(c *Config) { c.Batch.InactivityWindowDays = 0 }, "inactivity_window_days"},
		{"production without db", func(c *Config) { c.App.Environment = EnvProduction }, "database.url"},
		{"unknown env", func(c *Config) { c.App.Environment = "qa" }, "app.env"},
		{"smtp without from", func(c *Config) { c.SMTP.Host = "smtp.example.com" }, "smtp.from"},
		{"bad level", func(c *Config) { c.App.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "http.admin_token_hash", envKey("CFHUB_HTTP_ADMIN_TOKEN_HASH"))
	assert.Equal(t, "redis.addr", envKey("CFHUB_REDIS_ADDR"))
	assert.Equal(t, "config", envKey("CFHUB_CONFIG"))
}
