package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/krama-desa/iuran/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("IURAN_TEST_STRING", "custom")
	t.Setenv("IURAN_TEST_BOOL", "1")
	t.Setenv("IURAN_TEST_INT", "42")
	t.Setenv("IURAN_TEST_INT64", "9223372036854775807")
	t.Setenv("IURAN_TEST_FLOAT", "0.25")
	t.Setenv("IURAN_TEST_DURATION", "90s")
	t.Setenv("IURAN_TEST_BAD", "not-a-number")

	assert.Equal(t, "custom", getEnv("IURAN_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("IURAN_TEST_UNSET", "default"))

	assert.True(t, getEnvBool("IURAN_TEST_BOOL", false))
	assert.False(t, getEnvBool("IURAN_TEST_BAD", true))
	assert.True(t, getEnvBool("IURAN_TEST_UNSET", true))

	assert.Equal(t, 42, getEnvInt("IURAN_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("IURAN_TEST_BAD", 1))

	assert.Equal(t, int64(9223372036854775807), getEnvInt64("IURAN_TEST_INT64", 0))
	assert.Equal(t, int64(7), getEnvInt64("IURAN_TEST_BAD", 7))

	assert.Equal(t, 0.25, getEnvFloat("IURAN_TEST_FLOAT", 1))
	assert.Equal(t, 1.0, getEnvFloat("IURAN_TEST_BAD", 1))

	assert.Equal(t, 90*time.Second, getEnvDuration("IURAN_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("IURAN_TEST_BAD", time.Second))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "Asia/Makassar", cfg.Billing.Timezone)
	assert.Equal(t, "0 6 1 * *", cfg.Scheduler.Schedule)
	assert.Equal(t, "info", cfg.Observability.LogLevel)

	loc, err := cfg.Billing.Location()
	require.NoError(t, err)
	_, offset := time.Date(2025, 3, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 8*3600, offset)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("IURAN_PORT", "8181")
	t.Setenv("IURAN_HEALTH_PORT", "9191")
	t.Setenv("IURAN_STORAGE_DRIVER", "postgres")
	t.Setenv("IURAN_DATABASE_URL", "postgres://localhost/iuran?sslmode=disable")
	t.Setenv("IURAN_DATABASE_REPLICA_URLS", "postgres://r1/iuran, postgres://r2/iuran")
	t.Setenv("IURAN_DATABASE_MAX_CONNS", "50")
	t.Setenv("IURAN_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("IURAN_BILLING_TIMEZONE", "Asia/Jakarta")
	t.Setenv("IURAN_PREVIEW_TTL", "15m")
	t.Setenv("IURAN_SCHEDULE", "30 5 1 * *")
	t.Setenv("IURAN_SCHEDULER_ACTOR_ID", "3")
	t.Setenv("IURAN_SCHEDULER_PETURUNAN", "5000")
	t.Setenv("IURAN_LOG_LEVEL", "debug")
	t.Setenv("IURAN_OTEL_ENABLED", "true")
	t.Setenv("IURAN_OTEL_SAMPLE_RATIO", "0.1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, "9191", cfg.Server.HealthPort)
	assert.Equal(t, storage.DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, []string{"postgres://r1/iuran", "postgres://r2/iuran"}, cfg.Storage.ReplicaURLs)
	assert.Equal(t, 50, cfg.Storage.MaxConns)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Storage.RedisURL)
	assert.Equal(t, "Asia/Jakarta", cfg.Billing.Timezone)
	assert.Equal(t, 15*time.Minute, cfg.Billing.PreviewTTL)
	assert.Equal(t, "30 5 1 * *", cfg.Scheduler.Schedule)
	assert.Equal(t, int64(3), cfg.Scheduler.ActorID)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, 0.1, cfg.Observability.OTelSampleRatio)

	peturunan, dedosan, err := cfg.Scheduler.Surcharges()
	require.NoError(t, err)
	assert.Equal(t, "5000", peturunan.String())
	assert.True(t, dedosan.IsZero())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iuran.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
storage:
  driver: memory
billing:
  timezone: Asia/Jayapura
  preview_ttl: 30m
scheduler:
  schedule: "0 0 1 * *"
  dedosan: "2500"
`), 0o600))

	t.Setenv("IURAN_CONFIG_FILE", path)

	t.Run("file overlays defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "7000", cfg.Server.Port)
		assert.Equal(t, "9090", cfg.Server.HealthPort)
		assert.Equal(t, storage.DriverMemory, cfg.Storage.Driver)
		assert.Equal(t, "Asia/Jayapura", cfg.Billing.Timezone)
		assert.Equal(t, 30*time.Minute, cfg.Billing.PreviewTTL)
		assert.Equal(t, 64, cfg.Billing.PreviewCacheSize)
		assert.Equal(t, "2500", cfg.Scheduler.Dedosan)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("IURAN_PORT", "7001")
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "7001", cfg.Server.Port)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("IURAN_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("server: [unterminated"), 0o600))
		t.Setenv("IURAN_CONFIG_FILE", bad)
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("IURAN_PORT=8282\nIURAN_LOG_FORMAT=text\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("IURAN_LOG_FORMAT", "json")
	t.Cleanup(func() { os.Unsetenv("IURAN_PORT") })

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8282", cfg.Server.Port)
	assert.Equal(t, "json", cfg.Observability.LogFormat, "existing environment wins over .env")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "missing health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "" },
			wantErr: "health port is required",
		},
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "must be different",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Server.RateLimit = -1 },
			wantErr: "rate limit must not be negative",
		},
		{
			name:    "rate limit without window",
			mutate:  func(c *Config) { c.Server.RateLimitWindow = 0 },
			wantErr: "rate limit window must be positive",
		},
		{
			name: "rate limit disabled",
			mutate: func(c *Config) {
				c.Server.RateLimit = 0
				c.Server.RateLimitWindow = 0
			},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mongo" },
			wantErr: "invalid storage driver: mongo",
		},
		{
			name: "postgres without url",
			mutate: func(c *Config) {
				c.Storage.Driver = storage.DriverPostgres
				c.Storage.URL = ""
			},
			wantErr: "database URL is required for postgres storage",
		},
		{
			name: "memory without url",
			mutate: func(c *Config) {
				c.Storage.Driver = storage.DriverMemory
				c.Storage.URL = ""
			},
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Billing.Timezone = "Mars/Olympus" },
			wantErr: "invalid billing timezone",
		},
		{
			name:    "zero preview ttl",
			mutate:  func(c *Config) { c.Billing.PreviewTTL = 0 },
			wantErr: "preview TTL must be positive",
		},
		{
			name:    "zero preview cache",
			mutate:  func(c *Config) { c.Billing.PreviewCacheSize = 0 },
			wantErr: "preview cache size must be positive",
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Scheduler.Schedule = "every month" },
			wantErr: "invalid scheduler schedule",
		},
		{
			name:   "empty schedule",
			mutate: func(c *Config) { c.Scheduler.Schedule = "" },
		},
		{
			name:    "negative surcharge",
			mutate:  func(c *Config) { c.Scheduler.Dedosan = "-100" },
			wantErr: "invalid scheduler dedosan",
		},
		{
			name:    "malformed surcharge",
			mutate:  func(c *Config) { c.Scheduler.Peturunan = "lima ribu" },
			wantErr: "invalid scheduler peturunan",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "OpenTelemetry endpoint is required",
		},
		{
			name: "otel without service name",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = ""
			},
			wantErr: "OpenTelemetry service name is required",
		},
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
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("IURAN_STORAGE_DRIVER", "cassandra")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
