package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/krama-desa/iuran/pkg/storage"
	"github.com/krama-desa/iuran/pkg/storage/sqlstore"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Billing       BillingConfig       `yaml:"billing"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// RateLimit caps API requests per actor per RateLimitWindow; 0 disables it
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// BillingConfig holds the billing engine settings
type BillingConfig struct {
	// Timezone is the IANA zone whose calendar months are billing periods
	Timezone         string        `yaml:"timezone"`
	PreviewTTL       time.Duration `yaml:"preview_ttl"`
	PreviewCacheSize int           `yaml:"preview_cache_size"`
	PreviewKeyPrefix string        `yaml:"preview_key_prefix"`
	TierCacheSize    int           `yaml:"tier_cache_size"`
	TierCacheTTL     time.Duration `yaml:"tier_cache_ttl"`
}

// Location loads the billing time zone
func (b BillingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid billing timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// SchedulerConfig drives the periodic bulk billing trigger
type SchedulerConfig struct {
	// Schedule is a standard five-field cron spec evaluated in the billing zone
	Schedule  string `yaml:"schedule"`
	ActorID   int64  `yaml:"actor_id"`
	ActorName string `yaml:"actor_name"`
	Peturunan string `yaml:"peturunan"`
	Dedosan   string `yaml:"dedosan"`
}

// Surcharges parses the per-line surcharges applied by scheduled runs
func (s SchedulerConfig) Surcharges() (peturunan, dedosan decimal.Decimal, err error) {
	if peturunan, err = parseAmount(s.Peturunan); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid scheduler peturunan: %w", err)
	}
	if dedosan, err = parseAmount(s.Dedosan); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid scheduler dedosan: %w", err)
	}
	return peturunan, dedosan, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must not be negative")
	}
	return d, nil
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			RateLimit:       600,
			RateLimitWindow: time.Minute,
		},
		Storage: storage.DefaultConfig(),
		Billing: BillingConfig{
			Timezone:         "Asia/Makassar",
			PreviewTTL:       time.Hour,
			PreviewCacheSize: 64,
			PreviewKeyPrefix: "iuran:preview:",
			TierCacheSize:    256,
			TierCacheTTL:     5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Schedule:  "0 6 1 * *",
			ActorName: "bulk-scheduler",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "iuran",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by IURAN_CONFIG_FILE, then IURAN_* environment variables. A .env file in
// the working directory is loaded first without overriding the environment.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()
	if path := os.Getenv("IURAN_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("IURAN_HOST", s.Host)
	s.Port = getEnv("IURAN_PORT", s.Port)
	s.HealthPort = getEnv("IURAN_HEALTH_PORT", s.HealthPort)
	s.ReadTimeout = getEnvDuration("IURAN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("IURAN_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("IURAN_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("IURAN_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.RateLimit = getEnvInt("IURAN_RATE_LIMIT", s.RateLimit)
	s.RateLimitWindow = getEnvDuration("IURAN_RATE_LIMIT_WINDOW", s.RateLimitWindow)

	st := &c.Storage
	st.Driver = getEnv("IURAN_STORAGE_DRIVER", st.Driver)
	st.URL = getEnv("IURAN_DATABASE_URL", st.URL)
	if replicas := os.Getenv("IURAN_DATABASE_REPLICA_URLS"); replicas != "" {
		st.ReplicaURLs = sqlstore.ParseReplicaURLs(replicas)
	}
	st.MaxConns = getEnvInt("IURAN_DATABASE_MAX_CONNS", st.MaxConns)
	st.MinConns = getEnvInt("IURAN_DATABASE_MIN_CONNS", st.MinConns)
	st.Timeout = getEnvDuration("IURAN_DATABASE_TIMEOUT", st.Timeout)
	st.RedisURL = getEnv("IURAN_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("IURAN_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("IURAN_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("IURAN_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("IURAN_REDIS_POOL_SIZE", st.RedisPoolSize)

	b := &c.Billing
	b.Timezone = getEnv("IURAN_BILLING_TIMEZONE", b.Timezone)
	b.PreviewTTL = getEnvDuration("IURAN_PREVIEW_TTL", b.PreviewTTL)
	b.PreviewCacheSize = getEnvInt("IURAN_PREVIEW_CACHE_SIZE", b.PreviewCacheSize)
	b.TierCacheSize = getEnvInt("IURAN_TIER_CACHE_SIZE", b.TierCacheSize)
	b.TierCacheTTL = getEnvDuration("IURAN_TIER_CACHE_TTL", b.TierCacheTTL)

	sc := &c.Scheduler
	sc.Schedule = getEnv("IURAN_SCHEDULE", sc.Schedule)
	sc.ActorID = getEnvInt64("IURAN_SCHEDULER_ACTOR_ID", sc.ActorID)
	sc.ActorName = getEnv("IURAN_SCHEDULER_ACTOR_NAME", sc.ActorName)
	sc.Peturunan = getEnv("IURAN_SCHEDULER_PETURUNAN", sc.Peturunan)
	sc.Dedosan = getEnv("IURAN_SCHEDULER_DEDOSAN", sc.Dedosan)

	o := &c.Observability
	o.LogLevel = getEnv("IURAN_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("IURAN_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("IURAN_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("IURAN_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("IURAN_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("IURAN_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("IURAN_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("IURAN_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("IURAN_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	switch c.Storage.Driver {
	case storage.DriverMemory:
	case storage.DriverPostgres, storage.DriverSQLite:
		if c.Storage.URL == "" {
			return fmt.Errorf("database URL is required for %s storage", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be memory, postgres, or sqlite)", c.Storage.Driver)
	}

	if _, err := c.Billing.Location(); err != nil {
		return err
	}
	if c.Billing.PreviewTTL <= 0 {
		return fmt.Errorf("preview TTL must be positive")
	}
	if c.Billing.PreviewCacheSize <= 0 {
		return fmt.Errorf("preview cache size must be positive")
	}

	if c.Scheduler.Schedule != "" {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler schedule %q: %w", c.Scheduler.Schedule, err)
		}
	}
	if _, _, err := c.Scheduler.Surcharges(); err != nil {
		return err
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
