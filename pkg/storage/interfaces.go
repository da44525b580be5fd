package storage

import (
	"context"
	"time"

	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/tiers"
)

// Backend names accepted by Config.Driver
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is everything the engine persists
type Store interface {
	residents.Store
	tiers.Store
	billing.InvoiceStore
	billing.PaymentStore

	Ping(ctx context.Context) error
	Close() error
}

// Config for storage backend
type Config struct {
	Driver string `yaml:"driver"` // "memory", "postgres", "sqlite"

	// SQL config
	URL         string        `yaml:"url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`

	// Redis config; an empty URL keeps bulk previews in process memory
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		URL:             "file:iuran.db",
		MaxConns:        20,
		MinConns:        2,
		Timeout:         10 * time.Second,
		MaxLifetime:     time.Hour,
		MaxIdleTime:     10 * time.Minute,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
	}
}
