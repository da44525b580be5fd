// Package app assembles the dues engine from configuration. Both the API
// server and the bulk billing scheduler start from New.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/krama-desa/iuran/pkg/api"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/config"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/storage"
	"github.com/krama-desa/iuran/pkg/storage/sqlstore"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// rateLimitKeys bounds the actors tracked by the in-process rate limiter
const rateLimitKeys = 10000

// App holds the wired services and the resources they own
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Location *time.Location

	Store    storage.Store
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Trail    *audit.Trail

	Resolver  *tiers.Resolver
	Residents *residents.Service
	Tiers     *tiers.Service
	Generator *billing.Generator
	Ledger    *billing.Ledger

	recorder audit.Recorder
}

// New opens storage and redis and wires every service. On error, whatever
// was opened is closed again.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (_ *App, err error) {
	loc, err := cfg.Billing.Location()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Location: loc}
	defer func() {
		if err != nil {
			if closeErr := a.Close(); closeErr != nil {
				log.WithError(closeErr).Warn("cleanup after failed start")
			}
		}
	}()

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = observability.NewMetrics(a.Registry)

	if a.Store, err = storage.Open(ctx, cfg.Storage, loc, log); err != nil {
		return nil, err
	}
	if a.Redis, err = storage.NewRedisClient(ctx, cfg.Storage); err != nil {
		return nil, err
	}

	if a.recorder, err = a.auditRecorder(); err != nil {
		return nil, err
	}
	a.Trail = audit.NewTrail(a.recorder, log, audit.WithFailureHook(func(entry *audit.Entry, _ error) {
		a.Metrics.AuditFailure(string(entry.TargetType))
	}))

	a.Resolver = tiers.NewResolver(a.Store, cfg.Billing.TierCacheSize, cfg.Billing.TierCacheTTL, a.Metrics)
	a.Residents = residents.NewService(a.Store, a.Trail, log, residents.WithMetrics(a.Metrics))
	a.Tiers = tiers.NewService(a.Store, a.Resolver, a.Trail, log, nil)

	deps := billing.Deps{
		Invoices:  a.Store,
		Payments:  a.Store,
		Directory: residents.NewDirectory(a.Store),
		Fees:      a.Resolver,
		Previews:  a.previewCache(),
		Trail:     a.Trail,
		Logger:    log,
		Metrics:   a.Metrics,
		Location:  loc,
	}
	if a.Generator, err = billing.NewGenerator(deps); err != nil {
		return nil, err
	}
	if a.Ledger, err = billing.NewLedger(deps); err != nil {
		return nil, err
	}
	return a, nil
}

// auditRecorder logs every entry and, on SQL storage, also appends it to
// the audit_logs table next to the data it describes.
func (a *App) auditRecorder() (audit.Recorder, error) {
	logRecorder := audit.NewLogRecorder(a.Log)
	sqlStore, ok := a.Store.(*sqlstore.Store)
	if !ok {
		return logRecorder, nil
	}
	dbRecorder, err := audit.NewDBRecorder(sqlStore.DB(), sqlStore.Driver())
	if err != nil {
		return nil, fmt.Errorf("failed to create audit recorder: %w", err)
	}
	return audit.NewMultiRecorder(dbRecorder, logRecorder), nil
}

func (a *App) previewCache() billing.PreviewCache {
	b := a.Config.Billing
	if a.Redis != nil {
		a.Log.Info("bulk previews stored in redis")
		return billing.NewRedisPreviewCache(a.Redis, b.PreviewKeyPrefix, b.PreviewTTL)
	}
	return billing.NewMemoryPreviewCache(b.PreviewCacheSize, b.PreviewTTL)
}

// Handler returns the API
func (a *App) Handler() http.Handler {
	return api.NewServer(api.Deps{
		Residents:   a.Residents,
		Tiers:       a.Tiers,
		Generator:   a.Generator,
		Ledger:      a.Ledger,
		Logger:      a.Log,
		Metrics:     a.Metrics,
		RateLimiter: a.rateLimiter(),
		Location:    a.Location,
	})
}

// rateLimiter shares counters through redis when it is configured
func (a *App) rateLimiter() api.RateLimiter {
	s := a.Config.Server
	if s.RateLimit <= 0 {
		return nil
	}
	limits := api.RateLimitConfig{RequestsPerWindow: s.RateLimit, WindowDuration: s.RateLimitWindow}
	if a.Redis != nil {
		return api.NewRedisRateLimiter(a.Redis, limits, "iuran:ratelimit:")
	}
	return api.NewMemoryRateLimiter(limits, rateLimitKeys, nil)
}

// HealthChecker reports storage and redis health
func (a *App) HealthChecker(version string) *observability.HealthChecker {
	return observability.NewHealthChecker(a.Store, a.Redis, version)
}

// DBStats returns connection pool statistics when storage is SQL
func (a *App) DBStats() (sql.DBStats, bool) {
	if s, ok := a.Store.(*sqlstore.Store); ok {
		return s.Stats(), true
	}
	return sql.DBStats{}, false
}

// Close releases redis, the audit sinks and storage, in that order
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.Trail != nil {
		if err := a.Trail.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
