package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/krama-desa/iuran/pkg/storage/memory"
	"github.com/krama-desa/iuran/pkg/storage/sqlstore"
	"github.com/sirupsen/logrus"
)

// Open returns the backend named by cfg.Driver. SQL backends are migrated
// before they are returned; loc anchors calendar dates read back from them.
func Open(ctx context.Context, cfg Config, loc *time.Location, log logrus.FieldLogger) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	case DriverPostgres, DriverSQLite, sqlstore.DriverSQLite:
		driver := sqlstore.DriverPostgres
		if cfg.Driver != DriverPostgres {
			driver = sqlstore.DriverSQLite
		}
		s, err := sqlstore.Open(ctx, sqlstore.ConnectionConfig{
			Driver:      driver,
			PrimaryURL:  cfg.URL,
			ReplicaURLs: cfg.ReplicaURLs,
			MaxConns:    cfg.MaxConns,
			MinConns:    cfg.MinConns,
			Timeout:     cfg.Timeout,
			MaxLifetime: cfg.MaxLifetime,
			MaxIdleTime: cfg.MaxIdleTime,
		}, log, sqlstore.WithLocation(loc))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}
