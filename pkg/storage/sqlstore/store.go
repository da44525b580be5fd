package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Store implements the resident, tier, invoice and payment stores on
// PostgreSQL or SQLite
type Store struct {
	db      *sql.DB
	read    func() *sql.DB
	dialect dialect
	loc     *time.Location
	health  func(ctx context.Context) error
	closer  io.Closer
}

// Option configures a Store
type Option func(*Store)

// WithLocation anchors calendar dates (period and paid dates) read back from
// the database in loc. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithReader routes list queries to fn, typically ConnectionManager.Replica
func WithReader(fn func() *sql.DB) Option {
	return func(s *Store) { s.read = fn }
}

// New wraps an open database handle. The caller owns db unless the Store
// was created by Open.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	d, err := parseDialect(driver)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, dialect: d, loc: time.UTC}
	s.read = func() *sql.DB { return s.db }
	s.health = db.PingContext
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open connects using cfg, applies migrations and returns a Store that owns
// its connections
func Open(ctx context.Context, cfg ConnectionConfig, log logrus.FieldLogger, opts ...Option) (*Store, error) {
	if cfg.Driver == DriverSQLite || cfg.Driver == "sqlite" {
		cfg.PrimaryURL = sqliteDSN(cfg.PrimaryURL)
	}
	cm, err := NewConnectionManager(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	s, err := New(cm.Primary(), cfg.Driver, append([]Option{WithReader(cm.Replica)}, opts...)...)
	if err != nil {
		cm.Close()
		return nil, err
	}
	s.health = cm.HealthCheck
	s.closer = cm

	if err := s.Migrate(ctx); err != nil {
		cm.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off per connection
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// DB returns the primary handle, shared with the SQL audit recorder
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name
func (s *Store) Driver() string {
	return string(s.dialect)
}

// Ping checks the primary and, when configured, the read replicas
func (s *Store) Ping(ctx context.Context) error {
	return s.health(ctx)
}

// Stats returns pool statistics of the primary
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Close releases connections opened by Open; it is a no-op for New
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// RunInTx runs fn in a transaction, rolling back when fn fails or panics
func (s *Store) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var found int
	err := q.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// date keeps the calendar day of t and anchors it in the store location
func (s *Store) date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

func dateArg(t time.Time) string {
	return t.Format("2006-01-02")
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// where accumulates $N conditions in order
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) page(d dialect, limit, offset int) string {
	var b strings.Builder
	switch {
	case limit > 0:
		w.args = append(w.args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	case offset > 0 && d.isSQLite():
		// sqlite only accepts OFFSET after a LIMIT
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}
