package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Postgres error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type dialect string

func parseDialect(driver string) (dialect, error) {
	switch driver {
	case DriverPostgres:
		return dialect(DriverPostgres), nil
	case DriverSQLite, "sqlite":
		return dialect(DriverSQLite), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

func (d dialect) isSQLite() bool {
	return d == DriverSQLite
}

// rebind rewrites $N placeholders to ? for sqlite. Queries in this package
// use every placeholder once and in ascending order.
func (d dialect) rebind(query string) string {
	if !d.isSQLite() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// isUniqueViolation reports a unique constraint failure; constraint is the
// postgres constraint name or the sqlite message, used to tell indexes apart.
func isUniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint, pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Error(), liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return "", false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
