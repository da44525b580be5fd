package sqlstore

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite3", "sqlite"} {
		_, err := parseDialect(driver)
		assert.NoError(t, err, driver)
	}
	_, err := parseDialect("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		sqlite string
	}{
		{"no placeholders", "SELECT 1", "SELECT 1"},
		{"ordered", "SELECT * FROM t WHERE a = $1 AND b = $2", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"multi digit", "VALUES ($9, $10, $11)", "VALUES (?, ?, ?)"},
		{"lone dollar", "SELECT '$' || $1", "SELECT '$' || ?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sqlite, dialect(DriverSQLite).rebind(tt.in))
			assert.Equal(t, tt.in, dialect(DriverPostgres).rebind(tt.in))
		})
	}
}

func TestWhere(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		w := &where{}
		assert.Equal(t, "", w.String())
		assert.Equal(t, "", w.page(DriverPostgres, 0, 0))
	})

	t.Run("conditions then page", func(t *testing.T) {
		w := &where{}
		w.add("status = ?", "APPROVED")
		w.add("tier_id = ?", int64(3))
		assert.Equal(t, " WHERE status = $1 AND tier_id = $2", w.String())
		assert.Equal(t, " LIMIT $3 OFFSET $4", w.page(DriverPostgres, 10, 20))
		assert.Equal(t, []any{"APPROVED", int64(3), 10, 20}, w.args)
	})

	t.Run("sqlite offset without limit", func(t *testing.T) {
		w := &where{}
		assert.Equal(t, " LIMIT -1 OFFSET $1", w.page(DriverSQLite, 0, 5))
		w = &where{}
		assert.Equal(t, " OFFSET $1", w.page(DriverPostgres, 0, 5))
	})
}

func TestConstraintViolations(t *testing.T) {
	t.Run("postgres unique", func(t *testing.T) {
		c, ok := isUniqueViolation(&pq.Error{Code: "23505", Constraint: bulkPeriodKey})
		require.True(t, ok)
		assert.True(t, isBulkPeriodViolation(c))
	})

	t.Run("postgres foreign key", func(t *testing.T) {
		assert.True(t, isForeignKeyViolation(&pq.Error{Code: "23503"}))
		_, ok := isUniqueViolation(&pq.Error{Code: "23503"})
		assert.False(t, ok)
	})

	t.Run("sqlite", func(t *testing.T) {
		_, ok := isUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
		assert.True(t, ok)
		assert.True(t, isForeignKeyViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}))
	})

	t.Run("other errors", func(t *testing.T) {
		_, ok := isUniqueViolation(errors.New("boom"))
		assert.False(t, ok)
		assert.False(t, isForeignKeyViolation(nil))
	})
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:iuran.db?_foreign_keys=on", sqliteDSN("file:iuran.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "file:x?_fk=1", sqliteDSN("file:x?_fk=1"))
}

func TestParseReplicaURLs(t *testing.T) {
	assert.Nil(t, ParseReplicaURLs(""))
	assert.Equal(t,
		[]string{"postgres://r1/iuran", "postgres://r2/iuran"},
		ParseReplicaURLs(" postgres://r1/iuran, ,postgres://r2/iuran "),
	)
}
