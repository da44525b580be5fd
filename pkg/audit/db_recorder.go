package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// DBRecorder appends audit entries to the audit_logs table
type DBRecorder struct {
	db     *sql.DB
	driver string
}

// NewDBRecorder creates a database-backed recorder. driver is the database/sql
// driver name ("postgres" or "sqlite3") and selects DDL and placeholders.
func NewDBRecorder(db *sql.DB, driver string) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if driver != "postgres" && driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}

	recorder := &DBRecorder{
		db:     db,
		driver: driver,
	}

	if err := recorder.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return recorder, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (r *DBRecorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		actor_id BIGINT NOT NULL,
		actor_name VARCHAR(255),
		actor_role VARCHAR(20),
		action VARCHAR(20) NOT NULL,
		target_type VARCHAR(50) NOT NULL,
		target_id VARCHAR(64) NOT NULL,
		old_values JSONB,
		new_values JSONB,
		request_id VARCHAR(100),
		ip_address VARCHAR(45),
		user_agent TEXT,
		method VARCHAR(10),
		path TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_target ON audit_logs(target_type, target_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	`
	if r.driver == "sqlite3" {
		query = strings.NewReplacer(
			"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"TIMESTAMP WITH TIME ZONE", "TIMESTAMP",
			"JSONB", "TEXT",
		).Replace(query)
	}

	_, err := r.db.Exec(query)
	return err
}

// Record inserts the entry and sets its ID
func (r *DBRecorder) Record(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO audit_logs (
			timestamp, actor_id, actor_name, actor_role,
			action, target_type, target_id,
			old_values, new_values,
			request_id, ip_address, user_agent, method, path
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11, $12, $13, $14
		) RETURNING id
	`
	if r.driver == "sqlite3" {
		query = positionalToQuestion(query)
	}

	err := r.db.QueryRowContext(ctx, query,
		entry.Timestamp, entry.ActorID, entry.ActorName, entry.ActorRole,
		string(entry.Action), string(entry.TargetType), entry.TargetID,
		jsonArg(entry.OldValues), jsonArg(entry.NewValues),
		entry.Request.RequestID, entry.Request.IPAddress, entry.Request.UserAgent,
		entry.Request.Method, entry.Request.Path,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Close is a no-op; the caller owns the database handle
func (r *DBRecorder) Close() error {
	return nil
}

// jsonArg passes snapshots as text; lib/pq would otherwise send []byte as bytea.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// positionalToQuestion rewrites $N placeholders to ?; every placeholder in the
// audit insert appears once and in order.
func positionalToQuestion(query string) string {
	var b strings.Builder
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
