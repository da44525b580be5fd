package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one schema change with a statement per dialect
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

func (m Migration) sql(d dialect) string {
	if d.isSQLite() {
		return m.SQLite
	}
	return m.Postgres
}

// Migrations returns the schema history in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create membership_tiers table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS membership_tiers (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL,
					contribution_amount NUMERIC(14,2) NOT NULL CHECK (contribution_amount >= 0),
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS membership_tiers (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					contribution_amount TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create residents table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS residents (
					id BIGSERIAL PRIMARY KEY,
					nik CHAR(16) NOT NULL,
					kk_number CHAR(16) NOT NULL,
					name VARCHAR(150) NOT NULL,
					address TEXT NOT NULL DEFAULT '',
					phone VARCHAR(32) NOT NULL DEFAULT '',
					tier_id BIGINT REFERENCES membership_tiers(id),
					banjar_id BIGINT,
					owner_user_id BIGINT,
					family_role VARCHAR(32) NOT NULL,
					status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
					rejection_reason TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					CONSTRAINT residents_nik_key UNIQUE (nik)
				);

				CREATE INDEX IF NOT EXISTS idx_residents_status_role ON residents(status, family_role);
				CREATE INDEX IF NOT EXISTS idx_residents_owner ON residents(owner_user_id);
				CREATE INDEX IF NOT EXISTS idx_residents_tier ON residents(tier_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS residents (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					nik TEXT NOT NULL,
					kk_number TEXT NOT NULL,
					name TEXT NOT NULL,
					address TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					tier_id INTEGER REFERENCES membership_tiers(id),
					banjar_id INTEGER,
					owner_user_id INTEGER,
					family_role TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'PENDING',
					rejection_reason TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					CONSTRAINT residents_nik_key UNIQUE (nik)
				);

				CREATE INDEX IF NOT EXISTS idx_residents_status_role ON residents(status, family_role);
				CREATE INDEX IF NOT EXISTS idx_residents_owner ON residents(owner_user_id);
				CREATE INDEX IF NOT EXISTS idx_residents_tier ON residents(tier_id);
			`,
		},
		{
			Version:     3,
			Description: "Create invoices table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS invoices (
					id BIGSERIAL PRIMARY KEY,
					number VARCHAR(40) NOT NULL UNIQUE,
					resident_id BIGINT NOT NULL REFERENCES residents(id),
					period_date DATE NOT NULL,
					period_year INT NOT NULL,
					period_month INT NOT NULL CHECK (period_month BETWEEN 1 AND 12),
					mandatory NUMERIC(14,2) NOT NULL CHECK (mandatory >= 0),
					peturunan NUMERIC(14,2) NOT NULL CHECK (peturunan >= 0),
					dedosan NUMERIC(14,2) NOT NULL CHECK (dedosan >= 0),
					total NUMERIC(14,2) NOT NULL,
					source VARCHAR(16) NOT NULL,
					notes TEXT NOT NULL DEFAULT '',
					created_by BIGINT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					CONSTRAINT invoices_total_is_sum CHECK (total = mandatory + peturunan + dedosan)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS invoices_bulk_period_key
					ON invoices(resident_id, period_year, period_month) WHERE source = 'bulk';
				CREATE INDEX IF NOT EXISTS idx_invoices_period ON invoices(period_year, period_month);
				CREATE INDEX IF NOT EXISTS idx_invoices_resident ON invoices(resident_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS invoices (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					number TEXT NOT NULL UNIQUE,
					resident_id INTEGER NOT NULL REFERENCES residents(id),
					period_date DATE NOT NULL,
					period_year INTEGER NOT NULL,
					period_month INTEGER NOT NULL CHECK (period_month BETWEEN 1 AND 12),
					mandatory TEXT NOT NULL,
					peturunan TEXT NOT NULL,
					dedosan TEXT NOT NULL,
					total TEXT NOT NULL,
					source TEXT NOT NULL,
					notes TEXT NOT NULL DEFAULT '',
					created_by INTEGER NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE UNIQUE INDEX IF NOT EXISTS invoices_bulk_period_key
					ON invoices(resident_id, period_year, period_month) WHERE source = 'bulk';
				CREATE INDEX IF NOT EXISTS idx_invoices_period ON invoices(period_year, period_month);
				CREATE INDEX IF NOT EXISTS idx_invoices_resident ON invoices(resident_id);
			`,
		},
		{
			Version:     4,
			Description: "Create payments table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS payments (
					id BIGSERIAL PRIMARY KEY,
					invoice_id BIGINT NOT NULL REFERENCES invoices(id),
					amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0),
					paid_at DATE NOT NULL,
					method VARCHAR(16) NOT NULL,
					status VARCHAR(16) NOT NULL,
					recorded_by BIGINT NOT NULL,
					note TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS payments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					invoice_id INTEGER NOT NULL REFERENCES invoices(id),
					amount TEXT NOT NULL,
					paid_at DATE NOT NULL,
					method TEXT NOT NULL,
					status TEXT NOT NULL,
					recorded_by INTEGER NOT NULL,
					note TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);
			`,
		},
	}
}

// Migrate applies pending migrations, each in its own transaction
func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, s.dialect, Migrations())
}

func runMigrations(ctx context.Context, db *sql.DB, d dialect, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql(d)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			d.rebind("INSERT INTO schema_migrations (version, description) VALUES ($1, $2)"),
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
