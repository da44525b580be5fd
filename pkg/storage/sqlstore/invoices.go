package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/residents"
)

const invoiceColumns = `id, number, resident_id, period_date, period_year, period_month,
	mandatory, peturunan, dedosan, total, source, notes, created_by, created_at, updated_at`

// bulkPeriodKey is the partial unique index on (resident_id, period_year,
// period_month) for bulk invoices
const bulkPeriodKey = "invoices_bulk_period_key"

// errPeriodTaken aborts the create-if-absent transaction when another
// writer won the race for the same resident and period
var errPeriodTaken = errors.New("invoice period already taken")

func (s *Store) scanInvoice(row scanner) (*billing.Invoice, error) {
	var (
		inv   billing.Invoice
		month int
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.ResidentID, &inv.PeriodDate, &inv.Period.Year, &month,
		&inv.Mandatory, &inv.Peturunan, &inv.Dedosan, &inv.Total, &inv.Source, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Period.Month = time.Month(month)
	inv.PeriodDate = s.date(inv.PeriodDate)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	return s.insertInvoice(ctx, s.db, inv)
}

// CreateInvoiceIfAbsent inserts inv unless the resident already has an
// invoice of any source in the same period. On postgres a transaction-scoped
// advisory lock on the resident serialises concurrent callers; sqlite runs on
// a single connection. The bulk partial unique index backs both.
func (s *Store) CreateInvoiceIfAbsent(ctx context.Context, inv *billing.Invoice) (bool, error) {
	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		if !s.dialect.isSQLite() {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, inv.ResidentID); err != nil {
				return fmt.Errorf("failed to lock resident %d: %w", inv.ResidentID, err)
			}
		}

		taken, err := s.exists(ctx, tx,
			`SELECT 1 FROM invoices WHERE resident_id = $1 AND period_year = $2 AND period_month = $3 LIMIT 1`,
			inv.ResidentID, inv.Period.Year, int(inv.Period.Month))
		if err != nil {
			return fmt.Errorf("failed to check existing invoice: %w", err)
		}
		if taken {
			return errPeriodTaken
		}

		err = s.insertInvoice(ctx, tx, inv)
		if c, ok := isUniqueViolation(err); ok && isBulkPeriodViolation(c) {
			return errPeriodTaken
		}
		return err
	})
	if errors.Is(err, errPeriodTaken) {
		inv.ID = 0
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isBulkPeriodViolation(constraint string) bool {
	return constraint == bulkPeriodKey || strings.Contains(constraint, "invoices.period_month")
}

func (s *Store) insertInvoice(ctx context.Context, q querier, inv *billing.Invoice) error {
	query := `
		INSERT INTO invoices (number, resident_id, period_date, period_year, period_month,
			mandatory, peturunan, dedosan, total, source, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, s.dialect.rebind(query),
		inv.Number, inv.ResidentID, dateArg(inv.PeriodDate), inv.Period.Year, int(inv.Period.Month),
		inv.Mandatory, inv.Peturunan, inv.Dedosan, inv.Total, string(inv.Source), inv.Notes,
		inv.CreatedBy, inv.CreatedAt.UTC(), inv.UpdatedAt.UTC(),
	).Scan(&inv.ID)
	if isForeignKeyViolation(err) {
		return residents.ErrResidentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := s.scanInvoice(s.db.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// UpdateInvoice writes the fee components, total and notes; resident and
// period are fixed at creation
func (s *Store) UpdateInvoice(ctx context.Context, inv *billing.Invoice) error {
	query := `
		UPDATE invoices
		SET mandatory = $1, peturunan = $2, dedosan = $3, total = $4, notes = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		inv.Mandatory, inv.Peturunan, inv.Dedosan, inv.Total, inv.Notes, inv.UpdatedAt.UTC(), inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return expectOneRow(res, billing.ErrInvoiceNotFound)
}

// DeleteInvoice refuses while payments reference the invoice
func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	return s.RunInTx(ctx, func(tx *sql.Tx) error {
		hasPayments, err := s.exists(ctx, tx, `SELECT 1 FROM payments WHERE invoice_id = $1 LIMIT 1`, id)
		if err != nil {
			return fmt.Errorf("failed to check invoice payments: %w", err)
		}
		if hasPayments {
			return billing.ErrInvoiceHasPayments
		}

		res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM invoices WHERE id = $1`), id)
		if isForeignKeyViolation(err) {
			return billing.ErrInvoiceHasPayments
		}
		if err != nil {
			return fmt.Errorf("failed to delete invoice: %w", err)
		}
		return expectOneRow(res, billing.ErrInvoiceNotFound)
	})
}

func (s *Store) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]*billing.Invoice, error) {
	w := &where{}
	if f.ResidentID != 0 {
		w.add("resident_id = ?", f.ResidentID)
	}
	if !f.Period.IsZero() {
		w.add("period_year = ?", f.Period.Year)
		w.add("period_month = ?", int(f.Period.Month))
	}
	if f.Source != "" {
		w.add("source = ?", string(f.Source))
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices` + w.String() + ` ORDER BY id` + w.page(s.dialect, f.Limit, f.Offset)

	rows, err := s.read().QueryContext(ctx, s.dialect.rebind(query), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	out := []*billing.Invoice{}
	for rows.Next() {
		inv, err := s.scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// InvoicedResidents reads from the primary; bulk previews must not miss a
// just-committed invoice on a lagging replica
func (s *Store) InvoicedResidents(ctx context.Context, period billing.Period) (map[int64]bool, error) {
	query := `SELECT DISTINCT resident_id FROM invoices WHERE period_year = $1 AND period_month = $2`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), period.Year, int(period.Month))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoiced residents: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resident id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (s *Store) HasInvoiceInPeriod(ctx context.Context, residentID int64, period billing.Period) (bool, error) {
	found, err := s.exists(ctx, s.db,
		`SELECT 1 FROM invoices WHERE resident_id = $1 AND period_year = $2 AND period_month = $3 LIMIT 1`,
		residentID, period.Year, int(period.Month))
	if err != nil {
		return false, fmt.Errorf("failed to check invoice period: %w", err)
	}
	return found, nil
}
