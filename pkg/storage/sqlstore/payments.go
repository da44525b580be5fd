package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/lib/pq"
)

const paymentColumns = `id, invoice_id, amount, paid_at, method, status, recorded_by, note, created_at, updated_at`

func (s *Store) scanPayment(row scanner) (*billing.Payment, error) {
	var p billing.Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.PaidAt, &p.Method, &p.Status,
		&p.RecordedBy, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.PaidAt = s.date(p.PaidAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	query := `
		INSERT INTO payments (invoice_id, amount, paid_at, method, status, recorded_by, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query),
		p.InvoiceID, p.Amount, dateArg(p.PaidAt), string(p.Method), string(p.Status),
		p.RecordedBy, p.Note, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	).Scan(&p.ID)
	if isForeignKeyViolation(err) {
		return billing.ErrInvoiceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*billing.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := s.scanPayment(s.db.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, billing.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *billing.Payment, expected billing.PaymentStatus) error {
	query := `
		UPDATE payments
		SET amount = $1, paid_at = $2, method = $3, status = $4, note = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		p.Amount, dateArg(p.PaidAt), string(p.Method), string(p.Status), p.Note, p.UpdatedAt.UTC(), p.ID, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return s.expectGuardedRow(ctx, res, `SELECT 1 FROM payments WHERE id = $1`, p.ID,
		billing.ErrPaymentNotFound, billing.ErrPaymentChanged)
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM payments WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return expectOneRow(res, billing.ErrPaymentNotFound)
}

// ListPayments reads from the primary so a status read right after
// RecordPayment sees the new payment
func (s *Store) ListPayments(ctx context.Context, invoiceID int64) ([]*billing.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	out := []*billing.Payment{}
	for rows.Next() {
		p, err := s.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPaymentsForInvoices groups the payments of many invoices in one query
func (s *Store) ListPaymentsForInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]*billing.Payment, error) {
	out := make(map[int64][]*billing.Payment)
	if len(invoiceIDs) == 0 {
		return out, nil
	}

	var (
		query string
		args  []any
	)
	if s.dialect.isSQLite() {
		marks := make([]string, len(invoiceIDs))
		for i, id := range invoiceIDs {
			marks[i] = "?"
			args = append(args, id)
		}
		query = `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id IN (` + strings.Join(marks, ", ") + `) ORDER BY id`
	} else {
		query = `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = ANY($1) ORDER BY id`
		args = []any{pq.Array(invoiceIDs)}
	}

	rows, err := s.read().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := s.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out[p.InvoiceID] = append(out[p.InvoiceID], p)
	}
	return out, rows.Err()
}
