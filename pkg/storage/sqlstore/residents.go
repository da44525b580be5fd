package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/krama-desa/iuran/pkg/residents"
)

const residentColumns = `id, nik, kk_number, name, address, phone, tier_id, banjar_id,
	owner_user_id, family_role, status, rejection_reason, created_at, updated_at`

func scanResident(row scanner) (*residents.Resident, error) {
	var (
		r                       residents.Resident
		tierID, banjarID, owner sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.NIK, &r.KKNumber, &r.Name, &r.Address, &r.Phone,
		&tierID, &banjarID, &owner, &r.FamilyRole, &r.Status, &r.RejectionReason,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.TierID = int64Ptr(tierID)
	r.BanjarID = int64Ptr(banjarID)
	r.OwnerUserID = int64Ptr(owner)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func (s *Store) CreateResident(ctx context.Context, r *residents.Resident) error {
	query := `
		INSERT INTO residents (nik, kk_number, name, address, phone, tier_id, banjar_id,
			owner_user_id, family_role, status, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query),
		r.NIK, r.KKNumber, r.Name, r.Address, r.Phone,
		nullInt64(r.TierID), nullInt64(r.BanjarID), nullInt64(r.OwnerUserID),
		string(r.FamilyRole), string(r.Status), r.RejectionReason,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		return s.residentWriteError(err)
	}
	return nil
}

func (s *Store) GetResident(ctx context.Context, id int64) (*residents.Resident, error) {
	query := `SELECT ` + residentColumns + ` FROM residents WHERE id = $1`
	r, err := scanResident(s.db.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, residents.ErrResidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resident: %w", err)
	}
	return r, nil
}

// UpdateResident is a compare-and-set on status: the row is written only while
// its status is still expected.
func (s *Store) UpdateResident(ctx context.Context, r *residents.Resident, expected residents.Status) error {
	query := `
		UPDATE residents
		SET nik = $1, kk_number = $2, name = $3, address = $4, phone = $5, tier_id = $6,
			banjar_id = $7, owner_user_id = $8, family_role = $9, status = $10,
			rejection_reason = $11, updated_at = $12
		WHERE id = $13 AND status = $14
	`
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		r.NIK, r.KKNumber, r.Name, r.Address, r.Phone,
		nullInt64(r.TierID), nullInt64(r.BanjarID), nullInt64(r.OwnerUserID),
		string(r.FamilyRole), string(r.Status), r.RejectionReason,
		r.UpdatedAt.UTC(), r.ID, string(expected),
	)
	if err != nil {
		return s.residentWriteError(err)
	}
	return s.expectGuardedRow(ctx, res, `SELECT 1 FROM residents WHERE id = $1`, r.ID,
		residents.ErrResidentNotFound, residents.ErrStatusChanged)
}

// DeleteResident refuses while invoices reference the resident. The foreign
// key is the backstop for a concurrent invoice insert.
func (s *Store) DeleteResident(ctx context.Context, id int64) error {
	return s.RunInTx(ctx, func(tx *sql.Tx) error {
		inUse, err := s.exists(ctx, tx, `SELECT 1 FROM invoices WHERE resident_id = $1 LIMIT 1`, id)
		if err != nil {
			return fmt.Errorf("failed to check resident invoices: %w", err)
		}
		if inUse {
			return residents.ErrResidentInUse
		}

		res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM residents WHERE id = $1`), id)
		if isForeignKeyViolation(err) {
			return residents.ErrResidentInUse
		}
		if err != nil {
			return fmt.Errorf("failed to delete resident: %w", err)
		}
		return expectOneRow(res, residents.ErrResidentNotFound)
	})
}

func (s *Store) ListResidents(ctx context.Context, f residents.Filter) ([]*residents.Resident, error) {
	w := &where{}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.FamilyRole != "" {
		w.add("family_role = ?", string(f.FamilyRole))
	}
	if f.BanjarID != nil {
		w.add("banjar_id = ?", *f.BanjarID)
	}
	if f.TierID != nil {
		w.add("tier_id = ?", *f.TierID)
	}
	if f.OwnerUserID != nil {
		w.add("owner_user_id = ?", *f.OwnerUserID)
	}
	query := `SELECT ` + residentColumns + ` FROM residents` + w.String() + ` ORDER BY id` + w.page(s.dialect, f.Limit, f.Offset)

	rows, err := s.read().QueryContext(ctx, s.dialect.rebind(query), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list residents: %w", err)
	}
	defer rows.Close()

	out := []*residents.Resident{}
	for rows.Next() {
		r, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resident: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) residentWriteError(err error) error {
	if _, ok := isUniqueViolation(err); ok {
		return residents.ErrDuplicateNIK
	}
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown membership tier", residents.ErrInvalidResident)
	}
	return fmt.Errorf("failed to write resident: %w", err)
}

// expectGuardedRow tells a missing row from a failed status guard when a
// conditional update matched nothing
func (s *Store) expectGuardedRow(ctx context.Context, res sql.Result, existsQuery string, id int64, notFound, changed error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	found, err := s.exists(ctx, s.db, existsQuery, id)
	if err != nil {
		return fmt.Errorf("failed to check row: %w", err)
	}
	if !found {
		return notFound
	}
	return changed
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
