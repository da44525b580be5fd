package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/krama-desa/iuran/pkg/tiers"
)

const tierColumns = `id, name, contribution_amount, description, created_at, updated_at`

func scanTier(row scanner) (*tiers.Tier, error) {
	var t tiers.Tier
	if err := row.Scan(&t.ID, &t.Name, &t.ContributionAmount, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (s *Store) CreateTier(ctx context.Context, t *tiers.Tier) error {
	query := `
		INSERT INTO membership_tiers (name, contribution_amount, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query),
		t.Name, t.ContributionAmount, t.Description, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create tier: %w", err)
	}
	return nil
}

func (s *Store) GetTier(ctx context.Context, id int64) (*tiers.Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM membership_tiers WHERE id = $1`
	t, err := scanTier(s.db.QueryRowContext(ctx, s.dialect.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, tiers.ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTier(ctx context.Context, t *tiers.Tier) error {
	query := `
		UPDATE membership_tiers
		SET name = $1, contribution_amount = $2, description = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query),
		t.Name, t.ContributionAmount, t.Description, t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	return expectOneRow(res, tiers.ErrTierNotFound)
}

// DeleteTier refuses while residents reference the tier
func (s *Store) DeleteTier(ctx context.Context, id int64) error {
	return s.RunInTx(ctx, func(tx *sql.Tx) error {
		inUse, err := s.exists(ctx, tx, `SELECT 1 FROM residents WHERE tier_id = $1 LIMIT 1`, id)
		if err != nil {
			return fmt.Errorf("failed to check tier references: %w", err)
		}
		if inUse {
			return tiers.ErrTierInUse
		}

		res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM membership_tiers WHERE id = $1`), id)
		if isForeignKeyViolation(err) {
			return tiers.ErrTierInUse
		}
		if err != nil {
			return fmt.Errorf("failed to delete tier: %w", err)
		}
		return expectOneRow(res, tiers.ErrTierNotFound)
	})
}

func (s *Store) ListTiers(ctx context.Context) ([]*tiers.Tier, error) {
	rows, err := s.read().QueryContext(ctx, `SELECT `+tierColumns+` FROM membership_tiers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	defer rows.Close()

	out := []*tiers.Tier{}
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
