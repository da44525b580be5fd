package tiers

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrTierNotFound = errors.New("membership tier not found")
	ErrTierInUse    = errors.New("membership tier is referenced by residents")
	ErrInvalidTier  = errors.New("invalid membership tier")
)

// Tier is a membership category (a.k.a. resident status) carrying the
// mandatory monthly contribution.
type Tier struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name" validate:"required,max=100"`
	ContributionAmount decimal.Decimal `json:"contribution_amount" validate:"gte=0"`
	Description        string          `json:"description,omitempty" validate:"max=500"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Input holds the administrable fields of a tier
type Input struct {
	Name               string          `json:"name"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	Description        string          `json:"description,omitempty"`
}

// Store persists membership tiers
type Store interface {
	CreateTier(ctx context.Context, t *Tier) error
	GetTier(ctx context.Context, id int64) (*Tier, error)
	UpdateTier(ctx context.Context, t *Tier) error
	// DeleteTier returns ErrTierInUse while residents reference the tier.
	DeleteTier(ctx context.Context, id int64) error
	ListTiers(ctx context.Context) ([]*Tier, error)
}
