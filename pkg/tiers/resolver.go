package tiers

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/shopspring/decimal"
)

const cacheName = "tier"

// Resolver maps a resident's tier reference to the mandatory contribution.
// Tier rows are cached; the tier service invalidates entries it changes.
type Resolver struct {
	store   Store
	cache   *expirable.LRU[int64, Tier]
	metrics *observability.Metrics
}

// NewResolver creates a resolver caching up to size tiers for ttl.
// A size of zero disables caching.
func NewResolver(store Store, size int, ttl time.Duration, metrics *observability.Metrics) *Resolver {
	r := &Resolver{store: store, metrics: metrics}
	if size > 0 {
		r.cache = expirable.NewLRU[int64, Tier](size, nil, ttl)
	}
	return r
}

// ResolveContribution returns the resident's contribution. ok is false when
// the resident has no tier, the tier no longer exists, or its contribution is
// zero; callers must treat that as ineligibility, never as a zero invoice.
// err is reserved for storage failures.
func (r *Resolver) ResolveContribution(ctx context.Context, res *residents.Resident) (decimal.Decimal, bool, error) {
	if res == nil || res.TierID == nil {
		return decimal.Zero, false, nil
	}

	tier, err := r.tier(ctx, *res.TierID)
	if errors.Is(err, ErrTierNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if !tier.ContributionAmount.IsPositive() {
		return decimal.Zero, false, nil
	}
	return tier.ContributionAmount, true, nil
}

func (r *Resolver) tier(ctx context.Context, id int64) (Tier, error) {
	if r.cache != nil {
		if t, ok := r.cache.Get(id); ok {
			r.metrics.CacheHit(cacheName)
			return t, nil
		}
		r.metrics.CacheMiss(cacheName)
	}

	t, err := r.store.GetTier(ctx, id)
	if err != nil {
		return Tier{}, err
	}
	if r.cache != nil {
		r.cache.Add(id, *t)
	}
	return *t, nil
}

// Invalidate drops a cached tier
func (r *Resolver) Invalidate(id int64) {
	if r.cache != nil {
		r.cache.Remove(id)
	}
}

// Purge drops every cached tier
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
