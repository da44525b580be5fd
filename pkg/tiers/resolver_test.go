package tiers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements Store with overridable functions
type mockStore struct {
	getTierFunc func(ctx context.Context, id int64) (*Tier, error)
	gets        int
}

func (m *mockStore) CreateTier(ctx context.Context, t *Tier) error { return nil }
func (m *mockStore) UpdateTier(ctx context.Context, t *Tier) error { return nil }
func (m *mockStore) DeleteTier(ctx context.Context, id int64) error {
	return nil
}
func (m *mockStore) ListTiers(ctx context.Context) ([]*Tier, error) { return nil, nil }

func (m *mockStore) GetTier(ctx context.Context, id int64) (*Tier, error) {
	m.gets++
	if m.getTierFunc != nil {
		return m.getTierFunc(ctx, id)
	}
	return nil, ErrTierNotFound
}

func tierFixture(amounts map[int64]int64) *mockStore {
	return &mockStore{
		getTierFunc: func(ctx context.Context, id int64) (*Tier, error) {
			amount, ok := amounts[id]
			if !ok {
				return nil, ErrTierNotFound
			}
			return &Tier{ID: id, Name: "tier", ContributionAmount: decimal.NewFromInt(amount)}, nil
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestResolveContribution(t *testing.T) {
	store := tierFixture(map[int64]int64{1: 50000, 2: 0})
	resolver := NewResolver(store, 0, 0, nil)

	tests := []struct {
		name     string
		resident *residents.Resident
		want     decimal.Decimal
		wantOK   bool
	}{
		{"resolved", &residents.Resident{TierID: int64Ptr(1)}, decimal.NewFromInt(50000), true},
		{"no tier reference", &residents.Resident{}, decimal.Zero, false},
		{"zero contribution", &residents.Resident{TierID: int64Ptr(2)}, decimal.Zero, false},
		{"tier missing", &residents.Resident{TierID: int64Ptr(99)}, decimal.Zero, false},
		{"nil resident", nil, decimal.Zero, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, ok, err := resolver.ResolveContribution(context.Background(), tt.resident)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(amount), "want %s got %s", tt.want, amount)
		})
	}
}

func TestResolveContribution_StorageError(t *testing.T) {
	boom := errors.New("connection reset")
	store := &mockStore{getTierFunc: func(ctx context.Context, id int64) (*Tier, error) {
		return nil, boom
	}}
	resolver := NewResolver(store, 10, time.Minute, nil)

	_, ok, err := resolver.ResolveContribution(context.Background(), &residents.Resident{TierID: int64Ptr(1)})
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestResolver_CachesAndInvalidates(t *testing.T) {
	amounts := map[int64]int64{1: 50000}
	store := tierFixture(amounts)
	resolver := NewResolver(store, 10, time.Hour, nil)
	res := &residents.Resident{TierID: int64Ptr(1)}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		amount, ok, err := resolver.ResolveContribution(ctx, res)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "50000", amount.String())
	}
	assert.Equal(t, 1, store.gets)

	amounts[1] = 75000
	resolver.Invalidate(1)
	amount, _, err := resolver.ResolveContribution(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "75000", amount.String())
	assert.Equal(t, 2, store.gets)

	resolver.Purge()
	_, _, err = resolver.ResolveContribution(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, 3, store.gets)
}

func TestResolver_MissingTierNotCached(t *testing.T) {
	store := tierFixture(map[int64]int64{})
	resolver := NewResolver(store, 10, time.Hour, nil)
	res := &residents.Resident{TierID: int64Ptr(5)}

	for i := 0; i < 2; i++ {
		_, ok, err := resolver.ResolveContribution(context.Background(), res)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, store.gets)
}
