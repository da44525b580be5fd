package tiers_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/storage/memory"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = rbac.Actor{UserID: 1, Role: rbac.RoleAdmin}
	operator = rbac.Actor{UserID: 2, Role: rbac.RoleOperator}
)

func newService(t *testing.T) (*tiers.Service, *tiers.Resolver, *memory.Store, *audit.MemoryRecorder) {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := memory.New()
	recorder := audit.NewMemoryRecorder()
	resolver := tiers.NewResolver(store, 16, time.Hour, nil)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := tiers.NewService(store, resolver, audit.NewTrail(recorder, log), log, clock)
	return svc, resolver, store, recorder
}

func TestService_CRUD(t *testing.T) {
	svc, _, _, recorder := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, admin, tiers.Input{Name: "Krama Ngarep", ContributionAmount: decimal.NewFromInt(50000)})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	updated, err := svc.Update(ctx, admin, created.ID, tiers.Input{Name: "Krama Ngarep", ContributionAmount: decimal.NewFromInt(60000)})
	require.NoError(t, err)
	assert.Equal(t, "60000", updated.ContributionAmount.String())

	list, err := svc.List(ctx, operator)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, admin, created.ID))
	_, err = svc.Get(ctx, operator, created.ID)
	assert.ErrorIs(t, err, tiers.ErrTierNotFound)

	actions := []audit.Action{}
	for _, e := range recorder.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete}, actions)
}

func TestService_AdminOnlyWrites(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.Create(context.Background(), operator, tiers.Input{Name: "x", ContributionAmount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, rbac.ErrForbidden)
}

func TestService_RejectsNegativeContribution(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.Create(context.Background(), admin, tiers.Input{Name: "x", ContributionAmount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, tiers.ErrInvalidTier)

	zero, err := svc.Create(context.Background(), admin, tiers.Input{Name: "Pengayah", ContributionAmount: decimal.Zero})
	require.NoError(t, err, "a zero contribution is a valid tier; it is just not invoiceable")
	assert.True(t, zero.ContributionAmount.IsZero())
}

func TestService_UpdateInvalidatesResolver(t *testing.T) {
	svc, resolver, _, _ := newService(t)
	ctx := context.Background()

	tier, err := svc.Create(ctx, admin, tiers.Input{Name: "Krama", ContributionAmount: decimal.NewFromInt(50000)})
	require.NoError(t, err)
	res := &residents.Resident{TierID: &tier.ID}

	amount, ok, err := resolver.ResolveContribution(ctx, res)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "50000", amount.String())

	_, err = svc.Update(ctx, admin, tier.ID, tiers.Input{Name: "Krama", ContributionAmount: decimal.NewFromInt(55000)})
	require.NoError(t, err)

	amount, ok, err = resolver.ResolveContribution(ctx, res)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "55000", amount.String())
}

func TestService_DeleteRefusedWhileReferenced(t *testing.T) {
	svc, _, store, _ := newService(t)
	ctx := context.Background()

	tier, err := svc.Create(ctx, admin, tiers.Input{Name: "Krama", ContributionAmount: decimal.NewFromInt(50000)})
	require.NoError(t, err)
	require.NoError(t, store.CreateResident(ctx, &residents.Resident{
		NIK: "5171010101900001", KKNumber: "5171010000000001", Name: "Made",
		FamilyRole: residents.RoleHeadOfHousehold, Status: residents.StatusApproved, TierID: &tier.ID,
	}))

	err = svc.Delete(ctx, admin, tier.ID)
	assert.ErrorIs(t, err, tiers.ErrTierInUse)
}
