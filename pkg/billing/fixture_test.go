package billing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/audit"
	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/storage/memory"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

var (
	admin    = rbac.Actor{UserID: 1, Name: "klian", Role: rbac.RoleAdmin}
	operator = rbac.Actor{UserID: 2, Name: "penyarikan", Role: rbac.RoleOperator}
	member   = rbac.Actor{UserID: 10, Name: "wayan", Role: rbac.RoleMember}
	stranger = rbac.Actor{UserID: 11, Name: "nyoman", Role: rbac.RoleMember}

	march2025 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *memory.Store
	recorder  *audit.MemoryRecorder
	hook      *test.Hook
	clock     *clockwork.FakeClock
	resolver  *tiers.Resolver
	previews  billing.PreviewCache
	generator *billing.Generator
	ledger    *billing.Ledger
	nik       int
}

type fixtureOption func(*billing.Deps)

func withPreviews(c billing.PreviewCache) fixtureOption {
	return func(d *billing.Deps) { d.Previews = c }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	log, hook := test.NewNullLogger()
	store := memory.New()
	recorder := audit.NewMemoryRecorder()
	clock := clockwork.NewFakeClockAt(march2025)
	resolver := tiers.NewResolver(store, 0, 0, nil)

	deps := billing.Deps{
		Invoices:  store,
		Payments:  store,
		Directory: residents.NewDirectory(store),
		Fees:      resolver,
		Previews:  billing.NewMemoryPreviewCache(8, time.Hour),
		Trail:     audit.NewTrail(recorder, log, audit.WithClock(clock)),
		Logger:    log,
		Clock:     clock,
		Location:  time.UTC,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	gen, err := billing.NewGenerator(deps)
	require.NoError(t, err)
	ledger, err := billing.NewLedger(deps)
	require.NoError(t, err)

	return &fixture{
		store:     store,
		recorder:  recorder,
		hook:      hook,
		clock:     clock,
		resolver:  resolver,
		previews:  deps.Previews,
		generator: gen,
		ledger:    ledger,
	}
}

func (f *fixture) tier(t *testing.T, amount int64) *tiers.Tier {
	t.Helper()
	tier := &tiers.Tier{Name: "Krama", ContributionAmount: decimal.NewFromInt(amount)}
	require.NoError(t, f.store.CreateTier(context.Background(), tier))
	return tier
}

type residentOpt func(*residents.Resident)

func status(s residents.Status) residentOpt {
	return func(r *residents.Resident) { r.Status = s }
}

func role(fr residents.FamilyRole) residentOpt {
	return func(r *residents.Resident) { r.FamilyRole = fr }
}

func ownedBy(a rbac.Actor) residentOpt {
	return func(r *residents.Resident) { id := a.UserID; r.OwnerUserID = &id }
}

// resident stores an APPROVED head of household on the tier unless opts say otherwise
func (f *fixture) resident(t *testing.T, tier *tiers.Tier, opts ...residentOpt) *residents.Resident {
	t.Helper()
	f.nik++
	r := &residents.Resident{
		NIK:        fmt.Sprintf("51710101019%05d", f.nik),
		KKNumber:   "5171010000000001",
		Name:       "I Made Krama",
		FamilyRole: residents.RoleHeadOfHousehold,
		Status:     residents.StatusApproved,
	}
	if tier != nil {
		r.TierID = &tier.ID
	}
	for _, opt := range opts {
		opt(r)
	}
	require.NoError(t, f.store.CreateResident(context.Background(), r))
	return r
}

func (f *fixture) invoiceEntries() []audit.Entry {
	var out []audit.Entry
	for _, e := range f.recorder.Entries() {
		if e.TargetType == audit.TargetInvoice {
			out = append(out, e)
		}
	}
	return out
}

func rp(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
