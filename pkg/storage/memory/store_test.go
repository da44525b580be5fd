package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/tiers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var march = billing.Period{Year: 2025, Month: 3}

func invoiceFor(residentID int64, period billing.Period) *billing.Invoice {
	return &billing.Invoice{
		ResidentID: residentID,
		PeriodDate: time.Date(period.Year, time.Month(period.Month), 1, 0, 0, 0, 0, time.UTC),
		Period:     period,
		Mandatory:  decimal.NewFromInt(50000),
		Total:      decimal.NewFromInt(50000),
		Source:     billing.SourceBulk,
	}
}

func TestCreateInvoiceIfAbsent_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := &residents.Resident{NIK: "5171010101900001", Name: "I Wayan Krama"}
	require.NoError(t, s.CreateResident(ctx, r))

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CreateInvoiceIfAbsent(ctx, invoiceFor(r.ID, march))
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	has, err := s.HasInvoiceInPeriod(ctx, r.ID, march)
	require.NoError(t, err)
	assert.True(t, has)

	ok, err := s.CreateInvoiceIfAbsent(ctx, invoiceFor(r.ID, billing.Period{Year: 2025, Month: 4}))
	require.NoError(t, err)
	assert.True(t, ok, "another month is a different key")
}

func TestCreateInvoice_UnknownResident(t *testing.T) {
	err := New().CreateInvoice(context.Background(), invoiceFor(99, march))
	assert.ErrorIs(t, err, residents.ErrResidentNotFound)
}

func TestDeleteInvoice_WithPayments(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := &residents.Resident{NIK: "5171010101900001"}
	require.NoError(t, s.CreateResident(ctx, r))
	inv := invoiceFor(r.ID, march)
	require.NoError(t, s.CreateInvoice(ctx, inv))
	p := &billing.Payment{InvoiceID: inv.ID, Amount: decimal.NewFromInt(10000), Status: billing.PaymentPaid}
	require.NoError(t, s.CreatePayment(ctx, p))

	assert.ErrorIs(t, s.DeleteInvoice(ctx, inv.ID), billing.ErrInvoiceHasPayments)

	require.NoError(t, s.DeletePayment(ctx, p.ID))
	require.NoError(t, s.DeleteInvoice(ctx, inv.ID))
	_, err := s.GetInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	tier := &tiers.Tier{Name: "Krama Ngarep", ContributionAmount: decimal.NewFromInt(50000)}
	require.NoError(t, s.CreateTier(ctx, tier))

	got, err := s.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	got.Name = "changed"

	again, err := s.GetTier(ctx, tier.ID)
	require.NoError(t, err)
	assert.Equal(t, "Krama Ngarep", again.Name)
}
