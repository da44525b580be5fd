// Package memory is a process-local store for single-node trials and tests.
// It implements every store interface of the engine behind one mutex, so
// create-if-absent is trivially atomic.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/krama-desa/iuran/pkg/billing"
	"github.com/krama-desa/iuran/pkg/residents"
	"github.com/krama-desa/iuran/pkg/tiers"
)

// Store keeps residents, tiers, invoices and payments in maps
type Store struct {
	mu sync.RWMutex

	residents map[int64]*residents.Resident
	tiers     map[int64]*tiers.Tier
	invoices  map[int64]*billing.Invoice
	payments  map[int64]*billing.Payment

	nextResident, nextTier, nextInvoice, nextPayment int64
}

// New returns an empty store
func New() *Store {
	return &Store{
		residents: make(map[int64]*residents.Resident),
		tiers:     make(map[int64]*tiers.Tier),
		invoices:  make(map[int64]*billing.Invoice),
		payments:  make(map[int64]*billing.Payment),
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// Residents

func (s *Store) CreateResident(ctx context.Context, r *residents.Resident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.residents {
		if existing.NIK == r.NIK {
			return residents.ErrDuplicateNIK
		}
	}
	s.nextResident++
	r.ID = s.nextResident
	s.residents[r.ID] = r.Clone()
	return nil
}

func (s *Store) GetResident(ctx context.Context, id int64) (*residents.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.residents[id]
	if !ok {
		return nil, residents.ErrResidentNotFound
	}
	return r.Clone(), nil
}

func (s *Store) UpdateResident(ctx context.Context, r *residents.Resident, expected residents.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.residents[r.ID]
	if !ok {
		return residents.ErrResidentNotFound
	}
	if current.Status != expected {
		return residents.ErrStatusChanged
	}
	for id, existing := range s.residents {
		if id != r.ID && existing.NIK == r.NIK {
			return residents.ErrDuplicateNIK
		}
	}
	s.residents[r.ID] = r.Clone()
	return nil
}

func (s *Store) DeleteResident(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.residents[id]; !ok {
		return residents.ErrResidentNotFound
	}
	for _, inv := range s.invoices {
		if inv.ResidentID == id {
			return residents.ErrResidentInUse
		}
	}
	delete(s.residents, id)
	return nil
}

func (s *Store) ListResidents(ctx context.Context, f residents.Filter) ([]*residents.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*residents.Resident{}
	for _, r := range s.residents {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.FamilyRole != "" && r.FamilyRole != f.FamilyRole {
			continue
		}
		if f.BanjarID != nil && (r.BanjarID == nil || *r.BanjarID != *f.BanjarID) {
			continue
		}
		if f.TierID != nil && (r.TierID == nil || *r.TierID != *f.TierID) {
			continue
		}
		if f.OwnerUserID != nil && (r.OwnerUserID == nil || *r.OwnerUserID != *f.OwnerUserID) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

// Tiers

func (s *Store) CreateTier(ctx context.Context, t *tiers.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTier++
	t.ID = s.nextTier
	c := *t
	s.tiers[t.ID] = &c
	return nil
}

func (s *Store) GetTier(ctx context.Context, id int64) (*tiers.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tiers[id]
	if !ok {
		return nil, tiers.ErrTierNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) UpdateTier(ctx context.Context, t *tiers.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tiers[t.ID]; !ok {
		return tiers.ErrTierNotFound
	}
	c := *t
	s.tiers[t.ID] = &c
	return nil
}

func (s *Store) DeleteTier(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tiers[id]; !ok {
		return tiers.ErrTierNotFound
	}
	for _, r := range s.residents {
		if r.TierID != nil && *r.TierID == id {
			return tiers.ErrTierInUse
		}
	}
	delete(s.tiers, id)
	return nil
}

func (s *Store) ListTiers(ctx context.Context) ([]*tiers.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*tiers.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Invoices

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertInvoice(inv)
}

func (s *Store) CreateInvoiceIfAbsent(ctx context.Context, inv *billing.Invoice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasInvoice(inv.ResidentID, inv.Period) {
		return false, nil
	}
	if err := s.insertInvoice(inv); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) insertInvoice(inv *billing.Invoice) error {
	if _, ok := s.residents[inv.ResidentID]; !ok {
		return residents.ErrResidentNotFound
	}
	s.nextInvoice++
	inv.ID = s.nextInvoice
	c := *inv
	s.invoices[inv.ID] = &c
	return nil
}

func (s *Store) hasInvoice(residentID int64, period billing.Period) bool {
	for _, existing := range s.invoices {
		if existing.ResidentID == residentID && existing.Period == period {
			return true
		}
	}
	return false
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	c := *inv
	return &c, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[inv.ID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	c := *inv
	s.invoices[inv.ID] = &c
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return billing.ErrInvoiceNotFound
	}
	for _, p := range s.payments {
		if p.InvoiceID == id {
			return billing.ErrInvoiceHasPayments
		}
	}
	delete(s.invoices, id)
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*billing.Invoice{}
	for _, inv := range s.invoices {
		if f.ResidentID != 0 && inv.ResidentID != f.ResidentID {
			continue
		}
		if !f.Period.IsZero() && inv.Period != f.Period {
			continue
		}
		if f.Source != "" && inv.Source != f.Source {
			continue
		}
		c := *inv
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

func (s *Store) InvoicedResidents(ctx context.Context, period billing.Period) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]bool)
	for _, inv := range s.invoices {
		if inv.Period == period {
			out[inv.ResidentID] = true
		}
	}
	return out, nil
}

func (s *Store) HasInvoiceInPeriod(ctx context.Context, residentID int64, period billing.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasInvoice(residentID, period), nil
}

// Payments

func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[p.InvoiceID]; !ok {
		return billing.ErrInvoiceNotFound
	}
	s.nextPayment++
	p.ID = s.nextPayment
	c := *p
	s.payments[p.ID] = &c
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, billing.ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *billing.Payment, expected billing.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[p.ID]
	if !ok {
		return billing.ErrPaymentNotFound
	}
	if current.Status != expected {
		return billing.ErrPaymentChanged
	}
	c := *p
	s.payments[p.ID] = &c
	return nil
}

func (s *Store) DeletePayment(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[id]; !ok {
		return billing.ErrPaymentNotFound
	}
	delete(s.payments, id)
	return nil
}

func (s *Store) ListPayments(ctx context.Context, invoiceID int64) ([]*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*billing.Payment{}
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListPaymentsForInvoices(ctx context.Context, invoiceIDs []int64) (map[int64][]*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]bool, len(invoiceIDs))
	for _, id := range invoiceIDs {
		wanted[id] = true
	}
	out := make(map[int64][]*billing.Payment)
	for _, p := range s.payments {
		if wanted[p.InvoiceID] {
			c := *p
			out[p.InvoiceID] = append(out[p.InvoiceID], &c)
		}
	}
	for _, ps := range out {
		sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	}
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
