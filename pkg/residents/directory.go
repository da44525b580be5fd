package residents

import "context"

// Directory is the read-only view of residents the billing engine consumes.
type Directory struct {
	store Store
}

// NewDirectory wraps a store
func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// Lookup returns one resident regardless of status
func (d *Directory) Lookup(ctx context.Context, id int64) (*Resident, error) {
	return d.store.GetResident(ctx, id)
}

// HeadsOfHousehold returns every APPROVED head of household, one per family unit
func (d *Directory) HeadsOfHousehold(ctx context.Context) ([]*Resident, error) {
	return d.store.ListResidents(ctx, Filter{Status: StatusApproved, FamilyRole: RoleHeadOfHousehold})
}
