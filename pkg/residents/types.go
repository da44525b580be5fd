package residents

import (
	"context"
	"time"
)

// Status is the validation status of a resident record
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// FamilyRole is the resident's position in the family card (KK)
type FamilyRole string

const (
	RoleHeadOfHousehold FamilyRole = "head_of_household"
	RoleSpouse          FamilyRole = "spouse"
	RoleChild           FamilyRole = "child"
	RoleOther           FamilyRole = "other"
)

// Resident is a tracked member of the banjar
type Resident struct {
	ID              int64      `json:"id"`
	NIK             string     `json:"nik" validate:"required,civil"`
	KKNumber        string     `json:"kk_number" validate:"required,civil"`
	Name            string     `json:"name" validate:"required,max=150"`
	Address         string     `json:"address,omitempty" validate:"max=500"`
	Phone           string     `json:"phone,omitempty" validate:"omitempty,max=20"`
	TierID          *int64     `json:"tier_id,omitempty"`
	BanjarID        *int64     `json:"banjar_id,omitempty"`
	FamilyRole      FamilyRole `json:"family_role" validate:"required,oneof=head_of_household spouse child other"`
	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	OwnerUserID     *int64     `json:"owner_user_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Clone returns a copy that does not share pointer fields with r
func (r *Resident) Clone() *Resident {
	c := *r
	c.TierID = clonePtr(r.TierID)
	c.BanjarID = clonePtr(r.BanjarID)
	c.OwnerUserID = clonePtr(r.OwnerUserID)
	return &c
}

// IsHeadOfHousehold reports whether the resident represents a family unit in bulk billing
func (r *Resident) IsHeadOfHousehold() bool {
	return r.FamilyRole == RoleHeadOfHousehold
}

// Input holds the editable fields of a resident record
type Input struct {
	NIK        string     `json:"nik"`
	KKNumber   string     `json:"kk_number"`
	Name       string     `json:"name"`
	Address    string     `json:"address,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	TierID     *int64     `json:"tier_id,omitempty"`
	BanjarID   *int64     `json:"banjar_id,omitempty"`
	FamilyRole FamilyRole `json:"family_role"`
}

func (in Input) applyTo(r *Resident) {
	r.NIK = in.NIK
	r.KKNumber = in.KKNumber
	r.Name = in.Name
	r.Address = in.Address
	r.Phone = in.Phone
	r.TierID = clonePtr(in.TierID)
	r.BanjarID = clonePtr(in.BanjarID)
	r.FamilyRole = in.FamilyRole
}

// Filter narrows ListResidents; zero fields are ignored
type Filter struct {
	Status      Status
	FamilyRole  FamilyRole
	BanjarID    *int64
	TierID      *int64
	OwnerUserID *int64
	Limit       int
	Offset      int
}

// Store persists residents
type Store interface {
	// CreateResident assigns ID and timestamps. Returns ErrDuplicateNIK on a NIK clash.
	CreateResident(ctx context.Context, r *Resident) error
	GetResident(ctx context.Context, id int64) (*Resident, error)
	// UpdateResident writes r only while the stored status still equals
	// expected, otherwise ErrStatusChanged.
	UpdateResident(ctx context.Context, r *Resident, expected Status) error
	// DeleteResident returns ErrResidentInUse while invoices reference the resident.
	DeleteResident(ctx context.Context, id int64) error
	ListResidents(ctx context.Context, filter Filter) ([]*Resident, error)
}

func clonePtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
