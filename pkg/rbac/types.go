package rbac

import (
	"fmt"
	"strings"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceResident Resource = "resident"
	ResourceTier     Resource = "membership_tier"
	ResourceInvoice  Resource = "invoice"
	ResourcePayment  Resource = "payment"
	ResourceBilling  Resource = "bulk_billing"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate   Action = "create"
	ActionRead     Action = "read"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionValidate Action = "validate" // approve or reject
	ActionForce    Action = "force"    // privileged edit path
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Role is one of the three association roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleMember   Role = "member"
)

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOperator:
		return RoleOperator, nil
	case RoleMember:
		return RoleMember, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsStaff reports whether the role belongs to association staff (admin or operator).
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleOperator
}

// Actor identifies who is performing an operation.
type Actor struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

// SystemActor is used by batch triggers that act on behalf of the association.
func SystemActor(name string) Actor {
	return Actor{UserID: 0, Name: name, Role: RoleOperator}
}

// IsAdmin reports whether the actor is an administrator
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor is the given owner.
func (a Actor) Owns(ownerUserID *int64) bool {
	return ownerUserID != nil && *ownerUserID == a.UserID
}

func (a Actor) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s#%d(%s)", a.Name, a.UserID, a.Role)
	}
	return fmt.Sprintf("user#%d(%s)", a.UserID, a.Role)
}
