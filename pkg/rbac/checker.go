package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/krama-desa/iuran/pkg/contextkeys"
)

// ErrForbidden is returned when an actor lacks a permission.
var ErrForbidden = errors.New("forbidden")

// PermissionDeniedError carries the permission that was missing.
type PermissionDeniedError struct {
	Actor      Actor
	Permission Permission
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s: %s lacks %s", ErrForbidden, e.Actor, e.Permission)
}

func (e *PermissionDeniedError) Unwrap() error {
	return ErrForbidden
}

// matrix is the static permission table. Members may submit and edit their own
// resident records and read billing data; everything else is staff-only.
var matrix = map[Role][]Permission{
	RoleAdmin: {
		{ResourceResident, ActionCreate},
		{ResourceResident, ActionRead},
		{ResourceResident, ActionUpdate},
		{ResourceResident, ActionDelete},
		{ResourceResident, ActionValidate},
		{ResourceResident, ActionForce},
		{ResourceTier, ActionCreate},
		{ResourceTier, ActionRead},
		{ResourceTier, ActionUpdate},
		{ResourceTier, ActionDelete},
		{ResourceInvoice, ActionCreate},
		{ResourceInvoice, ActionRead},
		{ResourceInvoice, ActionUpdate},
		{ResourceInvoice, ActionDelete},
		{ResourceBilling, ActionCreate},
		{ResourcePayment, ActionCreate},
		{ResourcePayment, ActionRead},
		{ResourcePayment, ActionUpdate},
		{ResourcePayment, ActionDelete},
	},
	RoleOperator: {
		{ResourceResident, ActionCreate},
		{ResourceResident, ActionRead},
		{ResourceResident, ActionUpdate},
		{ResourceResident, ActionValidate},
		{ResourceTier, ActionRead},
		{ResourceInvoice, ActionCreate},
		{ResourceInvoice, ActionRead},
		{ResourceInvoice, ActionUpdate},
		{ResourceBilling, ActionCreate},
		{ResourcePayment, ActionCreate},
		{ResourcePayment, ActionRead},
		{ResourcePayment, ActionUpdate},
		{ResourcePayment, ActionDelete},
	},
	RoleMember: {
		{ResourceResident, ActionCreate},
		{ResourceResident, ActionRead},
		{ResourceResident, ActionUpdate},
		{ResourceTier, ActionRead},
		{ResourceInvoice, ActionRead},
		{ResourcePayment, ActionRead},
	},
}

// Can reports whether the actor's role grants the permission.
func Can(actor Actor, perm Permission) bool {
	for _, p := range matrix[actor.Role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Require returns a *PermissionDeniedError when the actor lacks the permission.
func Require(actor Actor, resource Resource, action Action) error {
	perm := Permission{Resource: resource, Action: action}
	if !Can(actor, perm) {
		return &PermissionDeniedError{Actor: actor, Permission: perm}
	}
	return nil
}

// EffectivePermissions lists every permission granted to a role.
func EffectivePermissions(role Role) []Permission {
	out := make([]Permission, len(matrix[role]))
	copy(out, matrix[role])
	return out
}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextkeys.ActorKey, actor)
}

// ActorFromContext returns the actor set by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextkeys.ActorKey).(Actor)
	return actor, ok
}
