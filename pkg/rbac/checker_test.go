package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCan(t *testing.T) {
	admin := Actor{UserID: 1, Role: RoleAdmin}
	operator := Actor{UserID: 2, Role: RoleOperator}
	member := Actor{UserID: 3, Role: RoleMember}

	tests := []struct {
		name     string
		actor    Actor
		perm     Permission
		expected bool
	}{
		{"admin forces resident edit", admin, Permission{ResourceResident, ActionForce}, true},
		{"operator cannot force resident edit", operator, Permission{ResourceResident, ActionForce}, false},
		{"operator validates residents", operator, Permission{ResourceResident, ActionValidate}, true},
		{"member cannot validate residents", member, Permission{ResourceResident, ActionValidate}, false},
		{"member submits resident", member, Permission{ResourceResident, ActionCreate}, true},
		{"member reads invoices", member, Permission{ResourceInvoice, ActionRead}, true},
		{"member cannot create invoices", member, Permission{ResourceInvoice, ActionCreate}, false},
		{"operator runs bulk billing", operator, Permission{ResourceBilling, ActionCreate}, true},
		{"operator cannot manage tiers", operator, Permission{ResourceTier, ActionUpdate}, false},
		{"admin manages tiers", admin, Permission{ResourceTier, ActionUpdate}, true},
		{"unknown role has nothing", Actor{Role: "ghost"}, Permission{ResourceInvoice, ActionRead}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Can(tt.actor, tt.perm))
		})
	}
}

func TestRequire(t *testing.T) {
	member := Actor{UserID: 9, Name: "wayan", Role: RoleMember}

	err := Require(member, ResourcePayment, ActionCreate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))

	var denied *PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "payment:create", denied.Permission.String())
	assert.Contains(t, err.Error(), "wayan#9(member)")

	assert.NoError(t, Require(member, ResourcePayment, ActionRead))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Operator ")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, role)
	assert.True(t, role.IsStaff())

	_, err = ParseRole("kelian")
	assert.Error(t, err)
}

func TestActorContext(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), Actor{UserID: 4, Role: RoleAdmin})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.True(t, actor.IsAdmin())
}

func TestActorOwns(t *testing.T) {
	owner := int64(5)
	other := int64(6)
	actor := Actor{UserID: 5, Role: RoleMember}

	assert.True(t, actor.Owns(&owner))
	assert.False(t, actor.Owns(&other))
	assert.False(t, actor.Owns(nil))
}

func TestEffectivePermissionsIsCopy(t *testing.T) {
	perms := EffectivePermissions(RoleMember)
	require.NotEmpty(t, perms)
	perms[0] = Permission{ResourceTier, ActionDelete}
	assert.False(t, Can(Actor{Role: RoleMember}, Permission{ResourceTier, ActionDelete}))
}
