package residents

import (
	"strings"

	"github.com/krama-desa/iuran/pkg/rbac"
)

// EditPath distinguishes self-service edits from the administrator override
type EditPath int

const (
	// PathOrdinary is used by owners and staff; approved records are frozen
	PathOrdinary EditPath = iota
	// PathPrivileged is the administrator override; it never changes status
	PathPrivileged
)

func (p EditPath) String() string {
	if p == PathPrivileged {
		return "privileged"
	}
	return "ordinary"
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusRejected: {StatusPending},
}

// CanTransition reports whether from -> to is an edge of the validation workflow
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanEdit is the single authorization predicate for every edit entry point.
// On the ordinary path an APPROVED record is locked for everyone; members may
// only touch records they submitted. The privileged path is open to
// administrators only and ignores status.
func CanEdit(r *Resident, actor rbac.Actor, path EditPath) error {
	if path == PathPrivileged {
		if !actor.IsAdmin() {
			return &rbac.PermissionDeniedError{
				Actor:      actor,
				Permission: rbac.Permission{Resource: rbac.ResourceResident, Action: rbac.ActionForce},
			}
		}
		return nil
	}

	if r.Status != StatusPending && r.Status != StatusRejected {
		return ErrRecordLocked
	}
	if !actor.Role.IsStaff() && !actor.Owns(r.OwnerUserID) {
		return &rbac.PermissionDeniedError{
			Actor:      actor,
			Permission: rbac.Permission{Resource: rbac.ResourceResident, Action: rbac.ActionUpdate},
		}
	}
	return nil
}

// transition moves r to the target status, enforcing the workflow edges and the
// reason requirement for rejections. The reason is kept only on REJECTED.
func transition(r *Resident, to Status, reason string) error {
	if !CanTransition(r.Status, to) {
		return &InvalidTransitionError{From: r.Status, To: to, Reason: "not allowed"}
	}

	reason = strings.TrimSpace(reason)
	if to == StatusRejected {
		if reason == "" {
			return &InvalidTransitionError{From: r.Status, To: to, Reason: "rejection reason is required"}
		}
		r.RejectionReason = reason
	} else {
		r.RejectionReason = ""
	}
	r.Status = to
	return nil
}
