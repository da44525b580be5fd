// Package rbac provides role-based access control for the dues engine.
//
// # Overview
//
// Three roles exist: administrator, operator and member. Permissions are
// resource + action pairs ("invoice:create", "resident:validate") held in a
// static matrix; there is no per-user role storage because identity comes from
// the authentication layer in front of the API.
//
// # Usage Example
//
//	if err := rbac.Require(actor, rbac.ResourceInvoice, rbac.ActionCreate); err != nil {
//		return nil, err // errors.Is(err, rbac.ErrForbidden)
//	}
//
// # Related Packages
//
//   - pkg/residents: ownership rules on top of role permissions
//   - pkg/api: actor extraction from request headers
package rbac
