// Package api is the HTTP JSON surface of the dues engine.
//
// The API sits behind a gateway that authenticates users and forwards the
// identity as X-Actor-ID, X-Actor-Role (admin, operator or member) and
// optionally X-Actor-Name. Authorization is enforced by the services.
//
// # Routes
//
//	POST   /residents                        submit a resident record (PENDING)
//	GET    /residents                        ?status=&family_role=&banjar_id=&tier_id=&limit=&offset=
//	GET    /residents/{id}
//	PUT    /residents/{id}                   ordinary edit; 409 while APPROVED
//	PUT    /residents/{id}/force-update      admin override
//	POST   /residents/{id}/approve
//	POST   /residents/{id}/reject            {"reason": "..."}
//	DELETE /residents/{id}
//
//	POST   /tiers, GET /tiers, GET|PUT|DELETE /tiers/{id}
//
//	POST   /invoices                         {"resident_id", "period": "2025-03", "peturunan", "dedosan"}
//	GET    /invoices                         ?resident_id=&period=&source=&limit=&offset=
//	GET|PUT|DELETE /invoices/{id}
//	GET    /invoices/{id}/status             paid, partial or unpaid
//	GET    /invoices/{id}/reconciliation
//	POST   /invoices/{id}/payments
//	GET    /invoices/{id}/payments
//	PUT    /payments/{id}/status
//	DELETE /payments/{id}
//	GET    /periods/{period}/summary
//
//	POST   /bulk/preview                     dry run, returns the preview ID
//	POST   /bulk/commit                      commit reviewed lines
//	POST   /bulk/previews/{preview_id}/commit
//
// # Errors
//
// Errors are JSON objects with "error", "code" and optional "details":
//
//	400 invalid_input        malformed body or failed field rules
//	401 unauthenticated      missing or invalid identity headers
//	403 forbidden            the role lacks the permission
//	404 not_found
//	409 record_locked        ordinary edit of an APPROVED resident
//	409 conflict             duplicates and records still referenced
//	422 invalid_transition   refused approve or reject
//	422 ineligible_resident  resident cannot be invoiced; details.reason says why
//	429 rate_limited         the actor exceeded its request quota; see Retry-After
package api
