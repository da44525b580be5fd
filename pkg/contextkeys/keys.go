// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on a single typed key.
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains rbac.Actor
	// Set by: api actor middleware from the gateway identity headers
	// Required by: every service call made from an HTTP handler
	ActorKey Key = "actor"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// RequestMetaKey contains audit.RequestMeta
	// Set by: audit.Middleware
	// Used by: audit.Trail when stamping entries
	RequestMetaKey Key = "request_meta"

	// LoggerKey contains logrus.FieldLogger
	// Set by: httputil.LoggingMiddleware
	// Used by: handlers that need request-scoped logging
	LoggerKey Key = "logger"
)
