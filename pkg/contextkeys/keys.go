// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so key usage is
// discoverable and values cannot collide:
//
//	ctx = contextkeys.WithUser(ctx, user)
//	user, ok := contextkeys.GetUser(ctx).(*identity.User)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains *identity.User
	// Set by: api.Server authentication middleware
	// Required by: every authenticated API handler
	UserKey Key = "user"

	// RequestIDKey contains request ID string (UUID)
	// Set by: api.Server request id middleware
	// Used by: logger enrichment, error responses
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's id
	// Set by: api.Server authentication middleware
	// Used by: logger enrichment
	UserIDKey Key = "user_id"

	// LoggerKey contains logrus.FieldLogger
	// Set by: observability.WithLogger
	// Used by: observability.FromContext
	LoggerKey Key = "logger"

	// DecisionKey contains authz.Decision
	// Set by: the authorization interceptor of authz.Gateway
	// Used by: operation bodies that need the caller's role or effective permissions
	DecisionKey Key = "authz_decision"
)

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUser returns the authenticated user, or nil
func GetUser(ctx context.Context) interface{} {
	return ctx.Value(UserKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
