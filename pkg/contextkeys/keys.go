// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/cids/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.ClaimsKey, claims)
//	claims := ctx.Value(contextkeys.ClaimsKey).(map[string]interface{})
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ClaimsKey contains the verified claim map of the caller's token
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected API endpoints
	// Type: map[string]interface{}
	ClaimsKey Key = "token_claims"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// SubjectKey contains the authenticated subject string
	// Set by: Auth middleware after token verification
	// Used by: Logger, audit trail, token issuance
	// Type: string
	SubjectKey Key = "subject"
)

// Helper functions for type-safe context operations

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims map[string]interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSubject adds the authenticated subject to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

// GetClaims retrieves verified token claims from context
func GetClaims(ctx context.Context) map[string]interface{} {
	if claims, ok := ctx.Value(ClaimsKey).(map[string]interface{}); ok {
		return claims
	}
	return nil
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSubject retrieves the authenticated subject from context
func GetSubject(ctx context.Context) string {
	if subject, ok := ctx.Value(SubjectKey).(string); ok {
		return subject
	}
	return ""
}
