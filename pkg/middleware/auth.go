package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/cids/pkg/claims"
	"github.com/platinummonkey/cids/pkg/contextkeys"
	"github.com/platinummonkey/cids/pkg/httputil"
)

// TokenValidator verifies a bearer token and returns its claims.
// Implemented by tokens.Manager.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (map[string]interface{}, error)
}

// AuthMiddleware provides bearer-token authentication
type AuthMiddleware struct {
	validator TokenValidator
	optional  bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		optional:  optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		tokenClaims, err := m.validator.Validate(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithClaims(r.Context(), tokenClaims)
		if subject, ok := tokenClaims[claims.ClaimSubject].(string); ok {
			ctx = contextkeys.WithSubject(ctx, subject)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts verified token claims from the request
func GetClaims(r *http.Request) map[string]interface{} {
	return contextkeys.GetClaims(r.Context())
}

// GetSubject extracts the authenticated subject from the request
func GetSubject(r *http.Request) string {
	return contextkeys.GetSubject(r.Context())
}

// RequirePermission creates middleware that checks the caller's claims
// for a permission key granted on the given app. Permission claims are
// exact keys, so callers holding only an ancestor wildcard should be
// routed through the permission-check endpoint instead.
func RequirePermission(appID, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenClaims := GetClaims(r)
			if tokenClaims == nil {
				httputil.WriteForbidden(w, "authentication required")
				return
			}

			if !hasPermission(tokenClaims, appID, key) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasPermission(tokenClaims map[string]interface{}, appID, key string) bool {
	perms, ok := tokenClaims[claims.ClaimPermissions]
	if !ok {
		return false
	}

	// Claims verified locally keep their Go types; claims decoded from
	// a wire token come back as generic JSON values. Accept both.
	switch typed := perms.(type) {
	case map[string][]string:
		for _, granted := range typed[appID] {
			if granted == key {
				return true
			}
		}
	case map[string]interface{}:
		appPerms, ok := typed[appID].([]interface{})
		if !ok {
			return false
		}
		for _, granted := range appPerms {
			if s, ok := granted.(string); ok && s == key {
				return true
			}
		}
	}
	return false
}
