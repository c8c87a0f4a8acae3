package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cids/pkg/claims"
)

type fakeValidator struct {
	claims map[string]interface{}
	err    error
	tokens []string
}

func (f *fakeValidator) Validate(_ context.Context, token string) (map[string]interface{}, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func okHandler(seen *map[string]interface{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = GetClaims(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	validator := &fakeValidator{claims: map[string]interface{}{
		claims.ClaimSubject: "u-100",
		claims.ClaimEmail:   "jordan@example.com",
	}}
	mw := NewAuthMiddleware(validator, false)

	var seen map[string]interface{}
	var subject string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r)
		subject = GetSubject(r)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/apps", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u-100", seen[claims.ClaimSubject])
	assert.Equal(t, "u-100", subject)
	assert.Equal(t, []string{"good-token"}, validator.tokens)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{}, false)
	handler := mw.Handler(okHandler(nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/apps", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestAuthMiddleware_MissingHeaderOptional(t *testing.T) {
	validator := &fakeValidator{}
	mw := NewAuthMiddleware(validator, true)
	handler := mw.Handler(okHandler(nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/apps", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, validator.tokens)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{}, false)
	handler := mw.Handler(okHandler(nil))

	for _, header := range []string{"good-token", "Basic dXNlcjpwYXNz"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/apps", nil)
		req.Header.Set("Authorization", header)
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	mw := NewAuthMiddleware(&fakeValidator{err: errors.New("expired")}, false)
	handler := mw.Handler(okHandler(nil))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/apps", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired token")
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		claims     map[string]interface{}
		expectCode int
	}{
		{
			name:       "no claims",
			claims:     nil,
			expectCode: http.StatusForbidden,
		},
		{
			name: "typed permission map",
			claims: map[string]interface{}{
				claims.ClaimPermissions: map[string][]string{
					"hr-portal": {"hr-portal.api_employees.read.name"},
				},
			},
			expectCode: http.StatusOK,
		},
		{
			name: "decoded permission map",
			claims: map[string]interface{}{
				claims.ClaimPermissions: map[string]interface{}{
					"hr-portal": []interface{}{"hr-portal.api_employees.read.name"},
				},
			},
			expectCode: http.StatusOK,
		},
		{
			name: "missing key",
			claims: map[string]interface{}{
				claims.ClaimPermissions: map[string][]string{
					"hr-portal": {"hr-portal.api_employees.read.title"},
				},
			},
			expectCode: http.StatusForbidden,
		},
		{
			name: "wrong app",
			claims: map[string]interface{}{
				claims.ClaimPermissions: map[string][]string{
					"billing": {"hr-portal.api_employees.read.name"},
				},
			},
			expectCode: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mw *AuthMiddleware
			if tt.claims != nil {
				mw = NewAuthMiddleware(&fakeValidator{claims: tt.claims}, false)
			} else {
				mw = NewAuthMiddleware(&fakeValidator{}, true)
			}

			handler := mw.Handler(
				RequirePermission("hr-portal", "hr-portal.api_employees.read.name")(okHandler(nil)),
			)

			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/employees", nil)
			if tt.claims != nil {
				req.Header.Set("Authorization", "Bearer some-token")
			}
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectCode, w.Code)
		})
	}
}
