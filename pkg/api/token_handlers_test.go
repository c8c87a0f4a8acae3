package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cids/pkg/claims"
	"github.com/platinummonkey/cids/pkg/idp"
	"github.com/platinummonkey/cids/pkg/policy"
)

// seedIdentity wires an authenticating user whose group grants the viewer
// role on hr-portal.
func seedIdentity(t *testing.T, env *testEnv) {
	t.Helper()
	env.discover(t, "hr-portal")
	env.do(t, "POST", "/api/v1/apps/hr-portal/roles", RoleRequest{
		Name:               "viewer",
		AllowedPermissions: []string{"hr-portal.api_employees.read.name"},
	})
	env.mappings.Set("engineering", policy.RoleMapping{"hr-portal": {"viewer"}})
	env.idp.Add("correct-horse", idp.Identity{
		Subject: "u-100",
		Email:   "jordan@example.com",
		Groups:  []string{"engineering"},
	})
}

func issuePair(t *testing.T, env *testEnv) TokenPairResponse {
	t.Helper()
	w := env.do(t, "POST", "/api/v1/tokens", IssueTokenRequest{Credential: "correct-horse"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pair TokenPairResponse
	decode(t, w, &pair)
	return pair
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)

	pair := issuePair(t, env)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Greater(t, pair.ExpiresInSeconds, int64(0))

	// The access token carries the resolved roles and permissions.
	w := env.do(t, "POST", "/api/v1/tokens/validate", ValidateTokenRequest{Token: pair.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Valid  bool                   `json:"valid"`
		Claims map[string]interface{} `json:"claims"`
	}
	decode(t, w, &resp)
	require.True(t, resp.Valid)
	assert.Equal(t, "u-100", resp.Claims[claims.ClaimSubject])
	assert.Equal(t, float64(claims.TokenVersion), resp.Claims[claims.ClaimTokenVersion])
	assert.NotNil(t, resp.Claims[claims.ClaimPermissions])
}

func TestIssueTokenBadCredential(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)

	w := env.do(t, "POST", "/api/v1/tokens", IssueTokenRequest{Credential: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenMissingCredential(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/tokens", IssueTokenRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueTokenWithIPBinding(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)

	w := env.do(t, "POST", "/api/v1/tokens", IssueTokenRequest{
		Credential: "correct-horse",
		BindIP:     true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var pair TokenPairResponse
	decode(t, w, &pair)

	w = env.do(t, "POST", "/api/v1/tokens/validate", ValidateTokenRequest{Token: pair.AccessToken})
	var resp struct {
		Claims map[string]interface{} `json:"claims"`
	}
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Claims[claims.ClaimBoundIP])
}

func TestRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)
	pair := issuePair(t, env)

	w := env.do(t, "POST", "/api/v1/tokens/refresh", RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rotated TokenPairResponse
	decode(t, w, &rotated)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)
	pair := issuePair(t, env)

	w := env.do(t, "POST", "/api/v1/tokens/refresh", RefreshTokenRequest{RefreshToken: pair.AccessToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshTokenReplayDetected(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)
	pair := issuePair(t, env)

	// First rotation succeeds.
	w := env.do(t, "POST", "/api/v1/tokens/refresh", RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	// Replaying the consumed token is rejected and revokes the lineage.
	w = env.do(t, "POST", "/api/v1/tokens/refresh", RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "reuse detected")
}

func TestRevokeToken(t *testing.T) {
	env := newTestEnv(t)
	seedIdentity(t, env)
	pair := issuePair(t, env)

	w := env.do(t, "POST", "/api/v1/tokens/revoke", RevokeTokenRequest{Token: pair.AccessToken})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "POST", "/api/v1/tokens/validate", ValidateTokenRequest{Token: pair.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Valid bool `json:"valid"`
	}
	decode(t, w, &resp)
	assert.False(t, resp.Valid)
}

func TestValidateGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/tokens/validate", ValidateTokenRequest{Token: "not-a-jwt"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Valid bool `json:"valid"`
	}
	decode(t, w, &resp)
	assert.False(t, resp.Valid)
}
