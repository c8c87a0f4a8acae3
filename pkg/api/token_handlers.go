package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/platinummonkey/cids/pkg/claims"
	"github.com/platinummonkey/cids/pkg/httputil"
	"github.com/platinummonkey/cids/pkg/idp"
	"github.com/platinummonkey/cids/pkg/policy"
	"github.com/platinummonkey/cids/pkg/tokens"
)

// IssueTokenRequest exchanges an identity-provider credential for a token
// pair. The optional target narrows the claims to one application.
type IssueTokenRequest struct {
	Credential  string `json:"credential"`
	TargetAppID string `json:"target_app_id,omitempty"`
	BindIP      bool   `json:"bind_ip,omitempty"`
	BindDevice  string `json:"bind_device,omitempty"`
}

// TokenPairResponse carries a freshly issued token pair.
type TokenPairResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresInSeconds int64  `json:"expires_in"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Credential, "credential") {
		return
	}

	identity, err := s.identities.Authenticate(r.Context(), req.Credential)
	if err != nil {
		if errors.Is(err, idp.ErrUnknownIdentity) {
			httputil.WriteUnauthorized(w, "authentication failed")
			return
		}
		s.logger.WithError(err).Error("identity provider error")
		httputil.WriteUnauthorized(w, "authentication failed")
		return
	}

	binding := claims.Binding{Device: req.BindDevice}
	if req.BindIP {
		binding.IP = clientIP(r)
	}

	composed, err := s.composer.Compose(r.Context(), policy.User{
		Subject: identity.Subject,
		Email:   identity.Email,
		Groups:  identity.Groups,
	}, req.TargetAppID, binding)
	if err != nil {
		s.logger.WithError(err).WithField("subject", identity.Subject).Error("claims composition failed")
		httputil.WriteInternalError(w, errors.New("claims composition failed"))
		return
	}

	pair, err := s.tokenMgr.Issue(r.Context(), composed)
	if err != nil {
		s.logger.WithError(err).WithField("subject", identity.Subject).Error("token issuance failed")
		httputil.WriteInternalError(w, errors.New("token issuance failed"))
		return
	}

	httputil.WriteCreated(w, tokenPairResponse(pair))
}

// RefreshTokenRequest rotates a refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RefreshToken, "refresh_token") {
		return
	}

	pair, err := s.tokenMgr.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrReplayDetected):
			httputil.WriteUnauthorized(w, "refresh token reuse detected")
		case errors.Is(err, tokens.ErrTokenRevoked):
			httputil.WriteUnauthorized(w, "token revoked")
		case errors.Is(err, tokens.ErrNotRefreshToken):
			httputil.WriteBadRequest(w, "not a refresh token")
		default:
			httputil.WriteUnauthorized(w, "invalid refresh token")
		}
		return
	}

	httputil.WriteSuccess(w, tokenPairResponse(pair))
}

// RevokeTokenRequest revokes one token.
type RevokeTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	if err := s.tokenMgr.Revoke(r.Context(), req.Token); err != nil {
		httputil.WriteBadRequest(w, "invalid token")
		return
	}
	httputil.WriteNoContent(w)
}

// ValidateTokenRequest verifies a token and returns its claims.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) validateToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	verified, err := s.tokenMgr.Validate(r.Context(), req.Token)
	if err != nil {
		httputil.WriteSuccess(w, map[string]interface{}{"valid": false})
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"valid":  true,
		"claims": verified,
	})
}

func tokenPairResponse(pair *tokens.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresInSeconds: int64(time.Until(pair.AccessExpiresAt).Round(time.Second).Seconds()),
	}
}
