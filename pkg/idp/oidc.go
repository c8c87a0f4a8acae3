package idp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures the OIDC identity adapter.
type OIDCConfig struct {
	IssuerURL  string
	ClientID   string
	GroupClaim string // claim carrying group memberships, default "groups"
}

// OIDCProvider verifies OIDC ID tokens against the issuer's published keys
// and extracts the identity and group memberships. The authorization-code
// dance happens at the identity provider; CIDS only consumes the resulting
// ID token.
type OIDCProvider struct {
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	groupClaim string
}

// NewOIDCProvider discovers the issuer and builds an ID token verifier.
func NewOIDCProvider(ctx context.Context, config OIDCConfig) (*OIDCProvider, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if config.GroupClaim == "" {
		config.GroupClaim = "groups"
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCProvider{
		provider:   provider,
		verifier:   provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		groupClaim: config.GroupClaim,
	}, nil
}

// Authenticate implements Provider for a raw ID token.
func (p *OIDCProvider) Authenticate(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	identity := &Identity{
		Subject: idToken.Subject,
		Email:   getStringValue(claims, "email"),
		Name:    getStringValue(claims, "name"),
		Groups:  getArrayValue(claims, p.groupClaim),
	}
	if identity.Subject == "" {
		return nil, fmt.Errorf("missing subject in ID token")
	}
	return identity, nil
}

// UserInfo fetches the issuer's userinfo for an access token, merging any
// groups published there over the ID token's.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token, identity *Identity) error {
	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return fmt.Errorf("fetching userinfo: %w", err)
	}

	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return fmt.Errorf("parsing userinfo claims: %w", err)
	}

	if email := getStringValue(claims, "email"); email != "" {
		identity.Email = email
	}
	if groups := getArrayValue(claims, p.groupClaim); len(groups) > 0 {
		identity.Groups = groups
	}
	return nil
}

func getStringValue(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// getArrayValue extracts a string list claim, tolerating both JSON array
// and single-string encodings.
func getArrayValue(claims map[string]interface{}, key string) []string {
	switch v := claims[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
