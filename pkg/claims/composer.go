package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/policy"
	"github.com/platinummonkey/cids/pkg/registry"
)

const (
	// TokenVersion is the claims-format version stamped into every token.
	TokenVersion = 2

	// AccessTokenTTL is the lifetime handed to the signer for access tokens.
	AccessTokenTTL = 10 * time.Minute
)

// Claim key names as they appear in issued tokens.
const (
	ClaimSubject      = "sub"
	ClaimEmail        = "email"
	ClaimRoles        = "roles"
	ClaimPermissions  = "permissions"
	ClaimRLSFilters   = "rls_filters"
	ClaimBoundIP      = "bound_ip"
	ClaimBoundDevice  = "bound_device"
	ClaimTokenVersion = "token_version"
)

// Binding carries the request-level security bindings embedded in a token.
// Binding claims survive template filtering unconditionally.
type Binding struct {
	IP     string
	Device string
}

// Resolver is the policy view the composer needs.
type Resolver interface {
	Resolve(ctx context.Context, user policy.User, targetAppID string) ([]policy.EffectiveGrant, error)
}

// Composer assembles the claim map for issued tokens.
type Composer struct {
	resolver  Resolver
	templates *TemplateStore
	logger    *observability.Logger
}

// NewComposer creates a claims composer. A nil template store disables
// template filtering entirely.
func NewComposer(resolver Resolver, templates *TemplateStore, logger *observability.Logger) *Composer {
	if templates == nil {
		templates = NewTemplateStore()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Composer{resolver: resolver, templates: templates, logger: logger}
}

// Compose resolves the user's grants and builds the claim map to be signed.
// targetAppID narrows the claims to one application; empty covers every
// application the user holds roles in. The result reflects the registry's
// last persisted state only.
func (c *Composer) Compose(ctx context.Context, user policy.User, targetAppID string, binding Binding) (map[string]interface{}, error) {
	grants, err := c.resolver.Resolve(ctx, user, targetAppID)
	if err != nil {
		return nil, fmt.Errorf("resolving grants for %s: %w", user.Subject, err)
	}

	roles := make(map[string][]string, len(grants))
	permissions := make(map[string][]string, len(grants))
	rlsFilters := make(map[string]registry.RLSFilters)
	for _, g := range grants {
		roles[g.AppID] = g.Roles
		permissions[g.AppID] = g.Permissions
		if len(g.RLSFilters) > 0 {
			rlsFilters[g.AppID] = g.RLSFilters
		}
	}

	out := map[string]interface{}{
		ClaimSubject:      user.Subject,
		ClaimRoles:        roles,
		ClaimPermissions:  permissions,
		ClaimTokenVersion: TokenVersion,
	}
	if user.Email != "" {
		out[ClaimEmail] = user.Email
	}
	if len(rlsFilters) > 0 {
		out[ClaimRLSFilters] = rlsFilters
	}
	if binding.IP != "" {
		out[ClaimBoundIP] = binding.IP
	}
	if binding.Device != "" {
		out[ClaimBoundDevice] = binding.Device
	}

	if tmpl, ok := c.templates.Match(user.Groups); ok {
		out = applyTemplate(out, tmpl)
		c.logger.WithFields(map[string]interface{}{
			"subject":  user.Subject,
			"template": tmpl.Name,
		}).Debug("token template applied")
	}
	return out, nil
}

// applyTemplate drops claim keys absent from the template's whitelist.
// Identity, version and security-binding claims are always kept.
func applyTemplate(claims map[string]interface{}, tmpl Template) map[string]interface{} {
	keep := map[string]struct{}{
		ClaimSubject:      {},
		ClaimTokenVersion: {},
		ClaimBoundIP:      {},
		ClaimBoundDevice:  {},
	}
	for _, key := range tmpl.Claims {
		keep[key] = struct{}{}
	}

	out := make(map[string]interface{}, len(claims))
	for key, value := range claims {
		if _, ok := keep[key]; ok {
			out[key] = value
		}
	}
	return out
}
