package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/registry"
)

// User is the authenticated identity whose grants are being resolved.
type User struct {
	Subject string
	Email   string
	Groups  []string
}

// GrantSource is the registry view the resolver reads. It always reflects
// the last persisted permission and role state; resolution never triggers
// discovery.
type GrantSource interface {
	GetEffectivePermissions(ctx context.Context, appID string, roleNames []string) ([]string, error)
	GetRoleRLSFilters(ctx context.Context, appID string, roleNames []string) (registry.RLSFilters, error)
}

// EffectiveGrant is the computed grant for one user in one application.
// Grants are derived on demand and never persisted.
type EffectiveGrant struct {
	AppID       string
	Roles       []string
	Permissions []string
	RLSFilters  registry.RLSFilters
}

// Resolver turns group memberships into per-application effective grants.
type Resolver struct {
	mappings *MappingTable
	grants   GrantSource
	abac     ABACEvaluator
	logger   *observability.Logger
}

// NewResolver creates a policy resolver. A nil evaluator installs the
// unimplemented ABAC placeholder.
func NewResolver(mappings *MappingTable, grants GrantSource, abac ABACEvaluator, logger *observability.Logger) *Resolver {
	if abac == nil {
		abac = UnimplementedABAC{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Resolver{mappings: mappings, grants: grants, abac: abac, logger: logger}
}

// Resolve computes the user's effective grants, sorted by application ID.
// When targetAppID is non-empty the resolution is narrowed to that
// application; a user with no roles there resolves to an empty grant list.
func (r *Resolver) Resolve(ctx context.Context, user User, targetAppID string) ([]EffectiveGrant, error) {
	rolesByApp := r.mappings.RolesFor(user.Groups)

	appIDs := make([]string, 0, len(rolesByApp))
	for appID := range rolesByApp {
		if targetAppID != "" && appID != targetAppID {
			continue
		}
		appIDs = append(appIDs, appID)
	}
	sort.Strings(appIDs)

	grants := make([]EffectiveGrant, 0, len(appIDs))
	for _, appID := range appIDs {
		roles := rolesByApp[appID]

		perms, err := r.grants.GetEffectivePermissions(ctx, appID, roles)
		if err != nil {
			return nil, fmt.Errorf("resolving permissions for app %s: %w", appID, err)
		}
		filters, err := r.grants.GetRoleRLSFilters(ctx, appID, roles)
		if err != nil {
			return nil, fmt.Errorf("resolving rls filters for app %s: %w", appID, err)
		}

		extra, err := r.abac.Evaluate(ctx, user, appID)
		switch {
		case errors.Is(err, ErrNotImplemented):
			r.logger.WithField("app_id", appID).Debug("abac evaluation unavailable, contributing no permissions")
		case err != nil:
			return nil, fmt.Errorf("abac evaluation for app %s: %w", appID, err)
		default:
			perms = mergeKeys(perms, extra)
		}

		grants = append(grants, EffectiveGrant{
			AppID:       appID,
			Roles:       roles,
			Permissions: perms,
			RLSFilters:  filters,
		})
	}
	return grants, nil
}

// mergeKeys unions two sorted key lists, deduplicating.
func mergeKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
