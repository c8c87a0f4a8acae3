package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/permission"
)

// Registry owns permission catalogs, role definitions and application
// records. All mutation goes through the durable store first; the in-process
// maps are a read-through cache and never the sole holder of a committed
// change.
type Registry struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	apps     map[string]*App
	catalogs map[string]map[string]permission.Metadata
	roles    map[string]map[string]*Role
}

// New creates a registry and warms its cache from the store.
func New(ctx context.Context, store Store, logger *observability.Logger, metrics *observability.Metrics) (*Registry, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	r := &Registry{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		apps:     make(map[string]*App),
		catalogs: make(map[string]map[string]permission.Metadata),
		roles:    make(map[string]map[string]*Role),
	}
	if err := r.warm(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// warm repopulates the cache from the durable store.
func (r *Registry) warm(ctx context.Context) error {
	apps, err := r.store.ListApps(ctx)
	if err != nil {
		return fmt.Errorf("warming registry cache: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, app := range apps {
		r.apps[app.ID] = app

		metas, err := r.store.GetCatalog(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("warming catalog for %s: %w", app.ID, err)
		}
		catalog := make(map[string]permission.Metadata, len(metas))
		for _, m := range metas {
			catalog[m.PermissionKey] = m
		}
		r.catalogs[app.ID] = catalog

		roles, err := r.store.ListRoles(ctx, app.ID)
		if err != nil {
			return fmt.Errorf("warming roles for %s: %w", app.ID, err)
		}
		byName := make(map[string]*Role, len(roles))
		for _, role := range roles {
			byName[role.Name] = role
		}
		r.roles[app.ID] = byName
	}
	return nil
}

// RegisterApp registers an application for discovery.
func (r *Registry) RegisterApp(ctx context.Context, app *App) error {
	if app.ID == "" {
		return fmt.Errorf("app ID is required")
	}
	if err := r.store.CreateApp(ctx, app); err != nil {
		return err
	}
	r.mu.Lock()
	cp := *app
	r.apps[app.ID] = &cp
	r.mu.Unlock()
	return nil
}

// GetApp returns one registered application.
func (r *Registry) GetApp(ctx context.Context, appID string) (*App, error) {
	r.mu.RLock()
	app, ok := r.apps[appID]
	r.mu.RUnlock()
	if ok {
		cp := *app
		return &cp, nil
	}
	return r.store.GetApp(ctx, appID)
}

// ListApps returns every registered application.
func (r *Registry) ListApps(ctx context.Context) ([]*App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*App, 0, len(r.apps))
	for _, app := range r.apps {
		cp := *app
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteApp removes an application; its catalog and roles cascade.
func (r *Registry) DeleteApp(ctx context.Context, appID string) error {
	if err := r.store.DeleteApp(ctx, appID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.apps, appID)
	delete(r.catalogs, appID)
	delete(r.roles, appID)
	r.mu.Unlock()
	return nil
}

// SetDiscoveryStatus records a discovery outcome on the application.
func (r *Registry) SetDiscoveryStatus(ctx context.Context, appID, status string, at time.Time) error {
	if err := r.store.UpdateAppDiscovery(ctx, appID, status, at); err != nil {
		return err
	}
	r.mu.Lock()
	if app, ok := r.apps[appID]; ok {
		app.DiscoveryStatus = status
		t := at
		app.LastDiscoveryAt = &t
	}
	r.mu.Unlock()
	return nil
}

// RegisterPermissions replaces the application's permission catalog
// atomically. Existing role definitions are untouched; they are revalidated
// lazily on their next write.
func (r *Registry) RegisterPermissions(ctx context.Context, appID string, metas []permission.Metadata) error {
	if err := r.store.ReplaceCatalog(ctx, appID, metas); err != nil {
		return err
	}

	catalog := make(map[string]permission.Metadata, len(metas))
	for _, m := range metas {
		catalog[m.PermissionKey] = m
	}
	r.mu.Lock()
	r.catalogs[appID] = catalog
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.PermissionsRegistered.WithLabelValues(appID).Set(float64(len(metas)))
	}
	r.logger.WithFields(map[string]interface{}{
		"app_id":      appID,
		"permissions": len(metas),
	}).Info("permission catalog registered")
	return nil
}

// GetCatalog returns the application's permission catalog ordered by key.
func (r *Registry) GetCatalog(ctx context.Context, appID string) ([]permission.Metadata, error) {
	r.mu.RLock()
	catalog, ok := r.catalogs[appID]
	r.mu.RUnlock()
	if !ok {
		return r.store.GetCatalog(ctx, appID)
	}
	out := make([]permission.Metadata, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionKey < out[j].PermissionKey })
	return out, nil
}

// RoleInput is an administrator's role write request.
type RoleInput struct {
	AllowedPermissions []string
	DeniedPermissions  []string
	RLSFilters         RLSFilters
	Description        string
}

// CreateOrUpdateRole validates the requested permission keys against the
// application's current catalog and writes the role. Rejected keys are
// dropped and logged, not an error, to tolerate catalog drift between
// discovery runs. The accepted allowed and denied key sets are returned.
func (r *Registry) CreateOrUpdateRole(ctx context.Context, appID, roleName string, input RoleInput) (validAllowed, validDenied []string, err error) {
	if roleName == "" {
		return nil, nil, fmt.Errorf("role name is required")
	}
	if _, err := r.GetApp(ctx, appID); err != nil {
		return nil, nil, fmt.Errorf("validating role target app: %w", err)
	}

	validAllowed = r.validateKeys(appID, roleName, input.AllowedPermissions)
	validDenied = r.validateKeys(appID, roleName, input.DeniedPermissions)

	role := &Role{
		AppID:              appID,
		Name:               roleName,
		AllowedPermissions: validAllowed,
		DeniedPermissions:  validDenied,
		RLSFilters:         input.RLSFilters.Clone(),
		Description:        input.Description,
		IsActive:           true,
	}
	if err := r.store.UpsertRole(ctx, role); err != nil {
		if r.metrics != nil {
			r.metrics.RoleWritesTotal.WithLabelValues("error").Inc()
		}
		return nil, nil, err
	}

	r.mu.Lock()
	if r.roles[appID] == nil {
		r.roles[appID] = make(map[string]*Role)
	}
	r.roles[appID][roleName] = role
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RoleWritesTotal.WithLabelValues("success").Inc()
	}
	return validAllowed, validDenied, nil
}

// validateKeys filters a requested key list down to the keys acceptable for
// the application: exact catalog matches, wildcards covering at least one
// catalog key, and category-suffix keys. Frontend-style ":" separators are
// normalized first. Duplicates collapse to one entry.
func (r *Registry) validateKeys(appID, roleName string, requested []string) []string {
	r.mu.RLock()
	catalog := r.catalogs[appID]
	r.mu.RUnlock()

	seen := make(map[string]struct{}, len(requested))
	var out []string
	for _, raw := range requested {
		key := permission.Normalize(raw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if !r.keyAcceptable(catalog, key) {
			r.logger.WithFields(map[string]interface{}{
				"app_id": appID,
				"role":   roleName,
				"key":    raw,
			}).Warn("rejected unknown permission key")
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) keyAcceptable(catalog map[string]permission.Metadata, key string) bool {
	// Exact catalog match.
	if _, ok := catalog[key]; ok {
		return true
	}

	// Wildcards are accepted when they cover at least one catalog key.
	if strings.HasSuffix(key, "."+permission.Wildcard) || key == permission.Wildcard {
		for catKey := range catalog {
			if permission.Covers(key, catKey) {
				return true
			}
		}
		return false
	}

	// Category permissions (app.resource.<category>) are synthesized from
	// sensitivity flags rather than stored as catalog rows. Compatibility
	// accommodation for catalogs holding only base/wildcard rows.
	parsed, err := permission.Parse(key)
	if err != nil {
		return false
	}
	if _, ok := parsed.CategorySuffix(); ok {
		return true
	}
	return false
}

// GetRole retrieves one role.
func (r *Registry) GetRole(ctx context.Context, appID, name string) (*Role, error) {
	r.mu.RLock()
	role, ok := r.roles[appID][name]
	r.mu.RUnlock()
	if ok {
		cp := *role
		cp.RLSFilters = role.RLSFilters.Clone()
		return &cp, nil
	}
	return r.store.GetRole(ctx, appID, name)
}

// ListRoles returns every role for the application.
func (r *Registry) ListRoles(ctx context.Context, appID string) ([]*Role, error) {
	r.mu.RLock()
	byName, ok := r.roles[appID]
	r.mu.RUnlock()
	if !ok {
		return r.store.ListRoles(ctx, appID)
	}
	out := make([]*Role, 0, len(byName))
	for _, role := range byName {
		cp := *role
		cp.RLSFilters = role.RLSFilters.Clone()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteRole removes one role together with its permission and RLS rows.
func (r *Registry) DeleteRole(ctx context.Context, appID, name string) error {
	if err := r.store.DeleteRole(ctx, appID, name); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.roles[appID], name)
	r.mu.Unlock()
	return nil
}

// GetEffectivePermissions returns the union of allowed permissions across
// the given roles minus every key covered by the union of denied
// permissions. Denials override allows across roles, and denial matching is
// wildcard-aware: a denied wildcard subtracts every allowed key it covers.
func (r *Registry) GetEffectivePermissions(ctx context.Context, appID string, roleNames []string) ([]string, error) {
	allowed, denied, err := r.collectGrantSets(ctx, appID, roleNames)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(allowed))
	for key := range allowed {
		if permission.MatchesAny(denied, key) {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// CheckPermission reports whether the given roles collectively grant the
// permission key, honoring ancestor wildcards on both the allow and deny
// sides.
func (r *Registry) CheckPermission(ctx context.Context, appID string, roleNames []string, key string) (bool, error) {
	effective, err := r.GetEffectivePermissions(ctx, appID, roleNames)
	if err != nil {
		return false, err
	}
	set := make(map[string]struct{}, len(effective))
	for _, k := range effective {
		set[k] = struct{}{}
	}
	allowed := permission.MatchesAny(set, key)
	if r.metrics != nil {
		r.metrics.PermissionChecksTotal.WithLabelValues(fmt.Sprintf("%t", allowed)).Inc()
	}
	return allowed, nil
}

// GetRoleRLSFilters merges the row-level-security filters of the given
// roles. Clause lists for the same (resource, field) are concatenated in
// role-name order; no role's filter is dropped.
func (r *Registry) GetRoleRLSFilters(ctx context.Context, appID string, roleNames []string) (RLSFilters, error) {
	merged := make(RLSFilters)
	for _, name := range sortedCopy(roleNames) {
		role, err := r.GetRole(ctx, appID, name)
		if err != nil {
			continue // unknown roles contribute nothing
		}
		if !role.IsActive {
			continue
		}
		merged = merged.Merge(role.RLSFilters)
	}
	return merged, nil
}

func (r *Registry) collectGrantSets(ctx context.Context, appID string, roleNames []string) (allowed, denied map[string]struct{}, err error) {
	allowed = make(map[string]struct{})
	denied = make(map[string]struct{})
	for _, name := range roleNames {
		role, err := r.GetRole(ctx, appID, name)
		if err != nil {
			continue // unknown roles contribute nothing
		}
		if !role.IsActive {
			continue
		}
		for _, k := range role.AllowedPermissions {
			allowed[permission.Normalize(k)] = struct{}{}
		}
		for _, k := range role.DeniedPermissions {
			denied[permission.Normalize(k)] = struct{}{}
		}
	}
	return allowed, denied, nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
