package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/cids/pkg/permission"
)

// MemoryStore is an in-memory Store implementation for tests and single-node
// development setups.
type MemoryStore struct {
	mu       sync.RWMutex
	apps     map[string]*App
	catalogs map[string][]permission.Metadata
	roles    map[string]map[string]*Role
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:     make(map[string]*App),
		catalogs: make(map[string][]permission.Metadata),
		roles:    make(map[string]map[string]*Role),
	}
}

// CreateApp inserts or replaces an application record.
func (s *MemoryStore) CreateApp(ctx context.Context, app *App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.apps[app.ID]; ok {
		app.CreatedAt = existing.CreatedAt
	} else {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	cp := *app
	s.apps[app.ID] = &cp
	return nil
}

// GetApp retrieves one application record.
func (s *MemoryStore) GetApp(ctx context.Context, appID string) (*App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}
	cp := *app
	return &cp, nil
}

// ListApps returns every registered application ordered by ID.
func (s *MemoryStore) ListApps(ctx context.Context) ([]*App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*App, 0, len(s.apps))
	for _, app := range s.apps {
		cp := *app
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateAppDiscovery records the outcome of a discovery run.
func (s *MemoryStore) UpdateAppDiscovery(ctx context.Context, appID, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}
	app.DiscoveryStatus = status
	t := at
	app.LastDiscoveryAt = &t
	app.UpdatedAt = at
	return nil
}

// DeleteApp removes the application, cascading to catalog and roles.
func (s *MemoryStore) DeleteApp(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return fmt.Errorf("app %s: %w", appID, ErrNotFound)
	}
	delete(s.apps, appID)
	delete(s.catalogs, appID)
	delete(s.roles, appID)
	return nil
}

// ReplaceCatalog swaps the application's permission catalog.
func (s *MemoryStore) ReplaceCatalog(ctx context.Context, appID string, metas []permission.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]permission.Metadata, len(metas))
	copy(cp, metas)
	s.catalogs[appID] = cp
	return nil
}

// GetCatalog returns the application's permission catalog.
func (s *MemoryStore) GetCatalog(ctx context.Context, appID string) ([]permission.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := s.catalogs[appID]
	cp := make([]permission.Metadata, len(metas))
	copy(cp, metas)
	return cp, nil
}

// UpsertRole writes a role, updating in place when it exists.
func (s *MemoryStore) UpsertRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[role.AppID] == nil {
		s.roles[role.AppID] = make(map[string]*Role)
	}
	now := time.Now()
	if existing, ok := s.roles[role.AppID][role.Name]; ok {
		role.CreatedAt = existing.CreatedAt
	} else if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now
	cp := *role
	cp.RLSFilters = role.RLSFilters.Clone()
	s.roles[role.AppID][role.Name] = &cp
	return nil
}

// GetRole retrieves one role.
func (s *MemoryStore) GetRole(ctx context.Context, appID, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[appID][name]
	if !ok {
		return nil, fmt.Errorf("role %s/%s: %w", appID, name, ErrNotFound)
	}
	cp := *role
	cp.RLSFilters = role.RLSFilters.Clone()
	return &cp, nil
}

// ListRoles returns every role for the application ordered by name.
func (s *MemoryStore) ListRoles(ctx context.Context, appID string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.roles[appID]))
	for _, role := range s.roles[appID] {
		cp := *role
		cp.RLSFilters = role.RLSFilters.Clone()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteRole removes one role.
func (s *MemoryStore) DeleteRole(ctx context.Context, appID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[appID][name]; !ok {
		return fmt.Errorf("role %s/%s: %w", appID, name, ErrNotFound)
	}
	delete(s.roles[appID], name)
	return nil
}
