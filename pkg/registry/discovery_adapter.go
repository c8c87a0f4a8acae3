package registry

import (
	"context"
	"time"

	"github.com/platinummonkey/cids/pkg/discovery"
	"github.com/platinummonkey/cids/pkg/permission"
)

// DiscoveryAdapter exposes the registry to the discovery coordinator as its
// application source and catalog sink.
type DiscoveryAdapter struct {
	registry *Registry
}

// NewDiscoveryAdapter wraps the registry for the discovery coordinator.
func NewDiscoveryAdapter(r *Registry) *DiscoveryAdapter {
	return &DiscoveryAdapter{registry: r}
}

// App returns the coordinator's projection of a registered application.
func (a *DiscoveryAdapter) App(ctx context.Context, appID string) (*discovery.App, error) {
	app, err := a.registry.GetApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	return &discovery.App{
		ID:             app.ID,
		Name:           app.Name,
		DiscoveryURL:   app.DiscoveryURL,
		AllowDiscovery: app.AllowDiscovery,
	}, nil
}

// AppIDs lists registered application IDs for batch discovery.
func (a *DiscoveryAdapter) AppIDs(ctx context.Context) ([]string, error) {
	apps, err := a.registry.ListApps(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		out = append(out, app.ID)
	}
	return out, nil
}

// RegisterPermissions forwards a generated catalog to the registry.
func (a *DiscoveryAdapter) RegisterPermissions(ctx context.Context, appID string, metas []permission.Metadata) error {
	return a.registry.RegisterPermissions(ctx, appID, metas)
}

// SetDiscoveryStatus forwards a discovery outcome to the registry.
func (a *DiscoveryAdapter) SetDiscoveryStatus(ctx context.Context, appID, status string, at time.Time) error {
	return a.registry.SetDiscoveryStatus(ctx, appID, status, at)
}
