// Package idp is the boundary to the external identity provider. CIDS only
// needs a verified identity and its group memberships; the login redirect
// flow itself belongs to the provider and stays outside this service.
package idp

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownIdentity reports a credential that does not resolve to a user.
var ErrUnknownIdentity = errors.New("identity not found")

// Identity is a verified user identity and its group memberships.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Groups  []string
}

// Provider verifies an identity-provider credential (an OIDC ID token, a
// session reference) and returns the identity behind it.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (*Identity, error)
}

// StaticProvider resolves credentials from a fixed table. It backs tests
// and local development.
type StaticProvider struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{identities: make(map[string]Identity)}
}

// Add registers a credential→identity pair.
func (p *StaticProvider) Add(credential string, identity Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[credential] = identity
}

// Authenticate implements Provider.
func (p *StaticProvider) Authenticate(ctx context.Context, credential string) (*Identity, error) {
	p.mu.RLock()
	identity, ok := p.identities[credential]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: credential not recognized", ErrUnknownIdentity)
	}
	return &identity, nil
}
