package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/platinummonkey/cids/pkg/capability"
)

const (
	discoveryVersionHeader = "X-Discovery-Version"
	maxResponseBytes       = 4 << 20 // 4MB capability document cap

	defaultHealthTimeout = 5 * time.Second
	defaultFetchTimeout  = 30 * time.Second
)

// ServiceTokenSource mints the short-lived bearer token that authenticates
// CIDS to the application's discovery endpoint.
type ServiceTokenSource interface {
	ServiceToken(ctx context.Context, audience string) (string, error)
}

// ServiceTokenFunc adapts a function to the ServiceTokenSource interface.
type ServiceTokenFunc func(ctx context.Context, audience string) (string, error)

// ServiceToken calls the wrapped function.
func (f ServiceTokenFunc) ServiceToken(ctx context.Context, audience string) (string, error) {
	return f(ctx, audience)
}

// FetcherConfig configures the capability fetcher.
type FetcherConfig struct {
	HealthTimeout time.Duration
	FetchTimeout  time.Duration
}

// Fetcher performs one authenticated capability fetch against an
// application's discovery URL.
type Fetcher struct {
	client      *http.Client
	tokenSource ServiceTokenSource
	config      FetcherConfig
}

// NewFetcher creates a capability fetcher. A nil client uses a dedicated
// http.Client bounded by the fetch timeout.
func NewFetcher(client *http.Client, tokenSource ServiceTokenSource, config FetcherConfig) *Fetcher {
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = defaultHealthTimeout
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaultFetchTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: config.FetchTimeout}
	}
	return &Fetcher{client: client, tokenSource: tokenSource, config: config}
}

// FetchStats records transport-level details of one fetch for history.
type FetchStats struct {
	ResponseTime time.Duration
	StatusCode   int
}

// Fetch health-checks and then fetches the capability document at
// discoveryURL, returning the decoded, validated descriptor. All failures
// carry a discovery error class.
func (f *Fetcher) Fetch(ctx context.Context, appID, discoveryURL string) (*capability.Descriptor, *FetchStats, error) {
	stats := &FetchStats{}

	if err := f.healthCheck(ctx, discoveryURL); err != nil {
		return nil, stats, err
	}

	fullURL, err := withVersionParam(discoveryURL)
	if err != nil {
		return nil, stats, NewError(ConfigurationError, "invalid discovery URL", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, stats, NewError(ConfigurationError, "building discovery request", err)
	}

	token, err := f.tokenSource.ServiceToken(fetchCtx, appID)
	if err != nil {
		return nil, stats, NewError(AuthenticationError, "minting discovery service token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(discoveryVersionHeader, capability.DiscoveryVersion)

	start := time.Now()
	resp, err := f.client.Do(req)
	stats.ResponseTime = time.Since(start)
	if err != nil {
		return nil, stats, NewError(TypeOf(err), "discovery request failed", err)
	}
	defer resp.Body.Close()
	stats.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		return nil, stats, NewError(class, fmt.Sprintf("discovery endpoint returned HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, stats, NewError(NetworkError, "reading discovery response", err)
	}

	desc, err := capability.Decode(body)
	if err != nil {
		return nil, stats, NewError(ValidationError, "decoding capability document", err)
	}
	if err := desc.Validate(); err != nil {
		if errors.Is(err, capability.ErrUpgradeRequired) {
			return nil, stats, NewError(ValidationError, "application speaks discovery v1", err)
		}
		return nil, stats, NewError(ValidationError, "capability document failed validation", err)
	}

	return desc, stats, nil
}

// healthCheck sends a HEAD request to the discovery URL. Any transport
// failure short-circuits the fetch with a NetworkError; HTTP-level errors
// are left for the full GET to classify.
func (f *Fetcher) healthCheck(ctx context.Context, discoveryURL string) error {
	healthCtx, cancel := context.WithTimeout(ctx, f.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodHead, discoveryURL, nil)
	if err != nil {
		return NewError(ConfigurationError, "invalid discovery URL", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		class := TypeOf(err)
		if class == UnknownError {
			class = NetworkError
		}
		return NewError(class, "discovery health check failed", err)
	}
	resp.Body.Close()
	return nil
}

func withVersionParam(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("version", capability.DiscoveryVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
