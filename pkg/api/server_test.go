package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/claims"
	"github.com/platinummonkey/cids/pkg/discovery"
	"github.com/platinummonkey/cids/pkg/idp"
	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/policy"
	"github.com/platinummonkey/cids/pkg/registry"
	"github.com/platinummonkey/cids/pkg/tokens"
)

// testEnv bundles the wired CIDS components behind one API server.
type testEnv struct {
	server   *Server
	registry *registry.Registry
	tokenMgr *tokens.Manager
	audit    *audit.MemoryLogger
	idp      *idp.StaticProvider
	mappings *policy.MappingTable
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	reg, err := registry.New(ctx, registry.NewMemoryStore(), logger, nil)
	require.NoError(t, err)

	adapter := registry.NewDiscoveryAdapter(reg)
	fetcher := discovery.NewFetcher(nil, discovery.ServiceTokenFunc(
		func(ctx context.Context, audience string) (string, error) { return "svc-token", nil },
	), discovery.FetcherConfig{})

	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	coordinator, err := discovery.NewCoordinator(adapter, adapter, fetcher, discovery.CoordinatorConfig{
		CacheTTL:  time.Minute,
		CacheSize: 16,
		Retry: discovery.RetryConfig{
			MaxAttempts:       2,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2.0,
			JitterFraction:    0,
		},
	}, quiet, nil)
	require.NoError(t, err)

	mappings := policy.NewMappingTable()
	resolver := policy.NewResolver(mappings, reg, nil, logger)
	composer := claims.NewComposer(resolver, claims.NewTemplateStore(), logger)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := tokens.NewRS256Signer(key, "cids", "cids-clients")

	auditLog := audit.NewMemoryLogger(0)
	tokenMgr := tokens.NewManager(signer, tokens.NewMemoryRevocationIndex(), auditLog, nil, logger, tokens.ManagerConfig{})

	identities := idp.NewStaticProvider()

	return &testEnv{
		server:   NewServer(reg, coordinator, composer, tokenMgr, identities, auditLog, logger),
		registry: reg,
		tokenMgr: tokenMgr,
		audit:    auditLog,
		idp:      identities,
		mappings: mappings,
	}
}

// descriptorServer serves a valid capability document for discovery tests.
func descriptorServer(t *testing.T, appID string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"appId":   appID,
			"appName": appID,
			"version": "2.0",
			"endpoints": []map[string]interface{}{
				{
					"path":   "/api/employees",
					"method": "GET",
					"response_fields": map[string]interface{}{
						"name": map[string]interface{}{"type": "string"},
					},
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

// registerApp registers an application through the API.
func (env *testEnv) registerApp(t *testing.T, appID, discoveryURL string) {
	t.Helper()
	w := env.do(t, "POST", "/api/v1/apps", RegisterAppRequest{
		AppID:          appID,
		Name:           appID,
		DiscoveryURL:   discoveryURL,
		AllowDiscovery: discoveryURL != "",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// discover registers an app backed by a live descriptor server and runs
// discovery so the catalog is populated.
func (env *testEnv) discover(t *testing.T, appID string) {
	t.Helper()
	server := descriptorServer(t, appID)
	env.registerApp(t, appID, server.URL)
	w := env.do(t, "POST", "/api/v1/apps/"+appID+"/discovery", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// do performs one request against the server and returns the recorder.
func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	return w
}

// decode unmarshals a JSON response body.
func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}
