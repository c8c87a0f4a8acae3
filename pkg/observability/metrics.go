package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the CIDS service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Discovery metrics
	DiscoveryRunsTotal      *prometheus.CounterVec
	DiscoveryAttemptsTotal  prometheus.Counter
	DiscoveryDuration       prometheus.Histogram
	DiscoveryCacheHitsTotal prometheus.Counter

	// Registry metrics
	PermissionsRegistered *prometheus.GaugeVec
	PermissionChecksTotal *prometheus.CounterVec
	RoleWritesTotal       *prometheus.CounterVec

	// Token metrics
	TokensIssuedTotal    *prometheus.CounterVec
	TokensRevokedTotal   prometheus.Counter
	TokenReplaysDetected prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all CIDS metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cids_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cids_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		DiscoveryRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cids_discovery_runs_total",
			Help: "Completed discovery runs by outcome",
		}, []string{"status"}),
		DiscoveryAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cids_discovery_attempts_total",
			Help: "Individual discovery fetch attempts including retries",
		}),
		DiscoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cids_discovery_duration_seconds",
			Help:    "End-to-end discovery run duration",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DiscoveryCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cids_discovery_cache_hits_total",
			Help: "Discovery calls served from the descriptor cache",
		}),
		PermissionsRegistered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cids_permissions_registered",
			Help: "Catalog size per application",
		}, []string{"app_id"}),
		PermissionChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cids_permission_checks_total",
			Help: "Permission checks by result",
		}, []string{"allowed"}),
		RoleWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cids_role_writes_total",
			Help: "Role create/update operations by outcome",
		}, []string{"status"}),
		TokensIssuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cids_tokens_issued_total",
			Help: "Tokens issued by type",
		}, []string{"type"}),
		TokensRevokedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cids_tokens_revoked_total",
			Help: "Tokens revoked",
		}),
		TokenReplaysDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cids_token_replays_detected_total",
			Help: "Reuse of rotated refresh tokens",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DiscoveryRunsTotal,
		m.DiscoveryAttemptsTotal,
		m.DiscoveryDuration,
		m.DiscoveryCacheHitsTotal,
		m.PermissionsRegistered,
		m.PermissionChecksTotal,
		m.RoleWritesTotal,
		m.TokensIssuedTotal,
		m.TokensRevokedTotal,
		m.TokenReplaysDetected,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
