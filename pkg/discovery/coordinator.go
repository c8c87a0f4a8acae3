package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/cids/pkg/capability"
	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/permission"
)

// App is the projection of a registered application the coordinator needs.
type App struct {
	ID             string
	Name           string
	DiscoveryURL   string
	AllowDiscovery bool
}

// AppSource provides registered application records.
type AppSource interface {
	App(ctx context.Context, appID string) (*App, error)
	AppIDs(ctx context.Context) ([]string, error)
}

// CatalogSink receives generated permission catalogs and discovery status
// updates. The registry implements this.
type CatalogSink interface {
	RegisterPermissions(ctx context.Context, appID string, metas []permission.Metadata) error
	SetDiscoveryStatus(ctx context.Context, appID, status string, at time.Time) error
}

// ResultStatus describes how a discovery call concluded.
type ResultStatus string

const (
	StatusCached  ResultStatus = "cached"
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
)

// Result is the outcome of one Discover call.
type Result struct {
	AppID                string                 `json:"app_id"`
	RunID                string                 `json:"run_id,omitempty"`
	Status               ResultStatus           `json:"status"`
	Descriptor           *capability.Descriptor `json:"-"`
	EndpointsFound       int                    `json:"endpoints_found"`
	PermissionsGenerated int                    `json:"permissions_generated"`
	Attempts             int                    `json:"attempts"`
	Error                string                 `json:"error,omitempty"`
	ErrorType            ErrorType              `json:"error_type,omitempty"`
}

type cacheEntry struct {
	descriptor  *capability.Descriptor
	permissions int
	fetchedAt   time.Time
}

// CoordinatorConfig configures discovery caching and concurrency.
type CoordinatorConfig struct {
	CacheTTL  time.Duration
	CacheSize int
	Retry     RetryConfig
}

// DefaultCoordinatorConfig returns the default coordinator configuration:
// a sixty-minute descriptor cache holding up to 256 applications.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		CacheTTL:  60 * time.Minute,
		CacheSize: 256,
		Retry:     DefaultRetryConfig(),
	}
}

// Coordinator drives the discovery pipeline for registered applications:
// cache checks, per-application serialization, retries, permission
// generation, persistence, history, and progress reporting.
type Coordinator struct {
	apps    AppSource
	sink    CatalogSink
	fetcher *Fetcher
	retry   *RetryPolicy
	history *History
	tracker *progressTracker
	cache   *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
}

// NewCoordinator creates a discovery coordinator.
func NewCoordinator(apps AppSource, sink CatalogSink, fetcher *Fetcher, config CoordinatorConfig, logger *logrus.Logger, metrics *observability.Metrics) (*Coordinator, error) {
	def := DefaultCoordinatorConfig()
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if logger == nil {
		logger = logrus.New()
	}

	cache, err := lru.New[string, cacheEntry](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating discovery cache: %w", err)
	}

	return &Coordinator{
		apps:     apps,
		sink:     sink,
		fetcher:  fetcher,
		retry:    NewRetryPolicy(config.Retry),
		history:  NewHistory(),
		tracker:  newProgressTracker(),
		cache:    cache,
		ttl:      config.CacheTTL,
		logger:   logger,
		metrics:  metrics,
		inFlight: make(map[string]*sync.Mutex),
	}, nil
}

// Subscribe registers an observer for progress updates.
func (c *Coordinator) Subscribe(o Observer) {
	c.tracker.subscribe(o)
}

// History returns the discovery attempt log.
func (c *Coordinator) History() *History {
	return c.history
}

// Progress returns the latest progress update for an in-flight run.
func (c *Coordinator) Progress(appID string) (Progress, bool) {
	return c.tracker.Latest(appID)
}

// Discover runs the discovery pipeline for one application. Unless
// forceRefresh is set, a cached descriptor younger than the TTL is returned
// without any network activity. Concurrent discovery of the same application
// is serialized; different applications proceed in parallel.
func (c *Coordinator) Discover(ctx context.Context, appID string, forceRefresh bool) (*Result, error) {
	app, err := c.apps.App(ctx, appID)
	if err != nil {
		return c.fail(ctx, appID, "", NewError(ConfigurationError, "application not registered", err), 0)
	}
	if !app.AllowDiscovery {
		return c.fail(ctx, appID, "", NewError(ConfigurationError, "discovery disabled for application", nil), 0)
	}
	if app.DiscoveryURL == "" {
		return c.fail(ctx, appID, "", NewError(ConfigurationError, "application has no discovery URL", nil), 0)
	}

	if !forceRefresh {
		if res, ok := c.cached(appID); ok {
			if c.metrics != nil {
				c.metrics.DiscoveryCacheHitsTotal.Inc()
			}
			return res, nil
		}
	}

	lock := c.appLock(appID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have completed a run while this one waited.
	if !forceRefresh {
		if res, ok := c.cached(appID); ok {
			return res, nil
		}
	}

	return c.run(ctx, app)
}

// DiscoverAll fans out one discovery task per registered application and
// joins the results. Each application's result is independent: one failing
// application does not cancel the others.
func (c *Coordinator) DiscoverAll(ctx context.Context, forceRefresh bool) (map[string]*Result, error) {
	appIDs, err := c.apps.AppIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing applications for batch discovery: %w", err)
	}

	var mu sync.Mutex
	results := make(map[string]*Result, len(appIDs))

	g, gctx := errgroup.WithContext(ctx)
	for _, appID := range appIDs {
		appID := appID
		g.Go(func() error {
			res, err := c.Discover(gctx, appID, forceRefresh)
			if res == nil {
				res = &Result{AppID: appID, Status: StatusFailed, Error: err.Error()}
			}
			mu.Lock()
			results[appID] = res
			mu.Unlock()
			return nil // partial failure is tolerated
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (c *Coordinator) run(ctx context.Context, app *App) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	c.emit(app.ID, runID, StepPending, "")

	var (
		desc     *capability.Descriptor
		attempts int
	)
	err := c.retry.Retry(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		c.emit(app.ID, runID, StepHealthCheck, fmt.Sprintf("attempt %d", attempt))

		fetched, stats, ferr := c.fetchOnce(ctx, app, runID)
		if c.metrics != nil {
			c.metrics.DiscoveryAttemptsTotal.Inc()
		}
		if ferr != nil {
			c.history.Record(app.ID, Attempt{
				Timestamp:    time.Now(),
				Success:      false,
				ErrorType:    TypeOf(ferr),
				ErrorMessage: ferr.Error(),
				ResponseTime: stats.ResponseTime,
			})
			c.logger.WithFields(logrus.Fields{
				"app_id":  app.ID,
				"run_id":  runID,
				"attempt": attempt,
				"class":   TypeOf(ferr),
			}).WithError(ferr).Warn("discovery attempt failed")
			return ferr
		}
		desc = fetched
		return nil
	})
	if err != nil {
		return c.fail(ctx, app.ID, runID, err, attempts)
	}

	c.emit(app.ID, runID, StepGeneratingPermissions, "")
	metas := permission.Expand(app.ID, desc)

	c.emit(app.ID, runID, StepStoring, "")
	if err := c.sink.RegisterPermissions(ctx, app.ID, metas); err != nil {
		return c.fail(ctx, app.ID, runID, NewError(UnknownError, "persisting permission catalog", err), attempts)
	}
	if err := c.sink.SetDiscoveryStatus(ctx, app.ID, "success", time.Now()); err != nil {
		c.logger.WithError(err).WithField("app_id", app.ID).Warn("updating discovery status")
	}

	endpoints := len(desc.AllEndpoints())
	c.history.Record(app.ID, Attempt{
		Timestamp:            time.Now(),
		Success:              true,
		ResponseTime:         time.Since(start),
		EndpointsFound:       endpoints,
		PermissionsGenerated: len(metas),
	})
	c.cache.Add(app.ID, cacheEntry{descriptor: desc, permissions: len(metas), fetchedAt: time.Now()})

	if c.metrics != nil {
		c.metrics.DiscoveryRunsTotal.WithLabelValues("success").Inc()
		c.metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	}
	c.emit(app.ID, runID, StepSuccess, "")
	c.logger.WithFields(logrus.Fields{
		"app_id":      app.ID,
		"run_id":      runID,
		"endpoints":   endpoints,
		"permissions": len(metas),
		"attempts":    attempts,
	}).Info("discovery succeeded")

	return &Result{
		AppID:                app.ID,
		RunID:                runID,
		Status:               StatusSuccess,
		Descriptor:           desc,
		EndpointsFound:       endpoints,
		PermissionsGenerated: len(metas),
		Attempts:             attempts,
	}, nil
}

// fetchOnce performs one fetch attempt, emitting the fetch/validate progress
// steps around the fetcher call.
func (c *Coordinator) fetchOnce(ctx context.Context, app *App, runID string) (*capability.Descriptor, *FetchStats, error) {
	c.emit(app.ID, runID, StepFetching, "")
	desc, stats, err := c.fetcher.Fetch(ctx, app.ID, app.DiscoveryURL)
	if err != nil {
		return nil, stats, err
	}
	c.emit(app.ID, runID, StepValidating, "")
	return desc, stats, nil
}

func (c *Coordinator) fail(ctx context.Context, appID, runID string, err error, attempts int) (*Result, error) {
	class := TypeOf(err)
	if runID != "" {
		c.emit(appID, runID, StepFailed, err.Error())
	}
	if serr := c.sink.SetDiscoveryStatus(ctx, appID, class.StatusString(), time.Now()); serr != nil {
		c.logger.WithError(serr).WithField("app_id", appID).Warn("updating discovery status")
	}
	if c.metrics != nil {
		c.metrics.DiscoveryRunsTotal.WithLabelValues("failed").Inc()
	}
	return &Result{
		AppID:     appID,
		RunID:     runID,
		Status:    StatusFailed,
		Attempts:  attempts,
		Error:     err.Error(),
		ErrorType: class,
	}, err
}

func (c *Coordinator) cached(appID string) (*Result, bool) {
	entry, ok := c.cache.Get(appID)
	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return &Result{
		AppID:                appID,
		Status:               StatusCached,
		Descriptor:           entry.descriptor,
		EndpointsFound:       len(entry.descriptor.AllEndpoints()),
		PermissionsGenerated: entry.permissions,
	}, true
}

func (c *Coordinator) appLock(appID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.inFlight[appID]
	if !ok {
		lock = &sync.Mutex{}
		c.inFlight[appID] = lock
	}
	return lock
}

func (c *Coordinator) emit(appID, runID string, step Step, message string) {
	c.tracker.emit(Progress{AppID: appID, RunID: runID, Step: step, Message: message})
}
