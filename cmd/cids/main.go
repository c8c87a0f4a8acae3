package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cids/pkg/api"
	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/claims"
	"github.com/platinummonkey/cids/pkg/config"
	"github.com/platinummonkey/cids/pkg/discovery"
	"github.com/platinummonkey/cids/pkg/httputil"
	"github.com/platinummonkey/cids/pkg/idp"
	"github.com/platinummonkey/cids/pkg/middleware"
	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/policy"
	"github.com/platinummonkey/cids/pkg/registry"
	"github.com/platinummonkey/cids/pkg/tokens"
)

const (
	maxRequestBody  = 1 << 20 // 1MB
	serviceTokenTTL = 5 * time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("loading configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable store.
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		fatal(logger, "opening postgres connection", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		fatal(logger, "pinging postgres", err)
	}

	store := registry.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		fatal(logger, "migrating registry schema", err)
	}

	reg, err := registry.New(ctx, store, logger, metrics)
	if err != nil {
		fatal(logger, "initializing registry", err)
	}

	// Revocation index. Without Redis revocations are process-local, which
	// only works for a single instance.
	var redisClient *redis.Client
	var revocations tokens.RevocationIndex
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fatal(logger, "parsing redis URL", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			fatal(logger, "pinging redis", err)
		}
		revocations = tokens.NewRedisRevocationIndex(redisClient)
	} else {
		logger.Warn("no redis configured; token revocations are local to this instance")
		revocations = tokens.NewMemoryRevocationIndex()
	}

	// Token signing.
	pemBytes, err := os.ReadFile(cfg.Tokens.SigningKeyPath)
	if err != nil {
		fatal(logger, "reading signing key", err)
	}
	signer, err := tokens.NewRS256SignerFromPEM(pemBytes, cfg.Tokens.Issuer, cfg.Tokens.Audience)
	if err != nil {
		fatal(logger, "parsing signing key", err)
	}

	// Audit trail: searchable in-memory window plus the durable file log.
	auditLog, err := buildAuditLog(cfg)
	if err != nil {
		fatal(logger, "initializing audit log", err)
	}
	defer auditLog.Close()

	tokenMgr := tokens.NewManager(signer, revocations, auditLog, metrics, logger, tokens.ManagerConfig{
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	})

	// Discovery pipeline. Fetches authenticate with a short-lived service
	// token minted by our own signer.
	tokenSource := discovery.ServiceTokenFunc(func(ctx context.Context, audience string) (string, error) {
		token, _, err := signer.Sign(map[string]interface{}{
			"sub":   "cids-discovery",
			"scope": "capability:read",
			"app":   audience,
		}, serviceTokenTTL)
		return token, err
	})
	fetcher := discovery.NewFetcher(nil, tokenSource, discovery.FetcherConfig{
		HealthTimeout: cfg.Discovery.HealthTimeout,
		FetchTimeout:  cfg.Discovery.FetchTimeout,
	})

	adapter := registry.NewDiscoveryAdapter(reg)
	discoveryLog := newDiscoveryLogger(cfg.Observability.LogLevel)
	coordinator, err := discovery.NewCoordinator(adapter, adapter, fetcher, discovery.CoordinatorConfig{
		CacheTTL:  cfg.Discovery.CacheTTL,
		CacheSize: cfg.Discovery.CacheSize,
		Retry: discovery.RetryConfig{
			MaxAttempts:       cfg.Discovery.MaxAttempts,
			InitialDelay:      cfg.Discovery.InitialDelay,
			MaxDelay:          cfg.Discovery.MaxDelay,
			BackoffMultiplier: cfg.Discovery.BackoffMultiplier,
			JitterFraction:    0.1,
		},
	}, discoveryLog, metrics)
	if err != nil {
		fatal(logger, "initializing discovery coordinator", err)
	}

	if cfg.Discovery.CronSchedule != "" {
		scheduler := discovery.NewScheduler(coordinator, discoveryLog, 10*time.Minute)
		if err := scheduler.Start(cfg.Discovery.CronSchedule); err != nil {
			fatal(logger, "starting discovery scheduler", err)
		}
		defer scheduler.Stop()
		logger.WithField("schedule", cfg.Discovery.CronSchedule).Info("discovery scheduler started")
	}

	// Policy and claims.
	mappings := policy.NewMappingTable()
	if cfg.Policy.RoleMappingPath != "" {
		if err := mappings.LoadFile(cfg.Policy.RoleMappingPath); err != nil {
			fatal(logger, "loading role mappings", err)
		}
		if cfg.Policy.WatchFiles {
			if err := mappings.Watch(ctx, cfg.Policy.RoleMappingPath, logger); err != nil {
				fatal(logger, "watching role mappings", err)
			}
		}
	}

	templates := claims.NewTemplateStore()
	if cfg.Policy.TokenTemplatePath != "" {
		if err := templates.LoadFile(cfg.Policy.TokenTemplatePath); err != nil {
			fatal(logger, "loading token templates", err)
		}
		if cfg.Policy.WatchFiles {
			if err := templates.Watch(ctx, cfg.Policy.TokenTemplatePath, logger); err != nil {
				fatal(logger, "watching token templates", err)
			}
		}
	}

	resolver := policy.NewResolver(mappings, reg, nil, logger)
	composer := claims.NewComposer(resolver, templates, logger)

	// Identity provider.
	var identities idp.Provider
	if cfg.OIDC.IssuerURL != "" {
		identities, err = idp.NewOIDCProvider(ctx, idp.OIDCConfig{
			IssuerURL:  cfg.OIDC.IssuerURL,
			ClientID:   cfg.OIDC.ClientID,
			GroupClaim: cfg.OIDC.GroupClaim,
		})
		if err != nil {
			fatal(logger, "initializing OIDC provider", err)
		}
	} else {
		logger.Warn("no OIDC issuer configured; using static identity provider")
		identities = idp.NewStaticProvider()
	}

	server := api.NewServer(reg, coordinator, composer, tokenMgr, identities, auditLog, logger)
	attachMiddleware(server.Router(), logger, metrics, tokenMgr, redisClient)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := newHealthServer(cfg, db, redisClient, metrics)

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("cids listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "http server failed", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown")
	}
	logger.Info("stopped")
}

// attachMiddleware installs the request pipeline: request IDs, structured
// logging, panic recovery, metrics, body limits, optional bearer auth, and
// rate limiting. Auth is optional at this layer so token issuance stays
// reachable; authenticated subjects get the higher per-subject rate budget.
func attachMiddleware(router *mux.Router, logger *observability.Logger, metrics *observability.Metrics, tokenMgr *tokens.Manager, redisClient *redis.Client) {
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.RecoveryMiddleware(logger))
	if metrics != nil {
		router.Use(httputil.MetricsMiddleware(metrics))
	}
	router.Use(httputil.MaxBytesMiddleware(maxRequestBody))
	router.Use(middleware.NewAuthMiddleware(tokenMgr, true).Handler)

	if redisClient != nil {
		router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
	} else {
		router.Use(middleware.NewRateLimitMiddleware().Handler)
	}
}

// buildAuditLog fans events out to a searchable in-memory window and, when a
// log directory is configured, a rotating file log.
func buildAuditLog(cfg *config.Config) (*audit.MultiLogger, error) {
	sinks := []audit.Logger{audit.NewMemoryLogger(0)}
	if cfg.Audit.LogDir != "" {
		fileLog, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.LogDir,
			Rotate:   true,
			MaxSize:  cfg.Audit.MaxSize,
			MaxFiles: cfg.Audit.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileLog)
	}
	return audit.NewMultiLogger(sinks...), nil
}

func newHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client, metrics *observability.Metrics) *http.Server {
	checker := observability.NewHealthChecker(db, redisClient)
	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Liveness).Methods("GET")
	router.HandleFunc("/readyz", checker.Readiness).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	return &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: router,
	}
}

// newDiscoveryLogger builds the logrus logger the discovery pipeline uses.
func newDiscoveryLogger(level observability.LogLevel) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	switch level {
	case observability.DebugLevel:
		l.SetLevel(logrus.DebugLevel)
	case observability.WarnLevel:
		l.SetLevel(logrus.WarnLevel)
	case observability.ErrorLevel:
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

func fatal(logger *observability.Logger, msg string, err error) {
	logger.WithError(err).Error(msg)
	os.Exit(1)
}
