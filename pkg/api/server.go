package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/cids/pkg/async"
	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/claims"
	"github.com/platinummonkey/cids/pkg/discovery"
	"github.com/platinummonkey/cids/pkg/idp"
	"github.com/platinummonkey/cids/pkg/observability"
	"github.com/platinummonkey/cids/pkg/registry"
	"github.com/platinummonkey/cids/pkg/tokens"
)

// auditEmitTimeout bounds fire-and-forget audit writes.
const auditEmitTimeout = 5 * time.Second

// Server is the CIDS admin and token API.
type Server struct {
	router      *mux.Router
	registry    *registry.Registry
	coordinator *discovery.Coordinator
	composer    *claims.Composer
	tokenMgr    *tokens.Manager
	identities  idp.Provider
	auditLog    audit.Logger
	logger      *observability.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(
	reg *registry.Registry,
	coordinator *discovery.Coordinator,
	composer *claims.Composer,
	tokenMgr *tokens.Manager,
	identities idp.Provider,
	auditLog audit.Logger,
	logger *observability.Logger,
) *Server {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:      mux.NewRouter(),
		registry:    reg,
		coordinator: coordinator,
		composer:    composer,
		tokenMgr:    tokenMgr,
		identities:  identities,
		auditLog:    auditLog,
		logger:      logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Application registry routes
	api.HandleFunc("/apps", s.registerApp).Methods("POST")
	api.HandleFunc("/apps", s.listApps).Methods("GET")
	api.HandleFunc("/apps/{appID}", s.getApp).Methods("GET")
	api.HandleFunc("/apps/{appID}", s.deleteApp).Methods("DELETE")
	api.HandleFunc("/apps/{appID}/permissions", s.getCatalog).Methods("GET")

	// Discovery routes
	api.HandleFunc("/apps/{appID}/discovery", s.triggerDiscovery).Methods("POST")
	api.HandleFunc("/apps/{appID}/discovery/status", s.discoveryStatus).Methods("GET")
	api.HandleFunc("/apps/{appID}/discovery/history", s.discoveryHistory).Methods("GET")
	api.HandleFunc("/discovery/run", s.runBatchDiscovery).Methods("POST")

	// Role routes
	api.HandleFunc("/apps/{appID}/roles", s.upsertRole).Methods("POST")
	api.HandleFunc("/apps/{appID}/roles", s.listRoles).Methods("GET")
	api.HandleFunc("/apps/{appID}/roles/{name}", s.getRole).Methods("GET")
	api.HandleFunc("/apps/{appID}/roles/{name}", s.upsertNamedRole).Methods("PUT")
	api.HandleFunc("/apps/{appID}/roles/{name}", s.deleteRole).Methods("DELETE")

	// Authorization routes
	api.HandleFunc("/permissions/check", s.checkPermission).Methods("POST")
	api.HandleFunc("/apps/{appID}/effective-permissions", s.effectivePermissions).Methods("GET")

	// Token routes
	api.HandleFunc("/tokens", s.issueToken).Methods("POST")
	api.HandleFunc("/tokens/refresh", s.refreshToken).Methods("POST")
	api.HandleFunc("/tokens/revoke", s.revokeToken).Methods("POST")
	api.HandleFunc("/tokens/validate", s.validateToken).Methods("POST")

	// Audit routes
	api.HandleFunc("/audit/events", s.listAuditEvents).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying mux router so callers can attach middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// emitAudit records an audit event without blocking the request path.
func (s *Server) emitAudit(event *audit.Event) {
	async.SafeGo(context.Background(), auditEmitTimeout, "audit emission", func(ctx context.Context) error {
		return s.auditLog.Log(ctx, event)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
