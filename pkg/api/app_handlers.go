package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/contextkeys"
	"github.com/platinummonkey/cids/pkg/httputil"
	"github.com/platinummonkey/cids/pkg/registry"
)

// RegisterAppRequest is the application registration payload.
type RegisterAppRequest struct {
	AppID          string `json:"app_id"`
	Name           string `json:"name"`
	DiscoveryURL   string `json:"discovery_url"`
	AllowDiscovery bool   `json:"allow_discovery"`
}

func (s *Server) registerApp(w http.ResponseWriter, r *http.Request) {
	var req RegisterAppRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.AppID, "app_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	app := &registry.App{
		ID:             req.AppID,
		Name:           req.Name,
		DiscoveryURL:   req.DiscoveryURL,
		AllowDiscovery: req.AllowDiscovery,
	}
	if err := s.registry.RegisterApp(r.Context(), app); err != nil {
		s.logger.WithError(err).WithField("app_id", req.AppID).Error("app registration failed")
		httputil.WriteInternalError(w, errors.New("app registration failed"))
		return
	}

	event := audit.NewEvent(audit.EventTypeAppRegister, audit.EventStatusSuccess, "application registered")
	event.AppID = req.AppID
	event.Subject = contextkeys.GetSubject(r.Context())
	event.IPAddress = clientIP(r)
	s.emitAudit(event)

	httputil.WriteCreated(w, app)
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.registry.ListApps(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("listing apps failed")
		httputil.WriteInternalError(w, errors.New("listing apps failed"))
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"apps": apps})
}

func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	app, err := s.registry.GetApp(r.Context(), appID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFoundError(w, "application not found")
			return
		}
		httputil.WriteInternalError(w, errors.New("fetching app failed"))
		return
	}
	httputil.WriteSuccess(w, app)
}

func (s *Server) deleteApp(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	if err := s.registry.DeleteApp(r.Context(), appID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFoundError(w, "application not found")
			return
		}
		s.logger.WithError(err).WithField("app_id", appID).Error("app delete failed")
		httputil.WriteInternalError(w, errors.New("app delete failed"))
		return
	}

	event := audit.NewEvent(audit.EventTypeAppDelete, audit.EventStatusSuccess, "application deleted")
	event.AppID = appID
	event.Subject = contextkeys.GetSubject(r.Context())
	event.IPAddress = clientIP(r)
	s.emitAudit(event)

	httputil.WriteNoContent(w)
}

func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	catalog, err := s.registry.GetCatalog(r.Context(), appID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFoundError(w, "application not found")
			return
		}
		httputil.WriteInternalError(w, errors.New("fetching catalog failed"))
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"app_id":      appID,
		"permissions": catalog,
	})
}
