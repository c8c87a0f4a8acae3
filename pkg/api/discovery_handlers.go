package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/contextkeys"
	"github.com/platinummonkey/cids/pkg/discovery"
	"github.com/platinummonkey/cids/pkg/httputil"
)

func (s *Server) triggerDiscovery(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}
	force, err := httputil.ParseQueryBool(r, "force", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := s.coordinator.Discover(r.Context(), appID, force)
	s.auditDiscovery(r, result)
	if err != nil {
		// The result carries the error class and message for the caller;
		// the status code distinguishes config mistakes from upstream failures.
		status := http.StatusBadGateway
		if discovery.TypeOf(err) == discovery.ConfigurationError {
			status = http.StatusUnprocessableEntity
		}
		httputil.WriteJSON(w, status, result)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (s *Server) runBatchDiscovery(w http.ResponseWriter, r *http.Request) {
	force, err := httputil.ParseQueryBool(r, "force", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	results, err := s.coordinator.DiscoverAll(r.Context(), force)
	if err != nil {
		s.logger.WithError(err).Error("batch discovery failed")
		httputil.WriteInternalError(w, errors.New("batch discovery failed"))
		return
	}

	succeeded := 0
	for _, res := range results {
		s.auditDiscovery(r, res)
		if res.Status != discovery.StatusFailed {
			succeeded++
		}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}

func (s *Server) discoveryStatus(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	status := map[string]interface{}{
		"app_id":       appID,
		"success_rate": s.coordinator.History().SuccessRate(appID),
	}
	if progress, ok := s.coordinator.Progress(appID); ok {
		status["progress"] = progress
	}
	if app, err := s.registry.GetApp(r.Context(), appID); err == nil {
		status["discovery_status"] = app.DiscoveryStatus
		status["last_discovery_at"] = app.LastDiscoveryAt
	}

	httputil.WriteSuccess(w, status)
}

func (s *Server) discoveryHistory(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	history := s.coordinator.History()
	httputil.WriteSuccess(w, map[string]interface{}{
		"app_id":       appID,
		"attempts":     history.Attempts(appID),
		"success_rate": history.SuccessRate(appID),
	})
}

func (s *Server) auditDiscovery(r *http.Request, result *discovery.Result) {
	if result == nil || result.Status == discovery.StatusCached {
		return
	}

	eventType := audit.EventTypeDiscoveryRun
	status := audit.EventStatusSuccess
	message := "discovery completed"
	if result.Status == discovery.StatusFailed {
		eventType = audit.EventTypeDiscoveryFailed
		status = audit.EventStatusFailure
		message = result.Error
	}

	event := audit.NewEvent(eventType, status, message)
	event.AppID = result.AppID
	event.Subject = contextkeys.GetSubject(r.Context())
	event.IPAddress = clientIP(r)
	event.Metadata = map[string]interface{}{
		"run_id":                result.RunID,
		"attempts":              result.Attempts,
		"endpoints_found":       result.EndpointsFound,
		"permissions_generated": result.PermissionsGenerated,
	}
	s.emitAudit(event)
}
