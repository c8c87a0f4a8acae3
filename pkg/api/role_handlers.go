package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/cids/pkg/audit"
	"github.com/platinummonkey/cids/pkg/contextkeys"
	"github.com/platinummonkey/cids/pkg/httputil"
	"github.com/platinummonkey/cids/pkg/registry"
)

// RoleRequest is the role create/update payload.
type RoleRequest struct {
	Name               string              `json:"role_name"`
	AllowedPermissions []string            `json:"allowed_permissions"`
	DeniedPermissions  []string            `json:"denied_permissions,omitempty"`
	RLSFilters         registry.RLSFilters `json:"rls_filters,omitempty"`
	Description        string              `json:"description,omitempty"`
}

// RoleResponse reports the accepted key sets after catalog validation.
type RoleResponse struct {
	AppID              string   `json:"app_id"`
	Name               string   `json:"role_name"`
	AllowedPermissions []string `json:"allowed_permissions"`
	DeniedPermissions  []string `json:"denied_permissions"`
}

func (s *Server) upsertRole(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	var req RoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "role_name") {
		return
	}

	s.writeRole(w, r, appID, req.Name, req, http.StatusCreated, audit.EventTypeRoleCreate)
}

func (s *Server) upsertNamedRole(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	var req RoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	s.writeRole(w, r, appID, name, req, http.StatusOK, audit.EventTypeRoleUpdate)
}

func (s *Server) writeRole(w http.ResponseWriter, r *http.Request, appID, name string, req RoleRequest, status int, eventType audit.EventType) {
	allowed, denied, err := s.registry.CreateOrUpdateRole(r.Context(), appID, name, registry.RoleInput{
		AllowedPermissions: req.AllowedPermissions,
		DeniedPermissions:  req.DeniedPermissions,
		RLSFilters:         req.RLSFilters,
		Description:        req.Description,
	})
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFoundError(w, "application not found")
			return
		}
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"app_id": appID, "role": name,
		}).Error("role write failed")
		httputil.WriteInternalError(w, errors.New("role write failed"))
		return
	}

	event := audit.NewEvent(eventType, audit.EventStatusSuccess, "role written")
	event.AppID = appID
	event.RoleName = name
	event.Subject = contextkeys.GetSubject(r.Context())
	event.IPAddress = clientIP(r)
	s.emitAudit(event)

	httputil.WriteJSON(w, status, RoleResponse{
		AppID:              appID,
		Name:               name,
		AllowedPermissions: allowed,
		DeniedPermissions:  denied,
	})
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	roles, err := s.registry.ListRoles(r.Context(), appID)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("listing roles failed"))
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	role, err := s.registry.GetRole(r.Context(), appID, name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, errors.New("fetching role failed"))
		return
	}
	httputil.WriteSuccess(w, role)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	if err := s.registry.DeleteRole(r.Context(), appID, name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteNotFoundError(w, "role not found")
			return
		}
		httputil.WriteInternalError(w, errors.New("role delete failed"))
		return
	}

	event := audit.NewEvent(audit.EventTypeRoleDelete, audit.EventStatusSuccess, "role deleted")
	event.AppID = appID
	event.RoleName = name
	event.Subject = contextkeys.GetSubject(r.Context())
	event.IPAddress = clientIP(r)
	s.emitAudit(event)

	httputil.WriteNoContent(w)
}

// CheckPermissionRequest asks whether a role set grants one permission key.
type CheckPermissionRequest struct {
	AppID      string   `json:"app_id"`
	Roles      []string `json:"roles"`
	Permission string   `json:"permission"`
}

func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.AppID, "app_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Permission, "permission") {
		return
	}

	allowed, err := s.registry.CheckPermission(r.Context(), req.AppID, req.Roles, req.Permission)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("permission check failed"))
		return
	}

	if !allowed {
		event := audit.NewEvent(audit.EventTypePermissionDenied, audit.EventStatusDenied, "permission check denied")
		event.AppID = req.AppID
		event.Subject = contextkeys.GetSubject(r.Context())
		event.IPAddress = clientIP(r)
		event.Metadata = map[string]interface{}{
			"permission": req.Permission,
			"roles":      req.Roles,
		}
		s.emitAudit(event)
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"app_id":     req.AppID,
		"permission": req.Permission,
		"allowed":    allowed,
	})
}

func (s *Server) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}

	rolesParam := httputil.ParseQueryString(r, "roles", "")
	if rolesParam == "" {
		httputil.WriteValidationError(w, "roles query parameter is required")
		return
	}
	roles := strings.Split(rolesParam, ",")

	perms, err := s.registry.GetEffectivePermissions(r.Context(), appID, roles)
	if err != nil {
		httputil.WriteInternalError(w, errors.New("computing effective permissions failed"))
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"app_id":      appID,
		"roles":       roles,
		"permissions": perms,
	})
}
