package registry

import (
	"time"
)

// App is a registered application eligible for discovery.
type App struct {
	ID              string     `json:"app_id"`
	Name            string     `json:"name"`
	DiscoveryURL    string     `json:"discovery_url,omitempty"`
	AllowDiscovery  bool       `json:"allow_discovery"`
	DiscoveryStatus string     `json:"discovery_status,omitempty"`
	LastDiscoveryAt *time.Time `json:"last_discovery_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FilterOperator combines a role's own clauses for one field.
type FilterOperator string

const (
	OperatorAnd FilterOperator = "AND"
	OperatorOr  FilterOperator = "OR"
)

// FilterClause is one row-level-security predicate. The expression is opaque
// to CIDS and interpreted by the consuming application.
type FilterClause struct {
	FilterExpression string         `json:"filter_expression"`
	Operator         FilterOperator `json:"operator"`
	Priority         int            `json:"priority"`
}

// RLSFilters maps resource to field to the clause list attached to it.
type RLSFilters map[string]map[string][]FilterClause

// Clone deep-copies the filter map.
func (f RLSFilters) Clone() RLSFilters {
	if f == nil {
		return nil
	}
	out := make(RLSFilters, len(f))
	for resource, fields := range f {
		out[resource] = make(map[string][]FilterClause, len(fields))
		for field, clauses := range fields {
			cp := make([]FilterClause, len(clauses))
			copy(cp, clauses)
			out[resource][field] = cp
		}
	}
	return out
}

// Merge concatenates other's clause lists into f. When both sides define
// clauses for the same (resource, field), the lists are appended; no role
// may remove another role's filter.
func (f RLSFilters) Merge(other RLSFilters) RLSFilters {
	if f == nil {
		f = make(RLSFilters)
	}
	for resource, fields := range other {
		if f[resource] == nil {
			f[resource] = make(map[string][]FilterClause, len(fields))
		}
		for field, clauses := range fields {
			f[resource][field] = append(f[resource][field], clauses...)
		}
	}
	return f
}

// Role binds permission grants, denials and row-level-security filters to a
// name within one application.
type Role struct {
	AppID              string     `json:"app_id"`
	Name               string     `json:"role_name"`
	AllowedPermissions []string   `json:"allowed_permissions"`
	DeniedPermissions  []string   `json:"denied_permissions,omitempty"`
	RLSFilters         RLSFilters `json:"rls_filters,omitempty"`
	Description        string     `json:"description,omitempty"`
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
