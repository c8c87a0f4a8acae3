package capability

import (
	"encoding/json"
	"fmt"
)

// DiscoveryVersion is the capability protocol version this pipeline speaks.
const DiscoveryVersion = "2.0"

// FieldType enumerates the types a discovered field may declare
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeInteger  FieldType = "integer"
	TypeBoolean  FieldType = "boolean"
	TypeObject   FieldType = "object"
	TypeArray    FieldType = "array"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "datetime"
)

// IsValid reports whether t is a recognized field type
func (t FieldType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray, TypeDate, TypeDateTime:
		return true
	}
	return false
}

// FieldNode is one node of a recursive field tree. Fields is set if and only
// if Type is object; Items is set if and only if Type is array.
type FieldNode struct {
	Type        FieldType             `json:"type"`
	Description string                `json:"description,omitempty"`
	Sensitive   bool                  `json:"sensitive,omitempty"`
	PII         bool                  `json:"pii,omitempty"`
	PHI         bool                  `json:"phi,omitempty"`
	Fields      map[string]*FieldNode `json:"fields,omitempty"`
	Items       *FieldNode            `json:"items,omitempty"`
}

// IsObject reports whether the node is a nested object
func (n *FieldNode) IsObject() bool {
	return n.Type == TypeObject
}

// IsArray reports whether the node is an array
func (n *FieldNode) IsArray() bool {
	return n.Type == TypeArray
}

// Endpoint describes one operation exposed by an application
type Endpoint struct {
	Method         string                `json:"method"`
	Path           string                `json:"path"`
	OperationID    string                `json:"operation_id,omitempty"`
	Description    string                `json:"description,omitempty"`
	ResponseFields map[string]*FieldNode `json:"response_fields,omitempty"`
	RequestFields  map[string]*FieldNode `json:"request_fields,omitempty"`
	Tags           []string              `json:"tags,omitempty"`
}

// Service groups endpoints under a named sub-service for multi-service
// descriptors. Resources expanded from a service are prefixed with its name.
type Service struct {
	Name      string     `json:"name"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Descriptor is a complete capability description fetched from an
// application's discovery URL. Descriptors are immutable once fetched; a new
// discovery run supersedes, never mutates, the previous one.
type Descriptor struct {
	AppID     string     `json:"app_id"`
	AppName   string     `json:"app_name"`
	Version   string     `json:"version,omitempty"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
	Services  []Service  `json:"services,omitempty"`
}

// descriptorWire tolerates both snake_case and camelCase spellings for the
// identity fields, which real discovery documents mix freely.
type descriptorWire struct {
	AppID        string     `json:"app_id"`
	AppIDCamel   string     `json:"appId"`
	AppName      string     `json:"app_name"`
	AppNameCamel string     `json:"appName"`
	Version      string     `json:"version"`
	Endpoints    []Endpoint `json:"endpoints"`
	Services     []Service  `json:"services"`
}

// UnmarshalJSON decodes a descriptor, accepting appId/app_id and
// appName/app_name interchangeably.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var w descriptorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.AppID = w.AppID
	if d.AppID == "" {
		d.AppID = w.AppIDCamel
	}
	d.AppName = w.AppName
	if d.AppName == "" {
		d.AppName = w.AppNameCamel
	}
	d.Version = w.Version
	d.Endpoints = w.Endpoints
	d.Services = w.Services
	return nil
}

// AllEndpoints returns every endpoint in the descriptor together with the
// resource prefix it should carry ("" for top-level endpoints,
// "<serviceName>_" for endpoints nested under a service).
func (d *Descriptor) AllEndpoints() []PrefixedEndpoint {
	out := make([]PrefixedEndpoint, 0, len(d.Endpoints))
	for i := range d.Endpoints {
		out = append(out, PrefixedEndpoint{Endpoint: d.Endpoints[i]})
	}
	for _, svc := range d.Services {
		for i := range svc.Endpoints {
			out = append(out, PrefixedEndpoint{
				Endpoint:       svc.Endpoints[i],
				ResourcePrefix: svc.Name + "_",
			})
		}
	}
	return out
}

// PrefixedEndpoint pairs an endpoint with the resource prefix derived from
// its enclosing service, if any.
type PrefixedEndpoint struct {
	Endpoint       Endpoint
	ResourcePrefix string
}

// LegacyEndpoint is the v1 discovery shape: no field-level data, only a flat
// role list per endpoint.
type LegacyEndpoint struct {
	Method        string   `json:"method"`
	Path          string   `json:"path"`
	Description   string   `json:"description,omitempty"`
	RequiredRoles []string `json:"required_roles,omitempty"`
}

// LegacyDescriptor is the v1 discovery document accepted by the legacy
// fallback path.
type LegacyDescriptor struct {
	AppID     string           `json:"app_id"`
	AppName   string           `json:"app_name"`
	Endpoints []LegacyEndpoint `json:"endpoints"`
}

// Upgrade converts a legacy descriptor into a v2 descriptor with empty field
// trees, so the rest of the pipeline can treat both shapes uniformly.
func (l *LegacyDescriptor) Upgrade() *Descriptor {
	d := &Descriptor{
		AppID:   l.AppID,
		AppName: l.AppName,
		Version: "1.0",
	}
	for _, ep := range l.Endpoints {
		d.Endpoints = append(d.Endpoints, Endpoint{
			Method:      ep.Method,
			Path:        ep.Path,
			Description: ep.Description,
			Tags:        ep.RequiredRoles,
		})
	}
	return d
}

// Decode parses a v2 capability descriptor from raw JSON. It does not
// validate structure; call Validate on the result.
func Decode(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("malformed capability document: %w", err)
	}
	return &d, nil
}

// DecodeLegacy parses a v1 capability descriptor from raw JSON.
func DecodeLegacy(data []byte) (*LegacyDescriptor, error) {
	var d LegacyDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("malformed legacy capability document: %w", err)
	}
	return &d, nil
}
