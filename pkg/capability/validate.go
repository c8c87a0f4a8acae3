package capability

import (
	"errors"
	"fmt"
)

// ErrUpgradeRequired is returned when a descriptor declares protocol version
// 1.0 on the v2 pipeline. Callers may fall back to DecodeLegacy.
var ErrUpgradeRequired = errors.New("capability document declares version 1.0: discovery protocol upgrade required")

// ValidationError describes a structural violation in a capability document
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid capability document: %s: %s", e.Field, e.Reason)
}

// Validate checks the structural invariants of a v2 descriptor:
// app identity fields present, exactly one of endpoints/services populated,
// method and path on every endpoint, and field-tree shape consistency.
func (d *Descriptor) Validate() error {
	if d.Version == "1.0" {
		return ErrUpgradeRequired
	}
	if d.AppID == "" {
		return &ValidationError{Field: "appId", Reason: "required"}
	}
	if d.AppName == "" {
		return &ValidationError{Field: "appName", Reason: "required"}
	}

	hasEndpoints := len(d.Endpoints) > 0
	hasServices := len(d.Services) > 0
	if hasEndpoints == hasServices {
		return &ValidationError{Field: "endpoints", Reason: "exactly one of endpoints or services must be present"}
	}

	for i, ep := range d.Endpoints {
		if err := validateEndpoint(fmt.Sprintf("endpoints[%d]", i), ep); err != nil {
			return err
		}
	}
	for si, svc := range d.Services {
		if svc.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("services[%d].name", si), Reason: "required"}
		}
		for i, ep := range svc.Endpoints {
			if err := validateEndpoint(fmt.Sprintf("services[%d].endpoints[%d]", si, i), ep); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateEndpoint(where string, ep Endpoint) error {
	if ep.Method == "" {
		return &ValidationError{Field: where + ".method", Reason: "required"}
	}
	if ep.Path == "" {
		return &ValidationError{Field: where + ".path", Reason: "required"}
	}
	for name, node := range ep.ResponseFields {
		if err := validateFieldNode(where+".response_fields."+name, node); err != nil {
			return err
		}
	}
	for name, node := range ep.RequestFields {
		if err := validateFieldNode(where+".request_fields."+name, node); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldNode(where string, node *FieldNode) error {
	if node == nil {
		return &ValidationError{Field: where, Reason: "null field node"}
	}
	if node.Type != "" && !node.Type.IsValid() {
		return &ValidationError{Field: where + ".type", Reason: fmt.Sprintf("unknown type %q", node.Type)}
	}
	if len(node.Fields) > 0 && node.Type != TypeObject {
		return &ValidationError{Field: where, Reason: "fields set on non-object node"}
	}
	if node.Items != nil && node.Type != TypeArray {
		return &ValidationError{Field: where, Reason: "items set on non-array node"}
	}
	if node.Type == TypeArray && node.Items == nil {
		return &ValidationError{Field: where, Reason: "array node missing items"}
	}
	for name, child := range node.Fields {
		if err := validateFieldNode(where+"."+name, child); err != nil {
			return err
		}
	}
	if node.Items != nil {
		if err := validateFieldNode(where+".items", node.Items); err != nil {
			return err
		}
	}
	return nil
}
