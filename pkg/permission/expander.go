package permission

import (
	"sort"
	"strings"

	"github.com/platinummonkey/cids/pkg/capability"
)

// Metadata is one row of an application's permission catalog, produced by
// expansion and owned by the registry thereafter.
type Metadata struct {
	PermissionKey    string `json:"permission_key"`
	Resource         string `json:"resource"`
	Action           string `json:"action"`
	FieldPath        string `json:"field_path"`
	Description      string `json:"description,omitempty"`
	Sensitive        bool   `json:"sensitive,omitempty"`
	PII              bool   `json:"pii,omitempty"`
	PHI              bool   `json:"phi,omitempty"`
	SourceEndpointID string `json:"source_endpoint_id,omitempty"`
}

// Expand walks a capability descriptor and emits the flat permission catalog
// for the application. The output is sorted by permission key and contains no
// duplicates, so expanding the same descriptor twice yields identical sets.
func Expand(appID string, d *capability.Descriptor) []Metadata {
	byKey := make(map[string]Metadata)

	for _, pe := range d.AllEndpoints() {
		ep := pe.Endpoint
		resource := pe.ResourcePrefix + ResourceFromPath(ep.Path)
		if resource == "" {
			continue
		}
		action := ActionFromMethod(ep.Method, ep.Path)
		if action == "" {
			continue
		}
		endpointID := ep.OperationID
		if endpointID == "" {
			endpointID = strings.ToUpper(ep.Method) + " " + ep.Path
		}

		// Every endpoint contributes its own wildcard row.
		wildcardKey := appID + "." + resource + "." + action + "." + Wildcard
		byKey[wildcardKey] = Metadata{
			PermissionKey:    wildcardKey,
			Resource:         resource,
			Action:           action,
			FieldPath:        Wildcard,
			Description:      "All fields for " + action + " on " + resource,
			SourceEndpointID: endpointID,
		}

		var fields map[string]*capability.FieldNode
		switch strings.ToUpper(ep.Method) {
		case "GET":
			fields = ep.ResponseFields
		case "POST", "PUT", "PATCH":
			fields = ep.RequestFields
		}

		walkFields(byKey, appID, resource, action, "", endpointID, ep.Description, fields)
	}

	out := make([]Metadata, 0, len(byKey))
	for _, m := range byKey {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionKey < out[j].PermissionKey })
	return out
}

// walkFields recurses through a field tree emitting one catalog row per leaf
// field. Object fields contribute dotted path segments; array-of-object
// fields append "[]" to their segment. Sensitivity flags come from the leaf
// node itself, never the parent.
func walkFields(byKey map[string]Metadata, appID, resource, action, parentPath, endpointID, description string, fields map[string]*capability.FieldNode) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := fields[name]
		if node == nil {
			continue
		}
		path := name
		if parentPath != "" {
			path = parentPath + "." + name
		}

		switch {
		case node.IsObject():
			walkFields(byKey, appID, resource, action, path, endpointID, description, node.Fields)
		case node.IsArray() && node.Items != nil && node.Items.IsObject():
			walkFields(byKey, appID, resource, action, path+"[]", endpointID, description, node.Items.Fields)
		default:
			key := appID + "." + resource + "." + action + "." + path
			byKey[key] = Metadata{
				PermissionKey:    key,
				Resource:         resource,
				Action:           action,
				FieldPath:        path,
				Description:      node.Description,
				Sensitive:        node.Sensitive,
				PII:              node.PII,
				PHI:              node.PHI,
				SourceEndpointID: endpointID,
			}
		}
	}
}

// ResourceFromPath derives the resource name from an endpoint path: parameter
// segments ({id}, :id) are stripped and the remaining segments are joined
// with underscores.
func ResourceFromPath(path string) string {
	var segs []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") || strings.HasPrefix(seg, ":") {
			continue
		}
		segs = append(segs, seg)
	}
	return strings.Join(segs, "_")
}

// ActionFromMethod derives the permission action from the HTTP method. POST
// means create on a collection path and update on an item path (one ending in
// a parameter segment).
func ActionFromMethod(method, path string) string {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return "read"
	case "POST":
		if pathEndsWithParam(path) {
			return "update"
		}
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	}
	return ""
}

func pathEndsWithParam(path string) bool {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 0 {
		return false
	}
	last := segs[len(segs)-1]
	return strings.HasPrefix(last, "{") || strings.HasPrefix(last, ":")
}
