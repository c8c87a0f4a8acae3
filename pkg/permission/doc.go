// Package permission defines the canonical permission key format
// (app.resource.action.fieldPath) and expands capability descriptors into
// flat sets of grantable permission metadata.
package permission
