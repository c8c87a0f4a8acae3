// Package registry is the durable, queryable store of per-application
// permission catalogs and role definitions.
//
// The registry owns the Role and permission-metadata lifecycles: catalogs
// are replaced atomically by discovery runs, roles are validated against the
// current catalog at write time, and effective permissions are computed with
// deny-overrides-allow semantics and wildcard-aware matching.
//
// PostgreSQL is the source of truth; the in-process cache is a read-through
// optimization repopulated from the store on startup.
package registry
