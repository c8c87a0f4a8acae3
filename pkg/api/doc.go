// Package api implements the CIDS HTTP surface: application registration,
// discovery control, role administration, authorization checks, the token
// lifecycle, and audit queries.
//
// # Route Groups
//
// Applications:
//
//	POST   /api/v1/apps
//	GET    /api/v1/apps
//	GET    /api/v1/apps/{appID}
//	DELETE /api/v1/apps/{appID}
//	GET    /api/v1/apps/{appID}/permissions
//
// Discovery:
//
//	POST /api/v1/apps/{appID}/discovery?force=true
//	GET  /api/v1/apps/{appID}/discovery/status
//	GET  /api/v1/apps/{appID}/discovery/history
//	POST /api/v1/discovery/run
//
// Roles and authorization:
//
//	POST   /api/v1/apps/{appID}/roles
//	GET    /api/v1/apps/{appID}/roles
//	GET    /api/v1/apps/{appID}/roles/{name}
//	PUT    /api/v1/apps/{appID}/roles/{name}
//	DELETE /api/v1/apps/{appID}/roles/{name}
//	POST   /api/v1/permissions/check
//	GET    /api/v1/apps/{appID}/effective-permissions?roles=a,b
//
// Tokens:
//
//	POST /api/v1/tokens
//	POST /api/v1/tokens/refresh
//	POST /api/v1/tokens/revoke
//	POST /api/v1/tokens/validate
//
// Audit:
//
//	GET /api/v1/audit/events
//
// Authentication middleware is attached by the caller (cmd/cids), keeping
// the server testable without signing infrastructure.
package api
