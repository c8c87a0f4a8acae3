// Package claims composes the token claim map for an authenticated user:
// roles, effective permissions and row-level-security filters per
// application, security bindings, and the token version. Administrator
// token templates filter which claim keys are emitted. The composer reads
// the last persisted registry state and performs no cryptography; signing
// is the caller's concern.
package claims
