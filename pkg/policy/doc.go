// Package policy resolves a user's group memberships into per-application
// roles and effective grants. The role-mapping table is seeded from YAML and
// can be hot-reloaded; grant computation reads the permission registry's last
// persisted state and is never persisted itself.
package policy
