// Package discovery fetches capability descriptors from registered
// applications and turns them into permission catalogs.
//
// The Fetcher performs a single authenticated fetch with a health-check
// preflight. The RetryPolicy wraps it with exponential backoff and error
// classification. The Coordinator owns caching, per-application
// serialization, progress reporting, discovery history, and batch fan-out.
package discovery
