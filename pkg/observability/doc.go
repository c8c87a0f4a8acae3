// Package observability provides structured logging, Prometheus metrics,
// and health probes for the CIDS service.
package observability
