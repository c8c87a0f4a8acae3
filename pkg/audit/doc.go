// Package audit provides append-only security event logging for the
// identity service: role and catalog writes, discovery runs, token
// lifecycle transitions, and replay detections. Sinks are pluggable; the
// in-memory logger backs tests and the admin API, the file logger writes
// newline-delimited JSON with size-based rotation, and the multi logger
// fans one event out to several sinks.
package audit
