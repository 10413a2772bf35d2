// Package hooks provides the lifecycle hooks wired into the executor by the
// app: structured logging, Prometheus metrics, trace-mode spans, result
// persistence and the live dashboard feed.
package hooks
