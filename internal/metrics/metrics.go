// Package metrics defines the Prometheus collectors exported by flowbridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups every metric the executor records.
type Collectors struct {
	NodeDuration *prometheus.HistogramVec
	NodeTotal    *prometheus.CounterVec
	RunTotal     *prometheus.CounterVec
	RunDuration  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewCollectors creates the collectors and registers them with reg. A nil
// reg uses a fresh private registry.
func NewCollectors(reg *prometheus.Registry) *Collectors {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collectors{
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowbridge_node_duration_seconds",
				Help:    "Node execution time in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		NodeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbridge_node_total",
				Help: "Finished node executions by type and status.",
			},
			[]string{"type", "status"}, // ok | failed
		),
		RunTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbridge_run_total",
				Help: "Finished runs by status.",
			},
			[]string{"status"}, // completed | partially_failed
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowbridge_run_duration_seconds",
				Help:    "Run wall time in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		gatherer: reg,
	}
	reg.MustRegister(c.NodeDuration, c.NodeTotal, c.RunTotal, c.RunDuration)
	return c
}

// Handler serves the collectors in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
