package hooks

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/metrics"
)

// Metrics records node and run outcomes in Prometheus collectors.
type Metrics struct {
	C *metrics.Collectors
}

// NewMetrics creates a metrics hook.
func NewMetrics(c *metrics.Collectors) *Metrics {
	return &Metrics{C: c}
}

func (m *Metrics) observe(ev executor.Event, status string) {
	m.C.NodeDuration.WithLabelValues(ev.NodeType).Observe(ev.Result.Context.Duration.Seconds())
	m.C.NodeTotal.WithLabelValues(ev.NodeType, status).Inc()
}

// OnComplete implements executor.Hook.
func (m *Metrics) OnComplete(_ context.Context, ev executor.Event) error {
	m.observe(ev, "ok")
	return nil
}

// OnFailure implements executor.Hook.
func (m *Metrics) OnFailure(_ context.Context, ev executor.Event) error {
	m.observe(ev, "failed")
	return nil
}

// OnRunFinished implements executor.RunHook.
func (m *Metrics) OnRunFinished(_ context.Context, report *executor.Report) error {
	m.C.RunTotal.WithLabelValues(string(report.Status)).Inc()
	m.C.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	return nil
}
