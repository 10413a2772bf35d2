package hooks

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

// Trace emits a span per node for runs started in trace mode. Other runs
// are ignored.
type Trace struct {
	Provider trace.TracerProvider
}

// NewTrace creates a trace hook. A nil provider uses the global one.
func NewTrace(tp trace.TracerProvider) *Trace {
	return &Trace{Provider: tp}
}

func (t *Trace) record(ctx context.Context, ev executor.Event) error {
	if !ev.TraceMode {
		return nil
	}
	meta := ev.Result.Context
	tracing.RecordNode(ctx, t.Provider, tracing.NodeSpan{
		RunID:    ev.RunID,
		NodeID:   ev.NodeID,
		NodeType: ev.NodeType,
		Start:    meta.StartedAt,
		End:      meta.FinishedAt,
		Failed:   ev.Result.Error,
		Message:  ev.Result.ErrorText(),
	})
	return nil
}

// OnComplete implements executor.Hook.
func (t *Trace) OnComplete(ctx context.Context, ev executor.Event) error { return t.record(ctx, ev) }

// OnFailure implements executor.Hook.
func (t *Trace) OnFailure(ctx context.Context, ev executor.Event) error { return t.record(ctx, ev) }
