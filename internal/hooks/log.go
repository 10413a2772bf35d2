package hooks

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/executor"
)

// Log writes one line per finished node and one per finished run.
type Log struct{}

// OnComplete implements executor.Hook.
func (Log) OnComplete(ctx context.Context, ev executor.Event) error {
	ctxlog.FromContext(ctx).Debug("Node result recorded.",
		"nodeID", ev.NodeID,
		"type", ev.NodeType,
		"duration", ev.Result.Context.Duration,
	)
	return nil
}

// OnFailure implements executor.Hook.
func (Log) OnFailure(ctx context.Context, ev executor.Event) error {
	args := []any{"nodeID", ev.NodeID, "type", ev.NodeType, "error", ev.Result.ErrorText()}
	if from := ev.Result.Context.PropagatedFrom; from != "" {
		args = append(args, "propagatedFrom", from)
	}
	ctxlog.FromContext(ctx).Warn("Node result recorded as failure.", args...)
	return nil
}

// OnRunFinished implements executor.RunHook.
func (Log) OnRunFinished(ctx context.Context, report *executor.Report) error {
	ctxlog.FromContext(ctx).Info(report.Summary())
	return nil
}
