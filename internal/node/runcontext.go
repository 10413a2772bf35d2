package node

import (
	"fmt"
	"time"

	"github.com/specialistvlad/flowbridge/internal/result"
)

// RunContext is handed to a node for one task invocation. It carries the
// run options and stamps envelopes with the node's identity and timing.
type RunContext struct {
	RunID     string
	Node      result.NodeRef
	Options   *Options
	StartedAt time.Time
}

// NewRunContext starts the clock for one invocation. A nil opts is treated
// as the zero Options.
func NewRunContext(runID string, ref result.NodeRef, opts *Options) *RunContext {
	if opts == nil {
		opts = &Options{}
	}
	return &RunContext{RunID: runID, Node: ref, Options: opts, StartedAt: time.Now()}
}

// TestMode reports whether the run requested test mode.
func (rc *RunContext) TestMode() bool { return rc.Options.TestMode }

func (rc *RunContext) meta() result.Metadata {
	finished := time.Now()
	return result.Metadata{
		RunID:      rc.RunID,
		StartedAt:  rc.StartedAt,
		FinishedAt: finished,
		Duration:   finished.Sub(rc.StartedAt),
		TestMode:   rc.Options.TestMode,
	}
}

// OK wraps a successful payload.
func (rc *RunContext) OK(data any) *result.Envelope {
	return result.OK(rc.Node, rc.meta(), data)
}

// Fail wraps an error as a failed envelope.
func (rc *RunContext) Fail(err error) *result.Envelope {
	return result.Fail(rc.Node, rc.meta(), err)
}

// Failf wraps a formatted error message.
func (rc *RunContext) Failf(format string, args ...any) *result.Envelope {
	return rc.Fail(fmt.Errorf(format, args...))
}

// Propagate re-reports a failed upstream result as this node's outcome,
// keeping the upstream error text unchanged.
func (rc *RunContext) Propagate(upstreamID string, upstream *result.Envelope) *result.Envelope {
	meta := rc.meta()
	meta.PropagatedFrom = upstreamID
	env := result.Fail(rc.Node, meta, nil)
	env.Data = upstream.ErrorText()
	return env
}
