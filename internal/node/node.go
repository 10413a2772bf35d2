// Package node defines the contract every node variant implements, the
// per-invocation run context, and the error taxonomy node tasks report
// through failed result envelopes.
package node

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/result"
)

// Node is a constructed, ready-to-run vertex of a flow.
//
// Task never returns a Go error: every outcome, including failures, is an
// envelope built through the RunContext. Inputs holds the results of the
// node's upstream nodes; nodes with a single upstream typically read it
// with Inputs.Single.
type Node interface {
	Type() string
	Task(ctx context.Context, in result.Inputs, rc *RunContext) *result.Envelope
}

// Tester is implemented by nodes that support test mode. Test must not
// touch external systems (files, databases, remote executors).
type Tester interface {
	Test(ctx context.Context, in result.Inputs, rc *RunContext) *result.Envelope
}

// State is the execution state of a node within one run.
type State int32

const (
	// Pending indicates the node is waiting for its upstream nodes.
	Pending State = iota
	// Running indicates the node's task is executing.
	Running
	// Done indicates the node produced a successful envelope.
	Done
	// Failed indicates the node produced a failed envelope.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == Done || s == Failed }
