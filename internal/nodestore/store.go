// Package nodestore defines the interface for the mutable, per-run
// execution state of nodes: their lifecycle state and the envelope each one
// produced.
//
// The store is separate from the immutable graph structure held by the dag
// package. It is created once per run, initialized with every node Pending,
// written by the executor as nodes transition, read when input sets are
// resolved, and discarded when the run ends.
//
// Nodes follow this lifecycle:
//
//	Pending → Running → Done (successful envelope) OR Failed (failed envelope)
package nodestore

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// Store manages the execution state of one run.
//
// Implementations MUST be safe for concurrent use: with a worker pool,
// several nodes transition while others read their upstream results.
type Store interface {
	// SetStatus records a state transition.
	SetStatus(ctx context.Context, id string, status node.State) error

	// GetStatus returns the state of a node, Pending when never set.
	GetStatus(ctx context.Context, id string) (node.State, error)

	// SetResult records the envelope a node produced. It is written
	// before the node's terminal state so readers that observe Done or
	// Failed always find the envelope.
	SetResult(ctx context.Context, id string, env *result.Envelope) error

	// GetResult returns the envelope of a node, nil if none was recorded.
	GetResult(ctx context.Context, id string) (*result.Envelope, error)

	// Results returns a snapshot of every recorded envelope.
	Results(ctx context.Context) (map[string]*result.Envelope, error)

	// Statuses returns a snapshot of every recorded state.
	Statuses(ctx context.Context) (map[string]node.State, error)
}
