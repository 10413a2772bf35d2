package testutil

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// NoOpModule registers the "noop" node type, which ignores its inputs and
// succeeds with a nil payload.
type NoOpModule struct{}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	(&SimpleModule{
		Tag: "noop",
		Fn: func(_ context.Context, _ dag.NodeDecl, _ result.Inputs, rc *node.RunContext) *result.Envelope {
			return rc.OK(nil)
		},
	}).Register(r)
}

// ValueModule registers the "value" node type, which emits config["value"]
// unless config["fail"] holds an error text. It is the smallest stand-in
// for a data source.
type ValueModule struct{}

// Register implements the registry.Module interface.
func (m *ValueModule) Register(r *registry.Registry) {
	(&SimpleModule{
		Tag: "value",
		Fn: func(_ context.Context, decl dag.NodeDecl, _ result.Inputs, rc *node.RunContext) *result.Envelope {
			if msg, ok := decl.Config["fail"].(string); ok {
				return rc.Failf("%s", msg)
			}
			return rc.OK(decl.Config["value"])
		},
	}).Register(r)
}
