package testutil

import (
	"context"

	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// TaskFunc is the body of a StubNode.
type TaskFunc func(ctx context.Context, decl dag.NodeDecl, in result.Inputs, rc *node.RunContext) *result.Envelope

// StubNode is a node whose behavior is supplied by the test.
type StubNode struct {
	Decl   dag.NodeDecl
	Fn     TaskFunc
	TestFn TaskFunc
}

// Type implements node.Node.
func (s *StubNode) Type() string { return s.Decl.Type }

// Task implements node.Node.
func (s *StubNode) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	return s.Fn(ctx, s.Decl, in, rc)
}

// TestableStub adds test mode support to a StubNode.
type TestableStub struct{ *StubNode }

// Test implements node.Tester.
func (s TestableStub) Test(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	return s.TestFn(ctx, s.Decl, in, rc)
}

// SimpleModule is a test helper for registering a single stub node type.
type SimpleModule struct {
	Tag    string
	Fn     TaskFunc
	TestFn TaskFunc
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	r.Register(m.Tag, func(decl dag.NodeDecl) (node.Node, error) {
		stub := &StubNode{Decl: decl, Fn: m.Fn, TestFn: m.TestFn}
		if m.TestFn != nil {
			return TestableStub{stub}, nil
		}
		return stub, nil
	})
}
