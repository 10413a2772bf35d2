// Package executor runs a validated flow graph: it builds nodes through the
// registry, executes them in dependency order, records each node's envelope
// and fires lifecycle hooks.
//
// A node failure never halts the run. Failed envelopes are delivered to
// dependents like any other result, and each node variant decides how to
// react. Only graph construction errors abort a run, before any node runs.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/inmemorystore"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/nodestore"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// Status is the terminal state of a run.
type Status string

const (
	// Completed means every node produced a successful envelope.
	Completed Status = "completed"
	// PartiallyFailed means at least one node produced a failed envelope.
	PartiallyFailed Status = "partially_failed"
)

// Report is the outcome of a run.
type Report struct {
	RunID      string
	Status     Status
	Order      []string
	Results    map[string]*result.Envelope
	States     map[string]node.State
	StartedAt  time.Time
	FinishedAt time.Time
	TestMode   bool
	TraceMode  bool
}

// Failed returns the ids of failed nodes, sorted.
func (r *Report) Failed() []string {
	var ids []string
	for id, env := range r.Results {
		if env.Error {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Summary renders a one-line description of the run.
func (r *Report) Summary() string {
	failed := r.Failed()
	s := fmt.Sprintf("run %s %s: %d nodes, %d failed in %s",
		r.RunID, r.Status, len(r.Order), len(failed), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if len(failed) > 0 {
		s += " (" + strings.Join(failed, ", ") + ")"
	}
	return s
}

// StoreFactory creates the state store of one run, seeded with results
// produced outside the graph being run (empty for full runs).
type StoreFactory func(prior map[string]*result.Envelope) nodestore.Store

// Executor runs graphs. It is safe to reuse across runs.
type Executor struct {
	registry *registry.Registry
	hooks    []Hook
	workers  int
	newStore StoreFactory
	newRunID func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithHooks appends lifecycle hooks.
func WithHooks(hooks ...Hook) Option {
	return func(e *Executor) { e.hooks = append(e.hooks, hooks...) }
}

// WithWorkers sets the worker pool size. One worker, the default, runs
// nodes strictly sequentially in sorted order.
func WithWorkers(n int) Option {
	return func(e *Executor) { e.workers = n }
}

// WithStore replaces the in-memory state store.
func WithStore(f StoreFactory) Option {
	return func(e *Executor) { e.newStore = f }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(f func() string) Option {
	return func(e *Executor) { e.newRunID = f }
}

// New creates an executor constructing nodes from reg.
func New(reg *registry.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		workers:  1,
		newStore: inmemorystore.Seed,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every node of g.
func (e *Executor) Run(ctx context.Context, g *dag.Graph, opts *node.Options) (*Report, error) {
	return e.run(ctx, g, opts, nil)
}

// Rerun executes only the nodes in only. Upstream results of nodes outside
// that set are taken from previous.
func (e *Executor) Rerun(ctx context.Context, g *dag.Graph, only []string, previous map[string]*result.Envelope, opts *node.Options) (*Report, error) {
	return e.run(ctx, g.Subgraph(only), opts, previous)
}

// RunWithInputs executes g with results of foreign upstream nodes supplied
// up front. The remote executor uses it to seed a sub-flow with the
// payloads handed over by the caller.
func (e *Executor) RunWithInputs(ctx context.Context, g *dag.Graph, inputs map[string]*result.Envelope, opts *node.Options) (*Report, error) {
	return e.run(ctx, g, opts, inputs)
}

func (e *Executor) run(ctx context.Context, g *dag.Graph, opts *node.Options, prior map[string]*result.Envelope) (*Report, error) {
	if opts == nil {
		opts = &node.Options{}
	}
	runID := e.newRunID()
	ctx = ctxlog.With(ctx, "runID", runID)
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	logger.Debug("Building execution plan.", "nodes", g.Len(), "partial", g.Partial())
	order, err := dag.Sort(g)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}
	nodes, buildErrs := e.registry.Build(ctx, g)

	seed := make(map[string]*result.Envelope, len(prior))
	for id, env := range prior {
		if !g.Has(id) {
			seed[id] = env
		}
	}
	store := e.newStore(seed)
	for _, id := range order {
		if err := store.SetStatus(ctx, id, node.Pending); err != nil {
			return nil, fmt.Errorf("initializing state of %s: %w", id, err)
		}
	}

	p := &plan{
		runID:     runID,
		graph:     g,
		order:     order,
		nodes:     nodes,
		buildErrs: buildErrs,
		store:     store,
		opts:      opts,
	}

	logger.Info("🚀 Starting run.", "nodes", len(order), "workers", e.workers, "testMode", opts.TestMode, "traceMode", opts.TraceMode)
	if e.workers <= 1 {
		e.runSequential(ctx, p)
	} else {
		e.runConcurrent(ctx, p)
	}

	report := &Report{
		RunID:      runID,
		Order:      order,
		Results:    make(map[string]*result.Envelope, len(order)),
		States:     make(map[string]node.State, len(order)),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     Completed,
		TestMode:   opts.TestMode,
		TraceMode:  opts.TraceMode,
	}
	for _, id := range order {
		env, _ := store.GetResult(ctx, id)
		state, _ := store.GetStatus(ctx, id)
		report.Results[id] = env
		report.States[id] = state
		if state != node.Done {
			report.Status = PartiallyFailed
		}
	}

	e.fireRunFinished(ctx, report)
	logger.Info("🏁 Run finished.", "status", report.Status, "failed", len(report.Failed()), "duration", report.FinishedAt.Sub(started))
	return report, nil
}

// plan is the immutable input of one run's execution phase.
type plan struct {
	runID     string
	graph     *dag.Graph
	order     []string
	nodes     map[string]node.Node
	buildErrs map[string]error
	store     nodestore.Store
	opts      *node.Options
}

func (e *Executor) runSequential(ctx context.Context, p *plan) {
	for _, id := range p.order {
		e.execute(ctx, p, id)
	}
}

// inputsFor resolves the input set of id from the results recorded so far.
func (p *plan) inputsFor(ctx context.Context, id string) result.Inputs {
	known := make(map[string]*result.Envelope)
	for _, up := range p.graph.Upstream(id) {
		if env, err := p.store.GetResult(ctx, up); err == nil && env != nil {
			known[up] = env
		}
	}
	return dag.ResolveInputs(p.graph, known, id)
}

// execute runs one node through its whole lifecycle: Running, task,
// envelope recorded, terminal state, hooks.
func (e *Executor) execute(ctx context.Context, p *plan, id string) *result.Envelope {
	decl, _ := p.graph.Node(id)
	ref := result.NodeRef{ID: id, Type: decl.Type}
	logger := ctxlog.FromContext(ctx).With("nodeID", id, "type", decl.Type)
	nodeCtx := ctxlog.WithLogger(ctx, logger)

	_ = p.store.SetStatus(ctx, id, node.Running)
	in := p.inputsFor(ctx, id)
	rc := node.NewRunContext(p.runID, ref, p.opts)
	n := p.nodes[id]

	logger.Debug("Node started.", "inputs", in.IDs())
	env := e.invoke(nodeCtx, p, id, n, in, rc)

	state := node.Done
	if env.Error {
		state = node.Failed
		logger.Error("Node failed.", "error", env.ErrorText(), "propagatedFrom", env.Context.PropagatedFrom)
	} else {
		logger.Info("✅ Node done.", "duration", env.Context.Duration)
	}
	_ = p.store.SetResult(ctx, id, env)
	_ = p.store.SetStatus(ctx, id, state)

	e.fire(nodeCtx, Event{
		RunID:     p.runID,
		NodeID:    id,
		NodeType:  decl.Type,
		Node:      n,
		Inputs:    in,
		TestMode:  p.opts.TestMode,
		TraceMode: p.opts.TraceMode,
		Result:    env,
	})
	return env
}

// invoke calls the node's task (or test) and turns anything that is not an
// envelope, including panics, into a failed envelope.
func (e *Executor) invoke(ctx context.Context, p *plan, id string, n node.Node, in result.Inputs, rc *node.RunContext) (env *result.Envelope) {
	if n == nil {
		cause := p.buildErrs[id]
		if cause == nil {
			cause = fmt.Errorf("node cannot run")
		}
		return rc.Fail(&node.NodeExecutionError{NodeID: id, Err: cause})
	}
	if err := ctx.Err(); err != nil {
		return rc.Fail(&node.NodeExecutionError{NodeID: id, Err: fmt.Errorf("run cancelled: %w", err)})
	}

	defer func() {
		if r := recover(); r != nil {
			env = rc.Fail(&node.NodeExecutionError{NodeID: id, Err: fmt.Errorf("task panicked: %v", r)})
		}
	}()

	if p.opts.TestMode {
		if t, ok := n.(node.Tester); ok {
			env = t.Test(ctx, in, rc)
		} else {
			env = n.Task(ctx, in, rc)
		}
	} else {
		env = n.Task(ctx, in, rc)
	}
	if env == nil {
		env = rc.Fail(&node.NodeExecutionError{NodeID: id, Err: fmt.Errorf("task returned no result")})
	}
	return env
}
