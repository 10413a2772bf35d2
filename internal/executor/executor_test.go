package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/inmemorystore"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/nodestore"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timesTen multiplies its single upstream payload by ten and propagates a
// failed upstream unchanged.
var timesTen = &testutil.SimpleModule{
	Tag: "times_ten",
	Fn: func(_ context.Context, _ dag.NodeDecl, in result.Inputs, rc *node.RunContext) *result.Envelope {
		id, up, ok := in.Single()
		if !ok {
			return rc.Failf("expected one upstream, got %d", len(in))
		}
		if up.Error {
			return rc.Propagate(id, up)
		}
		n, ok := up.Data.(int)
		if !ok {
			return rc.Failf("expected int, got %T", up.Data)
		}
		return rc.OK(n * 10)
	},
}

func newRegistry(extra ...registry.Module) *registry.Registry {
	mods := append([]registry.Module{&testutil.ValueModule{}, &testutil.NoOpModule{}, timesTen}, extra...)
	return registry.New(mods...)
}

func mustGraph(t *testing.T, nodes []dag.NodeDecl, edges []dag.Edge) *dag.Graph {
	t.Helper()
	g, err := dag.New(nodes, edges)
	require.NoError(t, err)
	return g
}

type recorder struct {
	mu     sync.Mutex
	events []executor.Event
	err    error
}

func (r *recorder) record(_ context.Context, ev executor.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) OnComplete(ctx context.Context, ev executor.Event) error { return r.record(ctx, ev) }
func (r *recorder) OnFailure(ctx context.Context, ev executor.Event) error  { return r.record(ctx, ev) }

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.NodeID
	}
	return out
}

func TestRun_LinearChainCompletes(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	rec := &recorder{}
	exec := executor.New(newRegistry(), executor.WithHooks(rec), executor.WithRunIDs(func() string { return "run-1" }))

	g := mustGraph(t,
		[]dag.NodeDecl{
			{ID: "source", Type: "value", Config: map[string]any{"value": 5}},
			{ID: "scaled", Type: "times_ten"},
		},
		[]dag.Edge{{ID: "e1", Source: "source", Target: "scaled"}},
	)

	report, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, executor.Completed, report.Status)
	assert.Equal(t, []string{"source", "scaled"}, report.Order)
	assert.Equal(t, 50, report.Results["scaled"].Data)
	assert.Equal(t, node.Done, report.States["scaled"])
	assert.Empty(t, report.Failed())

	require.Equal(t, []string{"source", "scaled"}, rec.ids(), "one hook call per node, in execution order")
	scaled := rec.events[1]
	assert.Equal(t, "times_ten", scaled.NodeType)
	assert.NotNil(t, scaled.Node)
	assert.Equal(t, []string{"source"}, scaled.Inputs.IDs())
	assert.Same(t, report.Results["scaled"], scaled.Result)
}

func TestRun_FailureDoesNotHaltRun(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	exec := executor.New(newRegistry())

	g := mustGraph(t,
		[]dag.NodeDecl{
			{ID: "broken", Type: "value", Config: map[string]any{"fail": "file not found: deaths.csv"}},
			{ID: "dependent", Type: "times_ten"},
			{ID: "independent", Type: "value", Config: map[string]any{"value": 1}},
		},
		[]dag.Edge{{Source: "broken", Target: "dependent"}},
	)

	report, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)

	assert.Equal(t, executor.PartiallyFailed, report.Status)
	assert.Equal(t, []string{"broken", "dependent"}, report.Failed())
	assert.Equal(t, "file not found: deaths.csv", report.Results["dependent"].Data)
	assert.Equal(t, "broken", report.Results["dependent"].Context.PropagatedFrom)
	assert.Equal(t, node.Done, report.States["independent"])
}

func TestRun_UnknownTypeFailsOnlyThatNode(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	rec := &recorder{}
	exec := executor.New(newRegistry(), executor.WithHooks(rec))

	g := mustGraph(t,
		[]dag.NodeDecl{
			{ID: "mystery", Type: "cobol_node"},
			{ID: "after", Type: "noop"},
		},
		[]dag.Edge{{Source: "mystery", Target: "after"}},
	)

	report, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)

	env := report.Results["mystery"]
	require.True(t, env.Error)
	assert.Contains(t, env.Data, `unknown node type "cobol_node"`)
	assert.Equal(t, node.Done, report.States["after"], "dependents still run and decide for themselves")
	assert.Contains(t, logs.String(), "Node cannot be constructed.")

	require.Len(t, rec.events, 2)
	assert.Nil(t, rec.events[0].Node)
}

func TestRun_GraphConstructionErrorIsFatal(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	rec := &recorder{}
	exec := executor.New(newRegistry(), executor.WithHooks(rec))

	g := mustGraph(t,
		[]dag.NodeDecl{{ID: "a", Type: "noop"}, {ID: "b", Type: "noop"}},
		[]dag.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
	)

	report, err := exec.Run(ctx, g, nil)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, dag.ErrCycle)
	assert.Empty(t, rec.ids(), "no node executes")
}

func TestRun_HookErrorsAndPanicsAreSwallowed(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	failing := &recorder{err: errors.New("sink offline")}
	panicking := executor.HookFuncs{Complete: func(context.Context, executor.Event) error { panic("kaboom") }}
	after := &recorder{}
	exec := executor.New(newRegistry(), executor.WithHooks(failing, panicking, after))

	g := mustGraph(t, []dag.NodeDecl{{ID: "v", Type: "value", Config: map[string]any{"value": 3}}}, nil)

	report, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)
	assert.Equal(t, executor.Completed, report.Status)
	assert.Equal(t, 3, report.Results["v"].Data)
	assert.Equal(t, []string{"v"}, after.ids(), "later hooks still run")
	assert.Contains(t, logs.String(), "sink offline")
	assert.Contains(t, logs.String(), "kaboom")
}

func TestRun_TaskPanicBecomesFailedEnvelope(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	exploding := &testutil.SimpleModule{
		Tag: "exploding",
		Fn: func(context.Context, dag.NodeDecl, result.Inputs, *node.RunContext) *result.Envelope {
			panic("index out of range")
		},
	}
	exec := executor.New(newRegistry(exploding))
	g := mustGraph(t, []dag.NodeDecl{{ID: "x", Type: "exploding"}}, nil)

	report, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)
	assert.True(t, report.Results["x"].Error)
	assert.Contains(t, report.Results["x"].Data, "index out of range")
}

func TestRun_TestModeUsesTester(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	io := &testutil.SimpleModule{
		Tag: "io",
		Fn: func(_ context.Context, _ dag.NodeDecl, _ result.Inputs, rc *node.RunContext) *result.Envelope {
			return rc.Failf("touched the network")
		},
		TestFn: func(_ context.Context, _ dag.NodeDecl, _ result.Inputs, rc *node.RunContext) *result.Envelope {
			return rc.OK("stubbed")
		},
	}
	rec := &recorder{}
	exec := executor.New(newRegistry(io), executor.WithHooks(rec))
	g := mustGraph(t, []dag.NodeDecl{{ID: "remote", Type: "io"}}, nil)

	report, err := exec.Run(ctx, g, &node.Options{TestMode: true})
	require.NoError(t, err)
	assert.Equal(t, "stubbed", report.Results["remote"].Data)
	assert.True(t, report.Results["remote"].Context.TestMode)
	assert.True(t, rec.events[0].TestMode)
}

func TestRun_HooksFireBeforeDependentsStart(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	rec := &recorder{}
	var seenAtStart []string
	var mu sync.Mutex
	observer := &testutil.SimpleModule{
		Tag: "observer",
		Fn: func(_ context.Context, _ dag.NodeDecl, _ result.Inputs, rc *node.RunContext) *result.Envelope {
			mu.Lock()
			seenAtStart = rec.ids()
			mu.Unlock()
			return rc.OK(nil)
		},
	}
	exec := executor.New(newRegistry(observer), executor.WithHooks(rec), executor.WithWorkers(4))
	g := mustGraph(t,
		[]dag.NodeDecl{{ID: "up", Type: "noop"}, {ID: "down", Type: "observer"}},
		[]dag.Edge{{Source: "up", Target: "down"}},
	)

	_, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seenAtStart, "up")
}

func TestRun_ConcurrentBranches(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	done := make(chan string, 10)
	sleeper := testutil.NewMockSleeperModule(done, 100*time.Millisecond)
	exec := executor.New(newRegistry(sleeper), executor.WithWorkers(4))

	g := mustGraph(t,
		[]dag.NodeDecl{
			{ID: "root", Type: "sleeper"},
			{ID: "left", Type: "sleeper"},
			{ID: "right", Type: "sleeper"},
			{ID: "join", Type: "sleeper"},
		},
		[]dag.Edge{
			{Source: "root", Target: "left"},
			{Source: "root", Target: "right"},
			{Source: "left", Target: "join"},
			{Source: "right", Target: "join"},
		},
	)

	start := time.Now()
	report, err := exec.Run(ctx, g, nil)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, executor.Completed, report.Status)
	assert.Less(t, elapsed, 390*time.Millisecond, "left and right overlap")
	assert.Equal(t, 2, report.Results["join"].Data, "join receives both branches")

	root, left, right, join := sleeper.Record("root"), sleeper.Record("left"), sleeper.Record("right"), sleeper.Record("join")
	assert.False(t, left.Start.Before(root.End))
	assert.False(t, right.Start.Before(root.End))
	assert.False(t, join.Start.Before(left.End))
	assert.False(t, join.Start.Before(right.End))
}

func TestRerun_UsesPreviousResults(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	exec := executor.New(newRegistry())
	g := mustGraph(t,
		[]dag.NodeDecl{
			{ID: "source", Type: "value", Config: map[string]any{"value": 5}},
			{ID: "scaled", Type: "times_ten"},
		},
		[]dag.Edge{{Source: "source", Target: "scaled"}},
	)

	previous := map[string]*result.Envelope{
		"source": result.OK(result.NodeRef{ID: "source", Type: "value"}, result.Metadata{}, 7),
	}
	report, err := exec.Rerun(ctx, g, []string{"scaled"}, previous, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"scaled"}, report.Order)
	assert.Equal(t, 70, report.Results["scaled"].Data)
	assert.NotContains(t, report.Results, "source")
}

func TestRun_WithStoreSeesEveryTransition(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	var stores []nodestore.Store
	factory := func(prior map[string]*result.Envelope) nodestore.Store {
		s := inmemorystore.Seed(prior)
		stores = append(stores, s)
		return s
	}
	g := mustGraph(t,
		[]dag.NodeDecl{{ID: "a", Type: "value", Config: map[string]any{"value": 2}}, {ID: "b", Type: "times_ten"}},
		[]dag.Edge{{ID: "e", Source: "a", Target: "b"}},
	)

	report, err := executor.New(newRegistry(), executor.WithStore(factory)).Run(ctx, g, nil)
	require.NoError(t, err)
	require.Len(t, stores, 1)

	states, err := stores[0].Statuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]node.State{"a": node.Done, "b": node.Done}, states)

	results, err := stores[0].Results(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, results["b"].Data)
	assert.Same(t, report.Results["b"], results["b"])
}
