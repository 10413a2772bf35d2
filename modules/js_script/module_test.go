package js_script_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/specialistvlad/flowbridge/internal/testutil"
	"github.com/specialistvlad/flowbridge/modules/js_script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScript(t *testing.T, cfg map[string]any) node.Node {
	t.Helper()
	n, err := js_script.New(dag.NodeDecl{ID: "js", Type: js_script.TypeTag, Config: cfg})
	require.NoError(t, err)
	return n
}

func run(t *testing.T, ctx context.Context, n node.Node, in result.Inputs) *result.Envelope {
	t.Helper()
	rc := node.NewRunContext("run", result.NodeRef{ID: "js", Type: js_script.TypeTag}, nil)
	return n.Task(ctx, in, rc)
}

func ok(id string, data any) *result.Envelope {
	return result.OK(result.NodeRef{ID: id}, result.Metadata{}, data)
}

func TestTask_MultipliesInput(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	env := run(t, ctx, newScript(t, map[string]any{"script": "input * 10"}), result.Inputs{"up": ok("up", 5)})
	require.False(t, env.Error, env.ErrorText())
	assert.Equal(t, int64(50), env.Data)
}

func TestTask_TablesArriveAsRows(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	f, err := table.NewFrame([]string{"x"}, [][]any{{int64(1)}, {int64(2)}, {int64(3)}})
	require.NoError(t, err)

	script := `input.map(function (r) { return {x: r.x, y: r.x * 1.5}; })`
	env := run(t, ctx, newScript(t, map[string]any{"script": script}), result.Inputs{"csv": ok("csv", f)})
	require.False(t, env.Error, env.ErrorText())
	assert.Equal(t, []any{
		map[string]any{"x": int64(1), "y": 1.5},
		map[string]any{"x": int64(2), "y": int64(3)},
		map[string]any{"x": int64(3), "y": 4.5},
	}, env.Data)
}

func TestTask_CustomParamAndInputs(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	n := newScript(t, map[string]any{"script": "inputs.a + inputs.b", "param": "x"})
	env := run(t, ctx, n, result.Inputs{"a": ok("a", 2), "b": ok("b", 3)})
	require.False(t, env.Error, env.ErrorText())
	assert.Equal(t, int64(5), env.Data)

	n = newScript(t, map[string]any{"script": "x.name", "param": "x"})
	env = run(t, ctx, n, result.Inputs{"a": ok("a", map[string]any{"name": "flow"})})
	assert.Equal(t, "flow", env.Data)
}

func TestTask_NoInputAndUndefined(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	env := run(t, ctx, newScript(t, map[string]any{"script": "input === null"}), nil)
	assert.Equal(t, true, env.Data)

	env = run(t, ctx, newScript(t, map[string]any{"script": "var a = 1;"}), nil)
	require.False(t, env.Error)
	assert.Nil(t, env.Data)
}

func TestTask_ThrownErrorBecomesFailure(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	env := run(t, ctx, newScript(t, map[string]any{"script": `throw new Error("bad input")`}), nil)
	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "bad input")
	assert.Contains(t, env.ErrorText(), "javascript")

	env = run(t, ctx, newScript(t, map[string]any{"script": `undefinedFunction()`}), nil)
	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "ReferenceError")
}

func TestTask_PropagatesFailedUpstream(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	failed := result.Fail(result.NodeRef{ID: "csv"}, result.Metadata{}, errors.New("file not found"))
	env := run(t, ctx, newScript(t, map[string]any{"script": "input"}), result.Inputs{"csv": failed})
	require.True(t, env.Error)
	assert.Equal(t, "file not found", env.ErrorText())
	assert.Equal(t, "csv", env.Context.PropagatedFrom)
}

func TestTask_CancellationInterrupts(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	env := run(t, ctx, newScript(t, map[string]any{"script": "while (true) {}"}), nil)
	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "interrupted")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTask_ConsoleLogGoesToLogger(t *testing.T) {
	ctx, logs := testutil.LogContext(t)
	env := run(t, ctx, newScript(t, map[string]any{"script": `console.log("hello", 42); 1`}), nil)
	require.False(t, env.Error, env.ErrorText())
	assert.Contains(t, logs.String(), "hello 42")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(3), js_script.Normalize(3.0))
	assert.Equal(t, 3.25, js_script.Normalize(3.25))
	assert.Equal(t, int64(7), js_script.Normalize(int32(7)))
	assert.Equal(t, []any{"a", "b"}, js_script.Normalize([]string{"a", "b"}))
	assert.Equal(t, []any{map[string]any{"n": int64(1)}},
		js_script.Normalize([]map[string]any{{"n": float64(1)}}))
}
