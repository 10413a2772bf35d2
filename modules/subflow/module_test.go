package subflow_test

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/api"
	"github.com/specialistvlad/flowbridge/internal/dag"
	flowexec "github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/remote"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/specialistvlad/flowbridge/internal/testutil"
	"github.com/specialistvlad/flowbridge/modules/data_mapper"
	"github.com/specialistvlad/flowbridge/modules/subflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nested = map[string]any{
	"nodes": map[string]any{
		"double": map[string]any{"type": "js_script", "config": map[string]any{"script": "input * 2"}},
	},
	"edges": map[string]any{
		"e1": map[string]any{"source": "up", "target": "double"},
	},
}

const okBody = `{
	"run_id": "remote-1",
	"status": "partially_failed",
	"results": {
		"double": {"error": false, "data": 84, "node": {"id": "double", "type": "js_script"}, "context": {"run_id": "remote-1"}},
		"other":  {"error": true, "data": "nope", "node": {"id": "other", "type": "sql"}, "context": {"run_id": "remote-1"}}
	}
}`

// executor starts a fake remote executor and returns its address.
func executor(t *testing.T, h http.HandlerFunc) *node.Address {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return addressOf(t, srv)
}

func addressOf(t *testing.T, srv *httptest.Server) *node.Address {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return &node.Address{Host: host, Port: p}
}

func newSubflow(t *testing.T, cfg map[string]any) node.Node {
	t.Helper()
	n, err := subflow.New(dag.NodeDecl{ID: "sub", Type: subflow.TypeTag, Config: cfg})
	require.NoError(t, err)
	return n
}

func rcWith(opts *node.Options) *node.RunContext {
	return node.NewRunContext("run-1", result.NodeRef{ID: "sub", Type: subflow.TypeTag}, opts)
}

func TestTask_FansOutNestedResults(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	var got remote.RunRequest
	addr := executor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(okBody))
	})

	in := result.Inputs{
		"up":     result.OK(result.NodeRef{ID: "up", Type: "js_script"}, result.Metadata{RunID: "run-1"}, 42),
		"broken": result.Fail(result.NodeRef{ID: "broken", Type: "csv"}, result.Metadata{RunID: "run-1"}, errors.New("missing file")),
	}
	n := newSubflow(t, map[string]any{"flow": nested})
	env := n.Task(ctx, in, rcWith(&node.Options{TraceMode: true, ExecutorAddress: addr}))
	require.False(t, env.Error, env.ErrorText())

	out, ok := env.Data.(map[string]*result.Envelope)
	require.True(t, ok, "payload is %T", env.Data)
	require.Len(t, out, 2)
	assert.Equal(t, float64(84), out["double"].Data)
	assert.True(t, out["other"].Error)

	assert.True(t, got.Options.TraceMode)
	assert.Contains(t, string(got.Flow), `"double"`)
	require.Contains(t, got.Inputs, "broken")
	assert.Contains(t, string(got.Inputs["broken"]), `"error":true`)
}

func TestTask_OwnAddressWins(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	called := false
	addr := executor(t, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = w.Write([]byte(okBody))
	})

	n := newSubflow(t, map[string]any{"flow": nested, "host": addr.Host, "port": addr.Port})
	env := n.Task(ctx, result.Inputs{}, rcWith(&node.Options{ExecutorAddress: &node.Address{Host: "127.0.0.1", Port: 1}}))
	require.False(t, env.Error, env.ErrorText())
	assert.True(t, called)
}

func TestTask_TablesReachRemoteMapper(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	exec := flowexec.New(registry.New(&data_mapper.Module{}))
	srv := httptest.NewServer(api.New(ctx, exec, nil))
	t.Cleanup(srv.Close)

	person, err := table.NewFrame([]string{"id", "name"}, [][]any{{int64(1), "ann"}, {int64(2), "bob"}})
	require.NoError(t, err)
	death, err := table.NewFrame([]string{"id", "year"}, [][]any{{int64(2), int64(1999)}})
	require.NoError(t, err)
	in := result.Inputs{
		"person": result.OK(result.NodeRef{ID: "person", Type: "csv"}, result.Metadata{RunID: "run-1"}, person),
		"death":  result.OK(result.NodeRef{ID: "death", Type: "csv"}, result.Metadata{RunID: "run-1"}, death),
	}
	flow := map[string]any{
		"nodes": map[string]any{
			"joined": map[string]any{"type": "mapper", "config": map[string]any{"left": "person", "right": "death", "on": "id"}},
		},
		"edges": map[string]any{
			"e1": map[string]any{"source": "person", "target": "joined"},
			"e2": map[string]any{"source": "death", "target": "joined"},
		},
	}

	env := newSubflow(t, map[string]any{"flow": flow, "strict": true}).
		Task(ctx, in, rcWith(&node.Options{ExecutorAddress: addressOf(t, srv)}))
	require.False(t, env.Error, env.ErrorText())

	out := env.Data.(map[string]*result.Envelope)
	require.Contains(t, out, "joined")
	joined, ok := out["joined"].Data.(*table.Frame)
	require.True(t, ok, "payload is %T", out["joined"].Data)
	assert.Equal(t, []string{"id", "name", "year"}, joined.Columns())
	assert.Equal(t, [][]any{{int64(2), "bob", int64(1999)}}, joined.Rows())
}

func TestTask_StrictFailsOnNestedFailure(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	addr := executor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okBody))
	})

	n := newSubflow(t, map[string]any{"flow": nested, "strict": true})
	env := n.Task(ctx, result.Inputs{}, rcWith(&node.Options{ExecutorAddress: addr}))
	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "remote-1")
	assert.Contains(t, env.ErrorText(), "other")
}

func TestTask_RemoteErrors(t *testing.T) {
	ctx, _ := testutil.LogContext(t)

	t.Run("non-200", func(t *testing.T) {
		addr := executor(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message": "unknown node type \"nope\""}`))
		})
		env := newSubflow(t, map[string]any{"flow": nested}).Task(ctx, result.Inputs{}, rcWith(&node.Options{ExecutorAddress: addr}))
		require.True(t, env.Error)
		assert.Contains(t, env.ErrorText(), "returned 400")
		assert.Contains(t, env.ErrorText(), "unknown node type")
	})

	t.Run("no address", func(t *testing.T) {
		env := newSubflow(t, map[string]any{"flow": nested}).Task(ctx, result.Inputs{}, rcWith(nil))
		require.True(t, env.Error)
		assert.Contains(t, env.ErrorText(), "no executor address")
	})
}

func TestTest_NoIO(t *testing.T) {
	ctx, _ := testutil.LogContext(t)
	addr := executor(t, func(http.ResponseWriter, *http.Request) {
		t.Error("test mode must not call the executor")
	})
	n := newSubflow(t, map[string]any{"flow": nested})
	tester, ok := n.(node.Tester)
	require.True(t, ok)

	env := tester.Test(ctx, result.Inputs{}, rcWith(&node.Options{TestMode: true, ExecutorAddress: addr}))
	require.False(t, env.Error)
	assert.Equal(t, map[string]*result.Envelope{}, env.Data)
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := map[string]map[string]any{
		"no flow":       {},
		"flow not map":  {"flow": "x"},
		"host only":     {"flow": nested, "host": "localhost"},
		"bad timeout":   {"flow": nested, "timeout": -1},
		"strict string": {"flow": nested, "strict": 3},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := subflow.New(dag.NodeDecl{ID: "sub", Type: subflow.TypeTag, Config: cfg})
			assert.Error(t, err)
		})
	}
}
