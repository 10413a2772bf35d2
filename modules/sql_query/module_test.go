package sql_query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/specialistvlad/flowbridge/internal/testutil"
	"github.com/specialistvlad/flowbridge/modules/sql_query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const q = "SELECT id FROM person"

func newNode(t *testing.T, cfg map[string]any) *sql_query.Query {
	t.Helper()
	n, err := sql_query.New(dag.NodeDecl{ID: "sql_node", Type: sql_query.TypeTag, Config: cfg})
	require.NoError(t, err)
	return n.(*sql_query.Query)
}

func rc(opts *node.Options) *node.RunContext {
	return node.NewRunContext("run", result.NodeRef{ID: "sql_node", Type: sql_query.TypeTag}, opts)
}

func upstream(id string, data any) *result.Envelope {
	return result.OK(result.NodeRef{ID: id, Type: "connection"}, result.Metadata{}, data)
}

func TestTask_QueriesHandle(t *testing.T) {
	want, err := table.NewFrame([]string{"id"}, [][]any{{int64(1)}})
	require.NoError(t, err)
	db := &testutil.FakeDB{Results: map[string]*table.Frame{q: want}}

	n := newNode(t, map[string]any{"connection": "person_db", "query": q})
	env := n.Task(context.Background(), result.Inputs{"person_db": upstream("person_db", db)}, rc(nil))

	require.False(t, env.Error, env.ErrorText())
	assert.Same(t, want, env.Data)
	assert.Equal(t, []string{q}, db.Queries)
}

func TestTask_WrongWiringFails(t *testing.T) {
	n := newNode(t, map[string]any{"connection": "person_csv_node", "query": q})
	env := n.Task(context.Background(), result.Inputs{
		"incorrect_input_node": upstream("incorrect_input_node", &testutil.FakeDB{}),
	}, rc(nil))

	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "person_csv_node")
}

func TestTask_NotAHandle(t *testing.T) {
	n := newNode(t, map[string]any{"connection": "src", "query": q})
	env := n.Task(context.Background(), result.Inputs{"src": upstream("src", "text")}, rc(nil))
	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "database handle")
}

func TestTask_PropagatesFailedConnection(t *testing.T) {
	failed := result.Fail(result.NodeRef{ID: "db", Type: "connection"}, result.Metadata{}, errors.New("auth failed"))
	n := newNode(t, map[string]any{"connection": "db", "query": q})
	env := n.Task(context.Background(), result.Inputs{"db": failed}, rc(nil))

	require.True(t, env.Error)
	assert.Equal(t, "auth failed", env.ErrorText())
	assert.Equal(t, "db", env.Context.PropagatedFrom)
}

func TestTask_QueryErrorIsReported(t *testing.T) {
	db := &testutil.FakeDB{QueryErr: errors.New("syntax error")}
	n := newNode(t, map[string]any{"connection": "db", "query": q})
	env := n.Task(context.Background(), result.Inputs{"db": upstream("db", db)}, rc(nil))
	require.True(t, env.Error)
	assert.Contains(t, env.ErrorText(), "syntax error")
	assert.Contains(t, env.ErrorText(), q)
}

func TestTest_EmptyFrameNoQuery(t *testing.T) {
	db := &testutil.FakeDB{}
	n := newNode(t, map[string]any{"connection": "db", "query": q, "columns": []any{"id"}})
	env := n.Test(context.Background(), result.Inputs{"db": upstream("db", nil)}, rc(&node.Options{TestMode: true}))

	require.False(t, env.Error)
	f := env.Data.(*table.Frame)
	assert.Equal(t, []string{"id"}, f.Columns())
	assert.Empty(t, db.Queries)
}
