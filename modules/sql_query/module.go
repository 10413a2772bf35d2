// Package sql_query provides the "sql" node: it runs a query against the
// database handle produced by a named upstream connection node.
package sql_query

import (
	"context"
	"fmt"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/sqldb"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// TypeTag is the node type handled by this package.
const TypeTag = "sql"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Query is the sql node.
type Query struct {
	connection string
	query      string
	params     []any
	columns    []string
}

// New builds a query node from its declaration.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	q := &Query{}
	var err error
	if q.connection, err = c.RequiredString("connection"); err != nil {
		return nil, err
	}
	if q.query, err = c.RequiredString("query"); err != nil {
		return nil, err
	}
	if q.params, err = c.List("params"); err != nil {
		return nil, err
	}
	if q.columns, err = c.Strings("columns"); err != nil {
		return nil, err
	}
	return q, nil
}

// Type implements node.Node.
func (q *Query) Type() string { return TypeTag }

// Handle returns the database handle carried by the named upstream. A
// failed upstream is returned as the second value so callers can propagate
// it.
func Handle(in result.Inputs, upstreamID string) (sqldb.DB, *result.Envelope, error) {
	env, ok := in[upstreamID]
	if !ok {
		return nil, nil, fmt.Errorf("connection upstream %q is not among the inputs %v", upstreamID, in.IDs())
	}
	if env.Error {
		return nil, env, nil
	}
	db, ok := env.Data.(sqldb.DB)
	if !ok {
		return nil, nil, fmt.Errorf("upstream %q did not produce a database handle (got %T)", upstreamID, env.Data)
	}
	return db, nil, nil
}

// Task implements node.Node.
func (q *Query) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	db, failed, err := Handle(in, q.connection)
	if err != nil {
		return rc.Fail(&node.QueryError{Query: q.query, Err: err})
	}
	if failed != nil {
		return rc.Propagate(q.connection, failed)
	}

	ctxlog.FromContext(ctx).Debug("Running query.", "driver", db.Driver(), "query", q.query)
	frame, err := db.Query(ctx, q.query, q.params...)
	if err != nil {
		return rc.Fail(&node.QueryError{Query: q.query, Err: err})
	}
	return rc.OK(frame)
}

// Test implements node.Tester. The wiring is still checked; no query runs.
func (q *Query) Test(_ context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	env, ok := in[q.connection]
	if !ok {
		return rc.Fail(&node.QueryError{Query: q.query, Err: fmt.Errorf("connection upstream %q is not among the inputs %v", q.connection, in.IDs())})
	}
	if env.Error {
		return rc.Propagate(q.connection, env)
	}
	return rc.OK(table.Empty(q.columns...))
}
