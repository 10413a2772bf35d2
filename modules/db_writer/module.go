// Package db_writer provides the "db_writer" node: it appends an upstream
// table to a database table.
package db_writer

import (
	"context"
	"fmt"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/specialistvlad/flowbridge/modules/sql_query"
)

// TypeTag is the node type handled by this package.
const TypeTag = "db_writer"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Writer is the db_writer node.
type Writer struct {
	connection string
	table      string
	source     string
}

// New builds a writer from its declaration.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	w := &Writer{}
	var err error
	if w.connection, err = c.RequiredString("connection"); err != nil {
		return nil, err
	}
	if w.table, err = c.RequiredString("table"); err != nil {
		return nil, err
	}
	if w.source, err = c.String("source", ""); err != nil {
		return nil, err
	}
	return w, nil
}

// Type implements node.Node.
func (w *Writer) Type() string { return TypeTag }

// sourceID picks the upstream holding the rows to write.
func (w *Writer) sourceID(in result.Inputs) (string, error) {
	if w.source != "" {
		if _, ok := in[w.source]; !ok {
			return "", fmt.Errorf("source upstream %q is not among the inputs %v", w.source, in.IDs())
		}
		return w.source, nil
	}
	var candidates []string
	for _, id := range in.IDs() {
		if id != w.connection {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) != 1 {
		return "", fmt.Errorf("expected exactly one data upstream besides %q, got %v; set \"source\"", w.connection, candidates)
	}
	return candidates[0], nil
}

// rows resolves the table to write. A failed source is returned as the
// second value.
func (w *Writer) rows(in result.Inputs) (string, *table.Frame, *result.Envelope, error) {
	id, err := w.sourceID(in)
	if err != nil {
		return "", nil, nil, err
	}
	env := in[id]
	if env.Error {
		return id, nil, env, nil
	}
	f, err := table.FromValue(env.Data)
	if err != nil {
		return id, nil, nil, fmt.Errorf("upstream %q: %w", id, err)
	}
	return id, f, nil, nil
}

// Task implements node.Node.
func (w *Writer) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	db, failed, err := sql_query.Handle(in, w.connection)
	if err != nil {
		return rc.Fail(&node.QueryError{Err: err})
	}
	if failed != nil {
		return rc.Propagate(w.connection, failed)
	}
	srcID, f, failed, err := w.rows(in)
	if err != nil {
		return rc.Fail(&node.QueryError{Err: err})
	}
	if failed != nil {
		return rc.Propagate(srcID, failed)
	}

	ctxlog.FromContext(ctx).Debug("Writing rows.", "table", w.table, "rows", f.Len(), "source", srcID)
	n, err := db.Insert(ctx, w.table, f)
	if err != nil {
		return rc.Fail(&node.QueryError{Query: "insert into " + w.table, Err: err})
	}
	return rc.OK(map[string]any{"success": true, "table": w.table, "rows": n})
}

// Test implements node.Tester. Rows are counted but nothing is written.
func (w *Writer) Test(_ context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	srcID, f, failed, err := w.rows(in)
	if err != nil {
		return rc.Fail(&node.QueryError{Err: err})
	}
	if failed != nil {
		return rc.Propagate(srcID, failed)
	}
	return rc.OK(map[string]any{"success": true, "table": w.table, "rows": int64(f.Len())})
}
