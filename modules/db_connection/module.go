// Package db_connection provides the "connection" node, which opens a
// database handle for downstream sql and db_writer nodes.
package db_connection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/executor"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/sqldb"
)

// TypeTag is the node type handled by this package.
const TypeTag = "connection"

// Connector opens a database handle.
type Connector func(ctx context.Context, driver, dsn string) (sqldb.DB, error)

// Module registers the connection node and owns every handle its nodes
// open. Handles are tracked per run: add the module as an executor hook
// and they are closed when their run finishes. Close releases whatever is
// left.
type Module struct {
	// Connect defaults to sqldb.Open.
	Connect Connector

	mu      sync.Mutex
	handles map[string][]sqldb.DB
}

// Register implements the registry.Module interface.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, m.newNode)
}

func (m *Module) connect(ctx context.Context, runID, driver, dsn string) (sqldb.DB, error) {
	connect := m.Connect
	if connect == nil {
		connect = sqldb.Open
	}
	db, err := connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.handles == nil {
		m.handles = make(map[string][]sqldb.DB)
	}
	m.handles[runID] = append(m.handles[runID], db)
	m.mu.Unlock()
	return db, nil
}

// Open returns the number of handles not yet closed.
func (m *Module) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, hs := range m.handles {
		n += len(hs)
	}
	return n
}

// OnComplete implements executor.Hook.
func (m *Module) OnComplete(context.Context, executor.Event) error { return nil }

// OnFailure implements executor.Hook.
func (m *Module) OnFailure(context.Context, executor.Event) error { return nil }

// OnRunFinished implements executor.RunHook. The handles opened during the
// run are closed.
func (m *Module) OnRunFinished(ctx context.Context, report *executor.Report) error {
	m.mu.Lock()
	handles := m.handles[report.RunID]
	delete(m.handles, report.RunID)
	m.mu.Unlock()

	if len(handles) > 0 {
		ctxlog.FromContext(ctx).Debug("Closing database connections.", "count", len(handles))
	}
	return closeAll(handles)
}

// Close closes every handle still open.
func (m *Module) Close() error {
	m.mu.Lock()
	var handles []sqldb.DB
	for _, hs := range m.handles {
		handles = append(handles, hs...)
	}
	m.handles = nil
	m.mu.Unlock()
	return closeAll(handles)
}

func closeAll(handles []sqldb.DB) error {
	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connection is the connection node.
type Connection struct {
	module *Module
	driver string
	dsn    string
	dsnEnv string
}

func (m *Module) newNode(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	driver, err := c.RequiredString("driver")
	if err != nil {
		return nil, err
	}
	dsn, err := c.String("dsn", "")
	if err != nil {
		return nil, err
	}
	dsnEnv, err := c.String("dsn_env", "")
	if err != nil {
		return nil, err
	}
	if dsn == "" && dsnEnv == "" {
		return nil, fmt.Errorf(`one of config "dsn" or "dsn_env" is required`)
	}
	return &Connection{module: m, driver: driver, dsn: dsn, dsnEnv: dsnEnv}, nil
}

// Type implements node.Node.
func (c *Connection) Type() string { return TypeTag }

// Task implements node.Node. The payload is the open handle.
func (c *Connection) Task(ctx context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	dsn := c.dsn
	if c.dsnEnv != "" {
		v, ok := os.LookupEnv(c.dsnEnv)
		if !ok || v == "" {
			return rc.Fail(&node.DataSourceError{Source: c.driver, Err: fmt.Errorf("environment variable %s is not set", c.dsnEnv)})
		}
		dsn = v
	}
	ctxlog.FromContext(ctx).Debug("Opening database connection.", "driver", c.driver)
	db, err := c.module.connect(ctx, rc.RunID, c.driver, dsn)
	if err != nil {
		return rc.Fail(&node.DataSourceError{Source: c.driver, Err: err})
	}
	return rc.OK(db)
}

// Test implements node.Tester. No connection is opened.
func (c *Connection) Test(_ context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	return rc.OK(nil)
}
