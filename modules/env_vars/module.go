// Package env_vars provides the "env_vars" node: it emits process
// environment variables as a string map, typically feeding script nodes.
package env_vars

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// TypeTag is the node type handled by this package.
const TypeTag = "env_vars"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Env is the env_vars node. With no names and no prefix it emits the whole
// environment.
type Env struct {
	names    []string
	prefix   string
	required bool
}

// New builds the node from its declaration.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	e := &Env{}
	var err error
	if e.names, err = c.Strings("names"); err != nil {
		return nil, err
	}
	if e.prefix, err = c.String("prefix", ""); err != nil {
		return nil, err
	}
	if e.required, err = c.Bool("required", false); err != nil {
		return nil, err
	}
	if e.required && len(e.names) == 0 {
		return nil, fmt.Errorf(`config "required" needs "names"`)
	}
	return e, nil
}

// Type implements node.Node.
func (e *Env) Type() string { return TypeTag }

// Task implements node.Node.
func (e *Env) Task(ctx context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	out := make(map[string]string)
	var missing []string

	if len(e.names) > 0 {
		for _, name := range e.names {
			v, ok := os.LookupEnv(name)
			if !ok {
				missing = append(missing, name)
				continue
			}
			out[name] = v
		}
	} else {
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if ok && strings.HasPrefix(k, e.prefix) {
				out[k] = v
			}
		}
	}

	if e.required && len(missing) > 0 {
		sort.Strings(missing)
		return rc.Fail(&node.DataSourceError{Source: "environment", Err: fmt.Errorf("unset variables: %s", strings.Join(missing, ", "))})
	}
	ctxlog.FromContext(ctx).Debug("Environment read.", "variables", len(out), "missing", len(missing))
	return rc.OK(out)
}

// Test implements node.Tester. It reports the configured names as empty
// strings so dependents see the expected keys.
func (e *Env) Test(_ context.Context, _ result.Inputs, rc *node.RunContext) *result.Envelope {
	out := make(map[string]string, len(e.names))
	for _, name := range e.names {
		out[name] = ""
	}
	return rc.OK(out)
}
