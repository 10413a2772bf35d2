// Package print provides the "print" node, a sink that writes the payload
// of every upstream result as JSON, one line per input in id order.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/serialize"
)

// TypeTag is the node type handled by this package.
const TypeTag = "print"

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out defaults to os.Stdout.
	Out io.Writer

	mu sync.Mutex
}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, m.newNode)
}

// Printer is the print node.
type Printer struct {
	module *Module
	label  string
}

func (m *Module) newNode(decl dag.NodeDecl) (node.Node, error) {
	label, err := node.Config(decl.Config).String("label", decl.ID)
	if err != nil {
		return nil, err
	}
	return &Printer{module: m, label: label}, nil
}

// Type implements node.Node.
func (p *Printer) Type() string { return TypeTag }

// Task implements node.Node. Failed inputs are printed with their error
// text and the first of them is propagated; the node itself emits the
// number of lines written.
func (p *Printer) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	out := p.module.Out
	if out == nil {
		out = os.Stdout
	}
	ctxlog.FromContext(ctx).Info("Printing input", "label", p.label, "inputs", len(in))

	p.module.mu.Lock()
	defer p.module.mu.Unlock()

	if len(in) == 0 {
		if _, err := fmt.Fprintf(out, "[%s] (no input)\n", p.label); err != nil {
			return rc.Fail(err)
		}
		return rc.OK(0)
	}
	for _, id := range in.IDs() {
		env := in[id]
		line := ""
		if env.Error {
			line = fmt.Sprintf("[%s] %s failed: %s\n", p.label, id, env.ErrorText())
		} else {
			b, err := serialize.JSON(env.Data)
			if err != nil {
				return rc.Fail(fmt.Errorf("printing %s: %w", id, err))
			}
			line = fmt.Sprintf("[%s] %s = %s\n", p.label, id, b)
		}
		if _, err := io.WriteString(out, line); err != nil {
			return rc.Fail(err)
		}
	}
	if id, failed, ok := in.FirstFailure(); ok {
		return rc.Propagate(id, failed)
	}
	return rc.OK(len(in))
}
