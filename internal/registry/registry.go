package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
)

// Module is the interface that all node variant packages implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Factory builds a node from its declaration. It returns an error when the
// declaration's configuration is invalid.
type Factory func(decl dag.NodeDecl) (node.Node, error)

// Registry holds the constructors of one application instance.
type Registry struct {
	factories map[string]Factory
}

// New creates an empty registry and registers the given modules.
func New(modules ...Module) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Register binds a type tag to a constructor. Registering a tag twice is a
// programmer error and panics.
func (r *Registry) Register(tag string, f Factory) {
	if _, exists := r.factories[tag]; exists {
		panic(fmt.Sprintf("node type '%s' already registered", tag))
	}
	r.factories[tag] = f
}

// Types returns the registered tags, sorted.
func (r *Registry) Types() []string {
	tags := make([]string, 0, len(r.factories))
	for t := range r.factories {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// UnknownNodeTypeError reports a declaration whose type tag has no
// registered constructor.
type UnknownNodeTypeError struct {
	NodeID string
	Type   string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("node %q: unknown node type %q", e.NodeID, e.Type)
}

// InvalidConfigError reports a constructor that rejected a declaration.
type InvalidConfigError struct {
	NodeID string
	Type   string
	Err    error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("node %q (%s): invalid configuration: %v", e.NodeID, e.Type, e.Err)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

// Construct builds the node for decl. It returns nil, after logging the
// reason, when the type is unknown or the constructor fails; callers treat
// a nil node as "this node cannot run".
func (r *Registry) Construct(ctx context.Context, decl dag.NodeDecl) node.Node {
	n, err := r.TryConstruct(decl)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Node cannot be constructed.", "nodeID", decl.ID, "type", decl.Type, "error", err)
		return nil
	}
	return n
}

// TryConstruct is Construct with the reason returned instead of logged.
func (r *Registry) TryConstruct(decl dag.NodeDecl) (n node.Node, err error) {
	f, ok := r.factories[decl.Type]
	if !ok {
		return nil, &UnknownNodeTypeError{NodeID: decl.ID, Type: decl.Type}
	}

	defer func() {
		if rec := recover(); rec != nil {
			n, err = nil, &InvalidConfigError{NodeID: decl.ID, Type: decl.Type, Err: fmt.Errorf("constructor panicked: %v", rec)}
		}
	}()

	n, err = f(decl)
	if err != nil {
		return nil, &InvalidConfigError{NodeID: decl.ID, Type: decl.Type, Err: err}
	}
	if n == nil {
		return nil, &InvalidConfigError{NodeID: decl.ID, Type: decl.Type, Err: fmt.Errorf("constructor returned no node")}
	}
	return n, nil
}

// Build constructs every node of g. Nodes that cannot be constructed are
// absent from nodes; errs maps their ids to the reason.
func (r *Registry) Build(ctx context.Context, g *dag.Graph) (nodes map[string]node.Node, errs map[string]error) {
	nodes = make(map[string]node.Node, g.Len())
	errs = make(map[string]error)
	logger := ctxlog.FromContext(ctx)
	for _, id := range g.IDs() {
		decl, _ := g.Node(id)
		n, err := r.TryConstruct(decl)
		if err != nil {
			logger.Warn("Node cannot be constructed.", "nodeID", id, "type", decl.Type, "error", err)
			errs[id] = err
			continue
		}
		nodes[id] = n
	}
	return nodes, errs
}
