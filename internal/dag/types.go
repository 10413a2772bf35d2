package dag

// NodeDecl is a node as declared in a flow: its id, its type tag and the
// opaque configuration handed to the node's constructor.
type NodeDecl struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge declares that Target consumes the result of Source.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Graph is a validated set of nodes and edges.
type Graph struct {
	nodes map[string]*vertex
	edges map[string]Edge
	// partial graphs may reference predecessors that are not members; those
	// references are pruned when sorting.
	partial bool
}

// vertex is un-exported so callers work with ids rather than internals.
type vertex struct {
	decl NodeDecl
	// deps holds the ids this node consumes (predecessors).
	deps map[string]struct{}
	// dependents holds the ids consuming this node (successors).
	dependents map[string]struct{}
}

func newVertex(decl NodeDecl) *vertex {
	return &vertex{
		decl:       decl,
		deps:       make(map[string]struct{}),
		dependents: make(map[string]struct{}),
	}
}
