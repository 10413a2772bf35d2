package dag

import (
	"fmt"
	"sort"
)

// New validates the declarations and builds a graph. Duplicate node ids,
// empty ids and edges referencing missing nodes are rejected with a
// GraphConstructionError. Cycles are reported by Sort.
func New(nodes []NodeDecl, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*vertex, len(nodes)),
		edges: make(map[string]Edge, len(edges)),
	}

	for _, n := range nodes {
		if err := g.addNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := g.addEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) addNode(decl NodeDecl) error {
	if decl.ID == "" {
		return &GraphConstructionError{Kind: KindInvalid, Msg: "node with empty id"}
	}
	if _, ok := g.nodes[decl.ID]; ok {
		return &GraphConstructionError{Kind: KindDuplicate, NodeIDs: []string{decl.ID}, Msg: "node declared twice"}
	}
	g.nodes[decl.ID] = newVertex(decl)
	return nil
}

// addEdge records that e.Target depends on e.Source. A self edge is kept so
// that Sort reports it as a cycle.
func (g *Graph) addEdge(e Edge) error {
	if e.ID == "" {
		e.ID = fmt.Sprintf("%s->%s", e.Source, e.Target)
	}
	if _, ok := g.edges[e.ID]; ok {
		return &GraphConstructionError{Kind: KindDuplicate, EdgeID: e.ID, Msg: "edge declared twice"}
	}

	to, ok := g.nodes[e.Target]
	if !ok {
		return &GraphConstructionError{Kind: KindDangling, EdgeID: e.ID, NodeIDs: []string{e.Target}, Msg: "target node not found"}
	}
	from, ok := g.nodes[e.Source]
	if !ok && !g.partial {
		return &GraphConstructionError{Kind: KindDangling, EdgeID: e.ID, NodeIDs: []string{e.Source}, Msg: "source node not found"}
	}

	to.deps[e.Source] = struct{}{}
	if from != nil {
		from.dependents[e.Target] = struct{}{}
	}
	g.edges[e.ID] = e
	return nil
}

// Subgraph returns a partial graph holding only the given nodes, for
// re-running part of a flow. Edges into member nodes are kept even when
// their source is outside the subgraph; Sort prunes those predecessors and
// ResolveInputs looks them up in previously produced results. Unknown ids
// are ignored.
func (g *Graph) Subgraph(ids []string) *Graph {
	sub := &Graph{
		nodes:   make(map[string]*vertex, len(ids)),
		edges:   make(map[string]Edge),
		partial: true,
	}
	for _, id := range ids {
		if v, ok := g.nodes[id]; ok {
			sub.nodes[id] = newVertex(v.decl)
		}
	}
	for _, e := range g.sortedEdges() {
		if _, ok := sub.nodes[e.Target]; ok {
			// Cannot fail: the target is a member and partial graphs
			// accept foreign sources.
			_ = sub.addEdge(e)
		}
	}
	return sub
}

// Partial reports whether the graph was produced by Subgraph.
func (g *Graph) Partial() bool { return g.partial }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// IDs returns all node ids in ascending order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether id is a member of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the declaration of a node.
func (g *Graph) Node(id string) (NodeDecl, bool) {
	v, ok := g.nodes[id]
	if !ok {
		return NodeDecl{}, false
	}
	return v.decl, true
}

// Upstream returns the ids a node consumes, sorted. On partial graphs this
// may include ids that are not members.
func (g *Graph) Upstream(id string) []string {
	v, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedSet(v.deps)
}

// Downstream returns the member ids consuming a node, sorted.
func (g *Graph) Downstream(id string) []string {
	v, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return sortedSet(v.dependents)
}

// Edges returns all edges ordered by edge id.
func (g *Graph) Edges() []Edge {
	return g.sortedEdges()
}

func (g *Graph) sortedEdges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
