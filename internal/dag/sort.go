package dag

import (
	"sort"

	"github.com/specialistvlad/flowbridge/internal/result"
)

// Sort returns every node id exactly once such that each node appears after
// all of its member predecessors. Among nodes that are ready at the same
// time the lexically smallest id goes first, so identical graphs always
// sort identically.
//
// Predecessors that are not graph members are ignored. Nodes left over when
// no ready node remains sit on a cycle, or depend on one, and are reported
// in a GraphConstructionError.
func Sort(g *Graph) ([]string, error) {
	pending := make(map[string]int, len(g.nodes))
	var ready []string

	for id, v := range g.nodes {
		n := 0
		for dep := range v.deps {
			if _, member := g.nodes[dep]; member {
				n++
			}
		}
		pending[id] = n
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range sortedSet(g.nodes[id].dependents) {
			pending[next]--
			if pending[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for id, n := range pending {
			if n > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &GraphConstructionError{
			Kind:    KindCycle,
			NodeIDs: stuck,
			Msg:     "no remaining node has all of its predecessors resolved",
		}
	}
	return order, nil
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// ResolveInputs builds the input set of a node: the result of every source
// of an edge targeting id. Sources without a recorded result are omitted;
// with a valid order this only happens on partial graphs whose prior
// results were not supplied. A node without incoming edges gets an empty,
// non-nil set.
func ResolveInputs(g *Graph, results map[string]*result.Envelope, id string) result.Inputs {
	in := result.Inputs{}
	v, ok := g.nodes[id]
	if !ok {
		return in
	}
	for dep := range v.deps {
		if env, ok := results[dep]; ok && env != nil {
			in[dep] = env
		}
	}
	return in
}
