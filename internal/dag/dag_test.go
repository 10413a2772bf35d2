package dag

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decls(ids ...string) []NodeDecl {
	out := make([]NodeDecl, len(ids))
	for i, id := range ids {
		out[i] = NodeDecl{ID: id, Type: "stub"}
	}
	return out
}

func edge(src, dst string) Edge {
	return Edge{ID: src + "_to_" + dst, Source: src, Target: dst}
}

func TestNew(t *testing.T) {
	g, err := New(decls("a", "b"), []Edge{edge("a", "b")})
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []string{"a", "b"}, g.IDs())
	assert.Equal(t, []string{"a"}, g.Upstream("b"))
	assert.Equal(t, []string{"b"}, g.Downstream("a"))
	assert.False(t, g.Partial())

	decl, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "stub", decl.Type)
}

func TestNew_ErrorCases(t *testing.T) {
	t.Run("dangling source", func(t *testing.T) {
		_, err := New(decls("a"), []Edge{edge("ghost", "a")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDanglingEdge))

		var gce *GraphConstructionError
		require.ErrorAs(t, err, &gce)
		assert.Equal(t, []string{"ghost"}, gce.NodeIDs)
	})

	t.Run("dangling target", func(t *testing.T) {
		_, err := New(decls("a"), []Edge{edge("a", "ghost")})
		assert.ErrorIs(t, err, ErrDanglingEdge)
	})

	t.Run("duplicate node", func(t *testing.T) {
		_, err := New(decls("a", "a"), nil)
		var gce *GraphConstructionError
		require.ErrorAs(t, err, &gce)
		assert.Equal(t, KindDuplicate, gce.Kind)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := New(decls(""), nil)
		assert.ErrorContains(t, err, "empty id")
	})

	t.Run("edge ids default to source->target", func(t *testing.T) {
		g, err := New(decls("a", "b"), []Edge{{Source: "a", Target: "b"}})
		require.NoError(t, err)
		assert.Equal(t, "a->b", g.Edges()[0].ID)
	})
}

func TestSort_LinearChain(t *testing.T) {
	g, err := New(decls("c", "b", "a"), []Edge{edge("a", "b"), edge("b", "c")})
	require.NoError(t, err)

	order, err := Sort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSort_TieBreakIsLexical(t *testing.T) {
	g, err := New(decls("zeta", "alpha", "mid", "beta"), []Edge{edge("zeta", "beta")})
	require.NoError(t, err)

	order, err := Sort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta", "beta"}, order)

	for i := 0; i < 10; i++ {
		again, err := Sort(g)
		require.NoError(t, err)
		assert.Equal(t, order, again, "identical graphs sort identically")
	}
}

func TestSort_Cycle(t *testing.T) {
	g, err := New(decls("a", "b", "c", "d"), []Edge{
		edge("a", "b"), edge("b", "c"), edge("c", "b"), edge("c", "d"),
	})
	require.NoError(t, err)

	_, err = Sort(g)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)

	var gce *GraphConstructionError
	require.ErrorAs(t, err, &gce)
	assert.Equal(t, []string{"b", "c", "d"}, gce.NodeIDs)
}

func TestSort_SelfEdgeIsCycle(t *testing.T) {
	g, err := New(decls("a"), []Edge{edge("a", "a")})
	require.NoError(t, err)
	_, err = Sort(g)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestSort_RandomDAGProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(25)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%02d", rng.Intn(1000)*100+i)
		}
		var edges []Edge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.2 {
					edges = append(edges, edge(ids[i], ids[j]))
				}
			}
		}
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		g, err := New(decls(ids...), edges)
		require.NoError(t, err)

		order, err := Sort(g)
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, id := range order {
			_, dup := pos[id]
			require.False(t, dup, "node %s appears twice", id)
			pos[id] = i
		}
		for _, e := range edges {
			assert.Less(t, pos[e.Source], pos[e.Target], "edge %s violated", e.ID)
		}
	}
}

func TestSubgraph_PrunesForeignPredecessors(t *testing.T) {
	g, err := New(decls("load", "clean", "report"), []Edge{
		edge("load", "clean"), edge("clean", "report"),
	})
	require.NoError(t, err)

	sub := g.Subgraph([]string{"report", "clean", "unknown"})
	assert.True(t, sub.Partial())
	assert.Equal(t, []string{"clean", "report"}, sub.IDs())
	assert.Equal(t, []string{"load"}, sub.Upstream("clean"), "foreign edge is kept")

	order, err := Sort(sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"clean", "report"}, order)
}

func TestResolveInputs(t *testing.T) {
	g, err := New(
		decls("death_csv_node", "death_sql_node", "death_python_node", "loner"),
		[]Edge{
			edge("death_csv_node", "death_sql_node"),
			edge("death_sql_node", "death_python_node"),
		},
	)
	require.NoError(t, err)

	csv := result.OK(result.NodeRef{ID: "death_csv_node", Type: "csv"}, result.Metadata{}, "table")
	results := map[string]*result.Envelope{"death_csv_node": csv}

	in := ResolveInputs(g, results, "death_sql_node")
	assert.Equal(t, result.Inputs{"death_csv_node": csv}, in)

	loner := ResolveInputs(g, results, "loner")
	require.NotNil(t, loner)
	assert.Empty(t, loner)

	assert.Empty(t, ResolveInputs(g, results, "death_python_node"), "missing upstream results are omitted")
}

func TestResolveInputs_FanIn(t *testing.T) {
	g, err := New(decls("a", "b", "c"), []Edge{edge("a", "c"), edge("b", "c")})
	require.NoError(t, err)

	ra := result.OK(result.NodeRef{ID: "a"}, result.Metadata{}, 1)
	rb := result.Failf(result.NodeRef{ID: "b"}, result.Metadata{}, "boom")
	in := ResolveInputs(g, map[string]*result.Envelope{"a": ra, "b": rb}, "c")

	assert.Equal(t, []string{"a", "b"}, in.IDs())
	assert.Same(t, rb, in["b"], "failed results are delivered unchanged")
}
