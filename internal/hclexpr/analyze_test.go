package hclexpr_test

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/flowbridge/internal/hclexpr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestAnalyze_ReferencesAndFunctions(t *testing.T) {
	a := hclexpr.Analyze(
		parse(t, `upper("hello")`),
		parse(t, `input.rows[0].name`),
		parse(t, `lower(inputs.csv.name)`),
		parse(t, `input.rows[0].name`),
		nil,
	)
	assert.Equal(t, []string{"lower", "upper"}, a.Functions)
	require.Len(t, a.References, 2)
	assert.Equal(t, "input.rows[0].name", hclexpr.TraversalKey(a.References[0]))
	assert.Equal(t, "inputs.csv.name", hclexpr.TraversalKey(a.References[1]))
	assert.Equal(t, []string{"input", "inputs"}, a.Roots())
}

func TestAnalyze_ForExpressionScope(t *testing.T) {
	a := hclexpr.Analyze(parse(t, `[for r in input : upper(r.name) if r.age > limit]`))
	assert.Equal(t, []string{"input", "limit"}, a.Roots())
	assert.Equal(t, []string{"upper"}, a.Functions)
}

func TestAnalyze_NestedCalls(t *testing.T) {
	a := hclexpr.Analyze(parse(t, `"${join(",", [for v in sort(input) : format("%s!", v)])}"`))
	assert.Equal(t, []string{"format", "join", "sort"}, a.Functions)
}

func TestCheck(t *testing.T) {
	assert.False(t, hclexpr.Check(parse(t, `length(input) + length(inputs)`), "input", "inputs").HasErrors())

	diags := hclexpr.Check(parse(t, `input + other`), "input")
	require.Len(t, diags, 1)
	assert.Equal(t, "Unknown variable", diags[0].Summary)
	assert.Contains(t, diags[0].Detail, `"other"`)

	diags = hclexpr.Check(parse(t, `nosuchfn(input)`), "input")
	require.Len(t, diags, 1)
	assert.Equal(t, "Call to unknown function", diags[0].Summary)
}
