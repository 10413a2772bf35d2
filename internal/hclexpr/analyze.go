package hclexpr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// Analysis lists what a set of expressions refers to. Both slices are
// de-duplicated and sorted.
type Analysis struct {
	References []hcl.Traversal
	Functions  []string
}

// TraversalKey renders a traversal canonically, e.g. input.rows[0].
func TraversalKey(t hcl.Traversal) string {
	return strings.TrimSpace(string(hclwrite.TokensForTraversal(t).Bytes()))
}

// Roots returns the distinct root variable names, sorted.
func (a Analysis) Roots() []string {
	seen := make(map[string]struct{})
	for _, t := range a.References {
		seen[t.RootName()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Analyze collects variable references and function calls. Variables bound
// inside for-expressions are not references.
func Analyze(exprs ...hcl.Expression) Analysis {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})
	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		for _, t := range expr.Variables() {
			traversals[TraversalKey(t)] = t
		}
		if syn, ok := expr.(hclsyntax.Expression); ok {
			collectCalls(syn, functions)
		}
	}

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	a := Analysis{References: make([]hcl.Traversal, 0, len(keys))}
	for _, k := range keys {
		a.References = append(a.References, traversals[k])
	}
	for f := range functions {
		a.Functions = append(a.Functions, f)
	}
	sort.Strings(a.Functions)
	return a
}

// collectCalls walks the syntax tree for function calls, which Variables
// does not report.
func collectCalls(expr hclsyntax.Expression, into map[string]struct{}) {
	_ = hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			into[call.Name] = struct{}{}
		}
		return nil
	})
}

// Check reports references to variables outside vars and calls to
// functions missing from Functions.
func Check(expr hcl.Expression, vars ...string) hcl.Diagnostics {
	allowed := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		allowed[v] = struct{}{}
	}
	known := Functions()

	var diags hcl.Diagnostics
	for _, t := range expr.Variables() {
		if _, ok := allowed[t.RootName()]; ok {
			continue
		}
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unknown variable",
			Detail:   fmt.Sprintf("There is no variable named %q. Available: %s.", t.RootName(), strings.Join(sortedCopy(vars), ", ")),
			Subject:  t.SourceRange().Ptr(),
		})
	}
	if syn, ok := expr.(hclsyntax.Expression); ok {
		_ = hclsyntax.VisitAll(syn, func(n hclsyntax.Node) hcl.Diagnostics {
			call, ok := n.(*hclsyntax.FunctionCallExpr)
			if !ok {
				return nil
			}
			if _, ok := known[call.Name]; !ok {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Call to unknown function",
					Detail:   fmt.Sprintf("There is no function named %q.", call.Name),
					Subject:  call.NameRange.Ptr(),
				})
			}
			return nil
		})
	}
	return diags
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
