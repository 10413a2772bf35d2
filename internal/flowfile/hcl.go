package flowfile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/flowbridge/internal/hclexpr"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hclRoot is the top level of an HCL flow file:
//
//	executor_options {
//	  trace_mode = true
//	  executor_address {
//	    host = "scheduler"
//	    port = 8080
//	  }
//	}
//
//	node "people" {
//	  type   = "csv"
//	  config = { path = "people.csv" }
//	}
//
//	edge "e1" {
//	  source = "people"
//	  target = "adults"
//	}
type hclRoot struct {
	Options *hclOptions `hcl:"executor_options,block"`
	Nodes   []*hclNode  `hcl:"node,block"`
	Edges   []*hclEdge  `hcl:"edge,block"`
}

type hclOptions struct {
	TestMode        bool          `hcl:"test_mode,optional"`
	TraceMode       bool          `hcl:"trace_mode,optional"`
	ExecutorAddress *node.Address `hcl:"executor_address,block"`
}

type hclNode struct {
	ID        string         `hcl:"id,label"`
	Type      string         `hcl:"type"`
	Config    hcl.Expression `hcl:"config,optional"`
	DeclRange hcl.Range      `hcl:",def_range"`
}

type hclEdge struct {
	ID        string    `hcl:"id,label"`
	Source    string    `hcl:"source"`
	Target    string    `hcl:"target"`
	DeclRange hcl.Range `hcl:",def_range"`
}

// envVariable exposes the process environment to config expressions as
// env.NAME.
func envVariable() cty.Value {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = cty.StringVal(v)
		}
	}
	return cty.ObjectVal(vars)
}

func parseHCL(data []byte, filename string) (*Document, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVariable()},
		Functions: hclexpr.Functions(),
	}

	doc := &Document{
		Nodes: make(map[string]NodeSpec, len(root.Nodes)),
		Edges: make(map[string]EdgeSpec, len(root.Edges)),
	}
	if o := root.Options; o != nil {
		doc.ExecutorOptions = node.Options{TestMode: o.TestMode, TraceMode: o.TraceMode, ExecutorAddress: o.ExecutorAddress}
	}

	for _, n := range root.Nodes {
		if _, dup := doc.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate node %q", n.DeclRange, n.ID)
		}
		cfg, err := evalConfig(n.Config, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		doc.Nodes[n.ID] = NodeSpec{Type: n.Type, Config: cfg}
	}
	for _, e := range root.Edges {
		if _, dup := doc.Edges[e.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate edge %q", e.DeclRange, e.ID)
		}
		doc.Edges[e.ID] = EdgeSpec{Source: e.Source, Target: e.Target}
	}
	return doc, nil
}

// evalConfig evaluates a config expression and decodes it the way a JSON
// flow file would be decoded, so node constructors see one shape.
func evalConfig(expr hcl.Expression, evalCtx *hcl.EvalContext) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	if diags := hclexpr.Check(expr, "env"); diags.HasErrors() {
		return nil, diags
	}
	v, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("config is not fully known")
	}
	if ty := v.Type(); !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("config must be an object, got %s", ty.FriendlyName())
	}
	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return out, nil
}
