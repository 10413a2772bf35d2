// Package hcl_script provides the "hcl_script" node. Its body is an HCL
// expression evaluated with the upstream value converted through the value
// bridge and bound to a variable (input by default).
package hcl_script

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/flowbridge/internal/bridge"
	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/hclexpr"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/zclconf/go-cty/cty"
)

// TypeTag is the node type handled by this package.
const TypeTag = "hcl_script"

const runtimeName = "hcl"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Script is the hcl_script node.
type Script struct {
	id    string
	expr  hclsyntax.Expression
	param string
	vars  map[string]cty.Value
}

// New parses the expression up front, so syntax errors surface as invalid
// configuration.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	src, err := c.RequiredString("expression")
	if err != nil {
		return nil, err
	}
	param, err := c.String("param", "input")
	if err != nil {
		return nil, err
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), decl.ID+".hcl", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &node.ScriptError{Runtime: runtimeName, Err: diags}
	}

	extra, err := c.Map("variables")
	if err != nil {
		return nil, err
	}
	vars := make(map[string]cty.Value, len(extra))
	for name, v := range extra {
		cv, err := bridge.ToCty(v)
		if err != nil {
			return nil, fmt.Errorf("config \"variables\".%s: %w", name, err)
		}
		vars[name] = cv
	}

	names := []string{param, "inputs"}
	for name := range vars {
		names = append(names, name)
	}
	if diags := hclexpr.Check(expr, names...); diags.HasErrors() {
		return nil, &node.ScriptError{Runtime: runtimeName, Err: diags}
	}
	return &Script{id: decl.ID, expr: expr, param: param, vars: vars}, nil
}

// Type implements node.Node.
func (s *Script) Type() string { return TypeTag }

// Task implements node.Node.
func (s *Script) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	if id, failed, ok := in.FirstFailure(); ok && failed != nil {
		return rc.Propagate(id, failed)
	}

	var input any
	if _, env, ok := in.Single(); ok {
		input = env.Data
	}
	out, err := s.Eval(ctx, input, in)
	if err != nil {
		return rc.Fail(&node.ScriptError{Runtime: runtimeName, Err: err})
	}
	return rc.OK(out)
}

// Eval evaluates the expression. input is bound to the configured
// parameter and the payloads of all upstreams to "inputs".
func (s *Script) Eval(ctx context.Context, input any, in result.Inputs) (any, error) {
	inputVal, err := bridge.ToCty(input)
	if err != nil {
		return nil, fmt.Errorf("converting input: %w", err)
	}
	inputsVal := cty.EmptyObjectVal
	if len(in) > 0 {
		if inputsVal, err = bridge.ToCty(map[string]*result.Envelope(in)); err != nil {
			return nil, fmt.Errorf("converting inputs: %w", err)
		}
	}

	vars := make(map[string]cty.Value, len(s.vars)+2)
	for k, v := range s.vars {
		vars[k] = v
	}
	vars[s.param] = inputVal
	vars["inputs"] = inputsVal

	evalCtx := &hcl.EvalContext{Variables: vars, Functions: hclexpr.Functions()}
	v, diags := s.expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	ctxlog.FromContext(ctx).Debug("Expression evaluated.", "type", v.Type().FriendlyName())
	return bridge.FromCty(v)
}
