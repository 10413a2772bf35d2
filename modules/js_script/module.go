// Package js_script provides the "js_script" node, which runs an inline
// JavaScript body in an embedded interpreter.
//
// The upstream payload is bound to a global (input by default) after a
// JSON round trip, so tables arrive as arrays of row objects. Values that
// cannot be encoded, such as database handles, are bound as Go objects.
// The completion value of the script is the node's payload.
package js_script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/robertkrimen/otto"
	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/serialize"
)

// TypeTag is the node type handled by this package.
const TypeTag = "js_script"

const runtimeName = "javascript"

var errInterrupted = errors.New("script interrupted")

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the node constructor.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, New)
}

// Script is the js_script node.
type Script struct {
	source  string
	param   string
	timeout time.Duration
}

// New builds a script node from its declaration.
func New(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	s := &Script{}
	var err error
	if s.source, err = c.RequiredString("script"); err != nil {
		return nil, err
	}
	if s.param, err = c.String("param", "input"); err != nil {
		return nil, err
	}
	secs, err := c.Int("timeout", 0)
	if err != nil {
		return nil, err
	}
	s.timeout = time.Duration(secs) * time.Second
	return s, nil
}

// Type implements node.Node.
func (s *Script) Type() string { return TypeTag }

// Task implements node.Node.
func (s *Script) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	if id, failed, ok := in.FirstFailure(); ok && failed != nil {
		return rc.Propagate(id, failed)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var input any
	if _, env, ok := in.Single(); ok {
		input = env.Data
	}
	out, err := s.Eval(ctx, input, in.Payloads())
	if err != nil {
		return rc.Fail(&node.ScriptError{Runtime: runtimeName, Err: err})
	}
	return rc.OK(out)
}

// Eval runs the script with input bound to the configured parameter and
// all upstream payloads bound to "inputs".
func (s *Script) Eval(ctx context.Context, input any, all map[string]any) (out any, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	logger := ctxlog.FromContext(ctx)

	if err := bind(vm, s.param, input); err != nil {
		return nil, err
	}
	if err := bind(vm, "inputs", all); err != nil {
		return nil, err
	}
	if err := installConsole(vm, func(msg string) { logger.Info(msg, "source", runtimeName) }); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt <- func() { panic(errInterrupted) }
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			if r == errInterrupted {
				err = fmt.Errorf("%w: %v", errInterrupted, ctx.Err())
				return
			}
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	v, err := vm.Run(s.source)
	if err != nil {
		return nil, err
	}
	exported, err := v.Export()
	if err != nil {
		return nil, err
	}
	return Normalize(exported), nil
}

// bind sets a global. JSON-encodable values are decoded inside the VM so
// scripts see plain arrays and objects.
func bind(vm *otto.Otto, name string, v any) error {
	if v == nil {
		return vm.Set(name, otto.NullValue())
	}
	b, err := json.Marshal(serialize.Value(v))
	if err != nil {
		return vm.Set(name, v)
	}
	parsed, err := vm.Call("JSON.parse", nil, string(b))
	if err != nil {
		return fmt.Errorf("binding %s: %w", name, err)
	}
	return vm.Set(name, parsed)
}

func installConsole(vm *otto.Otto, logf func(string)) error {
	console, err := vm.Object(`({})`)
	if err != nil {
		return err
	}
	err = console.Set("log", func(call otto.FunctionCall) otto.Value {
		parts := make([]string, len(call.ArgumentList))
		for i, a := range call.ArgumentList {
			parts[i] = a.String()
		}
		logf(strings.Join(parts, " "))
		return otto.UndefinedValue()
	})
	if err != nil {
		return err
	}
	return vm.Set("console", console)
}

// Normalize converts exported interpreter values to the payload types used
// across flowbridge: integral numbers become int64, other numbers float64,
// typed slices []any and maps map[string]any.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32:
		return Normalize(rv.Float())
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}
