// Package serialize renders node results into JSON-compatible values for
// storage and for hand-off to a remote executor.
package serialize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/robertkrimen/otto"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/zclconf/go-cty/cty"
)

// Value converts v into a form encoding/json can render. Applying it to its
// own output returns the output unchanged.
//
// Tables become arrays of row objects, maps have their table-valued entries
// replaced, fan-out results are rendered one level deep, and foreign runtime
// objects become their textual form. Everything else is returned as is.
func Value(v any) any {
	switch x := v.(type) {
	case table.Tabular:
		f, err := x.Materialize()
		if err != nil {
			return fmt.Sprintf("<unavailable table: %v>", err)
		}
		return f.Records()
	case map[string]any:
		return mapValue(x)
	case result.Inputs:
		return fanOut(x)
	case map[string]*result.Envelope:
		return fanOut(x)
	case cty.Value:
		return ctyText(x)
	case otto.Value:
		return x.String()
	}
	return v
}

func mapValue(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if t, ok := v.(table.Tabular); ok {
			out[k] = Value(t)
			continue
		}
		out[k] = v
	}
	return out
}

// fanOut renders a mapping of nested results by serializing each entry's
// payload.
func fanOut(m map[string]*result.Envelope) map[string]any {
	out := make(map[string]any, len(m))
	for id, env := range m {
		if env == nil {
			continue
		}
		out[id] = map[string]any{
			"error": env.Error,
			"data":  Value(env.Data),
		}
	}
	return out
}

func ctyText(v cty.Value) string {
	if v == cty.NilVal {
		return "null"
	}
	v, _ = v.UnmarkDeep()
	if !v.IsWhollyKnown() {
		return "(unknown)"
	}
	if v.Type().IsCapsuleType() {
		return fmt.Sprintf("<%s>", v.Type().FriendlyName())
	}
	return strings.TrimSpace(string(hclwrite.TokensForValue(v).Bytes()))
}

// Envelope renders a whole result, including node identity and timing.
func Envelope(e *result.Envelope) map[string]any {
	if e == nil {
		return nil
	}
	ctx := map[string]any{
		"run_id":      e.Context.RunID,
		"started_at":  e.Context.StartedAt,
		"finished_at": e.Context.FinishedAt,
		"duration_ms": e.Context.Duration.Milliseconds(),
		"test_mode":   e.Context.TestMode,
	}
	if e.Context.PropagatedFrom != "" {
		ctx["propagated_from"] = e.Context.PropagatedFrom
	}
	out := map[string]any{
		"error":   e.Error,
		"data":    Value(e.Data),
		"node":    map[string]any{"id": e.Node.ID, "type": e.Node.Type},
		"context": ctx,
	}
	if t, ok := e.Data.(table.Tabular); ok && !e.Error {
		if f, err := t.Materialize(); err == nil {
			out["columns"] = Schema(f)
		}
	}
	return out
}

// Column describes one table column in the serialized form of a result.
// Kind is set when every non-null cell has the same type.
type Column struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// Column kinds.
const (
	KindInt    = "int"
	KindFloat  = "float"
	KindString = "string"
	KindBool   = "bool"
)

// Schema returns the column layout of f.
func Schema(f *table.Frame) []Column {
	cols := f.Columns()
	out := make([]Column, len(cols))
	for i, name := range cols {
		out[i] = Column{Name: name}
		for _, row := range f.Rows() {
			k := cellKind(row[i])
			if k == "" {
				continue
			}
			if out[i].Kind == "" {
				out[i].Kind = k
			} else if out[i].Kind != k {
				out[i].Kind = ""
				break
			}
		}
	}
	return out
}

func cellKind(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	case string:
		return KindString
	case bool:
		return KindBool
	}
	return ""
}

// JSON marshals the serialized form of v.
func JSON(v any) ([]byte, error) {
	if e, ok := v.(*result.Envelope); ok {
		return json.Marshal(Envelope(e))
	}
	b, err := json.Marshal(Value(v))
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return b, nil
}
