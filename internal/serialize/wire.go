package serialize

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// Wire is the decoded form of a serialized envelope, as produced by
// Envelope.
type Wire struct {
	Error   bool           `json:"error"`
	Data    any            `json:"data"`
	Node    result.NodeRef `json:"node"`
	Context WireContext    `json:"context"`
	// Columns is set when Data is a serialized table.
	Columns []Column `json:"columns,omitempty"`
}

// WireContext is the decoded envelope metadata.
type WireContext struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMS     int64     `json:"duration_ms"`
	TestMode       bool      `json:"test_mode"`
	PropagatedFrom string    `json:"propagated_from,omitempty"`
}

// Envelope rebuilds a result. Tables are rebuilt as frames with their
// column order and integer cells restored. A failed envelope keeps only
// its error text.
func (w Wire) Envelope() *result.Envelope {
	meta := result.Metadata{
		RunID:          w.Context.RunID,
		StartedAt:      w.Context.StartedAt,
		FinishedAt:     w.Context.FinishedAt,
		Duration:       time.Duration(w.Context.DurationMS) * time.Millisecond,
		TestMode:       w.Context.TestMode,
		PropagatedFrom: w.Context.PropagatedFrom,
	}
	if w.Error {
		env := result.Fail(w.Node, meta, nil)
		if s, ok := w.Data.(string); ok {
			env.Data = s
		} else if w.Data != nil {
			env.Data = fmt.Sprint(w.Data)
		}
		return env
	}
	if len(w.Columns) > 0 {
		f, err := w.frame()
		if err != nil {
			return result.Fail(w.Node, meta, fmt.Errorf("decoding table: %w", err))
		}
		return result.OK(w.Node, meta, f)
	}
	return result.OK(w.Node, meta, w.Data)
}

func (w Wire) frame() (*table.Frame, error) {
	items, ok := w.Data.([]any)
	if !ok && w.Data != nil {
		return nil, fmt.Errorf("expected an array of rows, got %T", w.Data)
	}
	names := make([]string, len(w.Columns))
	for i, c := range w.Columns {
		names[i] = c.Name
	}
	rows := make([][]any, len(items))
	for r, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("row %d is %T, not an object", r, item)
		}
		row := make([]any, len(w.Columns))
		for i, c := range w.Columns {
			row[i] = restoreCell(rec[c.Name], c.Kind)
		}
		rows[r] = row
	}
	return table.NewFrame(names, rows)
}

// restoreCell undoes the JSON number widening of integer columns.
func restoreCell(v any, kind string) any {
	if f, ok := v.(float64); ok && kind == KindInt && f == math.Trunc(f) {
		return int64(f)
	}
	return v
}

// Decode parses the JSON form of an envelope.
func Decode(b []byte) (*result.Envelope, error) {
	var w Wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return w.Envelope(), nil
}

// ToWire serializes env into its decoded wire form.
func ToWire(env *result.Envelope) (Wire, error) {
	var w Wire
	b, err := JSON(env)
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return w, fmt.Errorf("decoding envelope: %w", err)
	}
	return w, nil
}
