// Package table implements the tabular values that flow between nodes: an
// in-memory Frame and a lazily loaded, partitioned table.
//
// Cells hold nil, int64, float64, string or bool.
package table

import (
	"fmt"
	"reflect"
	"sort"
)

// Tabular is implemented by every table-like value.
type Tabular interface {
	Columns() []string
	Materialize() (*Frame, error)
}

// Frame is an in-memory table with ordered columns.
type Frame struct {
	columns []string
	rows    [][]any
}

// NewFrame builds a frame. Every row must have one cell per column.
func NewFrame(columns []string, rows [][]any) (*Frame, error) {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(r), len(columns))
		}
	}
	return &Frame{columns: append([]string(nil), columns...), rows: rows}, nil
}

// Empty returns a frame with the given columns and no rows.
func Empty(columns ...string) *Frame {
	return &Frame{columns: append([]string(nil), columns...)}
}

// FromRecords builds a frame from row objects. When columns is empty the
// union of record keys is used, sorted.
func FromRecords(columns []string, records []map[string]any) (*Frame, error) {
	if len(columns) == 0 {
		keys := map[string]bool{}
		for _, rec := range records {
			for k := range rec {
				keys[k] = true
			}
		}
		for k := range keys {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		rows = append(rows, row)
	}
	return NewFrame(columns, rows)
}

// Columns returns a copy of the column names.
func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

// Materialize returns the frame itself.
func (f *Frame) Materialize() (*Frame, error) { return f, nil }

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Row returns the i-th row.
func (f *Frame) Row(i int) []any { return f.rows[i] }

// Rows returns the underlying rows. Callers must not modify them.
func (f *Frame) Rows() [][]any { return f.rows }

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns all values of a column.
func (f *Frame) Column(name string) ([]any, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]any, len(f.rows))
	for i, r := range f.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Records renders the frame as one map per row.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.rows))
	for i, r := range f.rows {
		rec := make(map[string]any, len(f.columns))
		for j, c := range f.columns {
			rec[c] = r[j]
		}
		out[i] = rec
	}
	return out
}

// Equal reports whether two frames have the same columns and cells.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return reflect.DeepEqual(f.columns, other.columns) && reflect.DeepEqual(f.normalizedRows(), other.normalizedRows())
}

func (f *Frame) normalizedRows() [][]any {
	if len(f.rows) == 0 {
		return nil
	}
	return f.rows
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(columns=%v, rows=%d)", f.columns, len(f.rows))
}

// Concat appends the rows of frames sharing the same columns.
func Concat(columns []string, parts ...*Frame) (*Frame, error) {
	var rows [][]any
	for i, p := range parts {
		if !reflect.DeepEqual(p.columns, columns) {
			return nil, fmt.Errorf("partition %d has columns %v, expected %v", i, p.columns, columns)
		}
		rows = append(rows, p.rows...)
	}
	return &Frame{columns: append([]string(nil), columns...), rows: rows}, nil
}

// FromValue returns v as a frame. Besides tables it accepts the row-object
// arrays tables are serialized to, with columns taken from the record keys.
func FromValue(v any) (*Frame, error) {
	switch x := v.(type) {
	case Tabular:
		return x.Materialize()
	case []map[string]any:
		return FromRecords(nil, x)
	case []any:
		records := make([]map[string]any, len(x))
		for i, item := range x {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("row %d is %T, not an object", i, item)
			}
			records[i] = rec
		}
		return FromRecords(nil, records)
	}
	return nil, fmt.Errorf("expected a table, got %T", v)
}
