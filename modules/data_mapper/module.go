// Package data_mapper provides the "mapper" node: a declarative join of two
// or more named upstream tables with column selection and value mapping.
package data_mapper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/flowbridge/internal/ctxlog"
	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/mapping"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
)

// TypeTag is the node type handled by this package.
const TypeTag = "mapper"

// Join kinds.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
)

// Module registers the mapper node. Catalog resolves value_maps; a nil
// catalog rejects every mapper that declares value maps.
type Module struct {
	Catalog *mapping.Catalog
}

// Register implements the registry.Module interface.
func (m *Module) Register(r *registry.Registry) {
	r.Register(TypeTag, m.newNode)
}

// selection is one output column taken from one of the joined inputs.
type selection struct {
	out    string
	fromID string
	column string
}

// Mapper is the mapper node. The left table is joined with every right
// table in turn, each on its own key column against the left key.
type Mapper struct {
	catalog   *mapping.Catalog
	left      string
	rights    []string
	leftOn    string
	rightOn   string
	how       string
	selects   []selection
	valueMaps map[string]string
}

func (m *Module) newNode(decl dag.NodeDecl) (node.Node, error) {
	c := node.Config(decl.Config)
	mp := &Mapper{catalog: m.Catalog}
	var err error
	if mp.left, err = c.RequiredString("left"); err != nil {
		return nil, err
	}
	if mp.rights, err = rightIDs(c); err != nil {
		return nil, err
	}
	for _, id := range mp.rights {
		if id == mp.left {
			return nil, fmt.Errorf("config \"right\": %q is also the left input", id)
		}
	}
	on, err := c.String("on", "")
	if err != nil {
		return nil, err
	}
	if mp.leftOn, err = c.String("left_on", on); err != nil {
		return nil, err
	}
	if mp.rightOn, err = c.String("right_on", on); err != nil {
		return nil, err
	}
	if mp.leftOn == "" || mp.rightOn == "" {
		return nil, errors.New(`config "on" (or both "left_on" and "right_on") is required`)
	}
	if mp.how, err = c.String("how", JoinInner); err != nil {
		return nil, err
	}
	if mp.how != JoinInner && mp.how != JoinLeft {
		return nil, fmt.Errorf("config \"how\": unsupported join %q", mp.how)
	}

	sel, err := c.StringMap("select")
	if err != nil {
		return nil, err
	}
	outs := make([]string, 0, len(sel))
	for out := range sel {
		outs = append(outs, out)
	}
	sort.Strings(outs)
	for _, out := range outs {
		id, col, found := strings.Cut(sel[out], ".")
		if !found || mp.inputIndex(id) < 0 {
			return nil, fmt.Errorf("config \"select\".%s: expected \"<input>.<column>\" with input one of %v, got %q", out, mp.inputs(), sel[out])
		}
		mp.selects = append(mp.selects, selection{out: out, fromID: id, column: col})
	}

	if mp.valueMaps, err = c.StringMap("value_maps"); err != nil {
		return nil, err
	}
	if len(mp.valueMaps) > 0 && mp.catalog == nil {
		return nil, errors.New(`config "value_maps" requires a mapping catalog`)
	}
	return mp, nil
}

// rightIDs reads "right" as one input id or a list of them.
func rightIDs(c node.Config) ([]string, error) {
	if s, ok := c["right"].(string); ok {
		if s == "" {
			return nil, errors.New(`config "right" must not be empty`)
		}
		return []string{s}, nil
	}
	ids, err := c.Strings("right")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New(`config "right" is required`)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			return nil, fmt.Errorf("config \"right\": empty or repeated input %q", id)
		}
		seen[id] = true
	}
	return ids, nil
}

// inputs returns the joined input ids, left first.
func (mp *Mapper) inputs() []string {
	return append([]string{mp.left}, mp.rights...)
}

func (mp *Mapper) inputIndex(id string) int {
	for i, in := range mp.inputs() {
		if in == id {
			return i
		}
	}
	return -1
}

// Type implements node.Node.
func (mp *Mapper) Type() string { return TypeTag }

// frameOf returns the named upstream table. A failed upstream is returned
// as the second value.
func frameOf(in result.Inputs, id string) (*table.Frame, *result.Envelope, error) {
	env, ok := in[id]
	if !ok {
		return nil, nil, fmt.Errorf("required upstream %q is not among the inputs %v", id, in.IDs())
	}
	if env.Error {
		return nil, env, nil
	}
	f, err := table.FromValue(env.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("upstream %q did not produce a table: %w", id, err)
	}
	return f, nil, nil
}

// Task implements node.Node.
func (mp *Mapper) Task(ctx context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	ids := mp.inputs()
	frames := make([]*table.Frame, len(ids))
	for i, id := range ids {
		f, failed, err := frameOf(in, id)
		if err != nil {
			return rc.Fail(&node.MappingError{Err: err})
		}
		if failed != nil {
			return rc.Propagate(id, failed)
		}
		frames[i] = f
	}

	out, err := mp.Join(frames[0], frames[1:]...)
	if err != nil {
		return rc.Fail(&node.MappingError{Err: err})
	}
	if out, err = mp.applyValueMaps(out); err != nil {
		return rc.Fail(&node.MappingError{Err: err})
	}
	ctxlog.FromContext(ctx).Debug("Tables joined.", "how", mp.how, "inputs", ids, "left", frames[0].Len(), "rows", out.Len())
	return rc.OK(out)
}

// Test implements node.Tester. Wiring is checked and the declared output
// columns are returned without rows.
func (mp *Mapper) Test(_ context.Context, in result.Inputs, rc *node.RunContext) *result.Envelope {
	for _, id := range mp.inputs() {
		env, ok := in[id]
		if !ok {
			return rc.Fail(&node.MappingError{Err: fmt.Errorf("required upstream %q is not among the inputs %v", id, in.IDs())})
		}
		if env.Error {
			return rc.Propagate(id, env)
		}
	}
	cols := make([]string, len(mp.selects))
	for i, s := range mp.selects {
		cols[i] = s.out
	}
	return rc.OK(table.Empty(cols...))
}

// Join combines left with each of rights on the configured key columns.
// rights are matched to the configured right inputs by position.
func (mp *Mapper) Join(left *table.Frame, rights ...*table.Frame) (*table.Frame, error) {
	if len(rights) != len(mp.rights) {
		return nil, fmt.Errorf("expected %d right tables, got %d", len(mp.rights), len(rights))
	}
	li := left.ColumnIndex(mp.leftOn)
	if li < 0 {
		return nil, fmt.Errorf("join column %q not found in %q (columns %v)", mp.leftOn, mp.left, left.Columns())
	}
	indexes := make([]map[string][]int, len(rights))
	for i, right := range rights {
		ri := right.ColumnIndex(mp.rightOn)
		if ri < 0 {
			return nil, fmt.Errorf("join column %q not found in %q (columns %v)", mp.rightOn, mp.rights[i], right.Columns())
		}
		index := make(map[string][]int, right.Len())
		for r := 0; r < right.Len(); r++ {
			if k, ok := joinKey(right.Row(r)[ri]); ok {
				index[k] = append(index[k], r)
			}
		}
		indexes[i] = index
	}

	frames := append([]*table.Frame{left}, rights...)
	cols, pick, err := mp.projection(frames)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	for l := 0; l < left.Len(); l++ {
		// Each match is a row position per input; -1 stands for no row.
		matches := [][]int{{l}}
		k, hasKey := joinKey(left.Row(l)[li])
		for _, index := range indexes {
			var hits []int
			if hasKey {
				hits = index[k]
			}
			if len(hits) == 0 {
				if mp.how != JoinLeft {
					matches = nil
					break
				}
				hits = []int{-1}
			}
			next := make([][]int, 0, len(matches)*len(hits))
			for _, m := range matches {
				for _, h := range hits {
					next = append(next, append(append([]int(nil), m...), h))
				}
			}
			matches = next
		}
		for _, m := range matches {
			rows = append(rows, pick(m))
		}
	}
	return table.NewFrame(cols, rows)
}

// projection returns the output columns and a function building one output
// row from a row position per input.
func (mp *Mapper) projection(frames []*table.Frame) ([]string, func(pos []int) []any, error) {
	type source struct {
		input int
		idx   int
	}
	var cols []string
	var srcs []source

	if len(mp.selects) > 0 {
		for _, s := range mp.selects {
			in := mp.inputIndex(s.fromID)
			idx := frames[in].ColumnIndex(s.column)
			if idx < 0 {
				return nil, nil, fmt.Errorf("selected column %q not found in %q", s.column, s.fromID)
			}
			cols = append(cols, s.out)
			srcs = append(srcs, source{input: in, idx: idx})
		}
	} else {
		taken := make(map[string]bool)
		for in, f := range frames {
			for i, c := range f.Columns() {
				if in > 0 && c == mp.rightOn && mp.leftOn == mp.rightOn {
					continue
				}
				name := c
				if taken[name] {
					name = uniqueName(c+"_"+mp.rights[in-1], taken)
				}
				cols = append(cols, name)
				srcs = append(srcs, source{input: in, idx: i})
				taken[name] = true
			}
		}
	}

	pick := func(pos []int) []any {
		row := make([]any, len(srcs))
		for i, s := range srcs {
			if p := pos[s.input]; p >= 0 {
				row[i] = frames[s.input].Row(p)[s.idx]
			}
		}
		return row
	}
	return cols, pick, nil
}

// uniqueName returns base, or base with the smallest numeric suffix that
// is not taken.
func uniqueName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		if name := fmt.Sprintf("%s_%d", base, n); !taken[name] {
			return name
		}
	}
}

func (mp *Mapper) applyValueMaps(f *table.Frame) (*table.Frame, error) {
	if len(mp.valueMaps) == 0 {
		return f, nil
	}
	cols := f.Columns()
	rows := make([][]any, f.Len())
	for i := range rows {
		rows[i] = append([]any(nil), f.Row(i)...)
	}
	for col, name := range mp.valueMaps {
		idx := f.ColumnIndex(col)
		if idx < 0 {
			return nil, fmt.Errorf("value map column %q not in output %v", col, cols)
		}
		tbl, err := mp.catalog.Get(name)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row[idx] == nil {
				continue
			}
			row[idx] = tbl.Lookup(fmt.Sprint(row[idx]))
		}
	}
	return table.NewFrame(cols, rows)
}

// joinKey renders a cell as a join key. Integral floats match integers so
// keys read from different sources line up. Nil never matches.
func joinKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprint(int64(x)), true
		}
	}
	return fmt.Sprint(v), true
}
