package bridge

import (
	"fmt"
	"math/big"

	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/zclconf/go-cty/cty"
)

// FromCty converts a value produced by the secondary runtime back into the
// orchestrator's native representation.
func FromCty(v cty.Value) (any, error) {
	if v == cty.NilVal {
		return nil, nil
	}

	var mark *frameMark
	floats := false
	if v.IsMarked() {
		var marks cty.ValueMarks
		v, marks = v.Unmark()
		for m := range marks {
			switch fm := m.(type) {
			case frameMark:
				mark = &fm
			case floatsMark:
				floats = true
			}
		}
	}

	if !v.IsKnown() || v.IsNull() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		return numberFromCty(v), nil
	case ty.IsCapsuleType():
		if o, ok := v.EncapsulatedValue().(*opaque); ok {
			return o.value, nil
		}
		return v.EncapsulatedValue(), nil
	case ty.IsListType() || ty.IsSetType():
		if floats && v.LengthInt() == 0 {
			return []float64{}, nil
		}
		return listFromCty(v, mark)
	case ty.IsTupleType():
		return tupleFromCty(v, mark)
	case ty.IsObjectType() || ty.IsMapType():
		return mapFromCty(v)
	}
	return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}

// numberFromCty returns int64 for integral values that fit, float64 otherwise.
func numberFromCty(v cty.Value) any {
	bf := v.AsBigFloat()
	if bf.IsInt() {
		if i, acc := bf.Int64(); acc == big.Exact {
			return i
		}
	}
	f, _ := bf.Float64()
	return f
}

func elements(v cty.Value) []cty.Value {
	out := make([]cty.Value, 0, v.LengthInt())
	it := v.ElementIterator()
	for it.Next() {
		_, e := it.Element()
		out = append(out, e)
	}
	return out
}

func listFromCty(v cty.Value, mark *frameMark) (any, error) {
	ety := v.Type().ElementType()

	if ety.IsObjectType() {
		return frameFromRows(elements(v), ety, mark)
	}

	elems := elements(v)
	hasNull := false
	for _, e := range elems {
		if e.IsMarked() {
			e, _ = e.Unmark()
		}
		if e.IsNull() || !e.IsKnown() {
			hasNull = true
			break
		}
	}

	if !hasNull {
		switch ety {
		case cty.Number:
			return numberSlice(elems), nil
		case cty.String:
			out := make([]string, len(elems))
			for i, e := range elems {
				e, _ = e.Unmark()
				out[i] = e.AsString()
			}
			return out, nil
		case cty.Bool:
			out := make([]bool, len(elems))
			for i, e := range elems {
				e, _ = e.Unmark()
				out[i] = e.True()
			}
			return out, nil
		}
	}

	return genericSlice(elems)
}

// numberSlice returns []int64 when every element is integral and []float64
// otherwise.
func numberSlice(elems []cty.Value) any {
	nums := make([]any, len(elems))
	integral := true
	for i, e := range elems {
		e, _ = e.Unmark()
		nums[i] = numberFromCty(e)
		if _, ok := nums[i].(int64); !ok {
			integral = false
		}
	}
	if integral {
		out := make([]int64, len(nums))
		for i, n := range nums {
			out[i] = n.(int64)
		}
		return out
	}
	out := make([]float64, len(nums))
	for i, n := range nums {
		switch x := n.(type) {
		case int64:
			out[i] = float64(x)
		case float64:
			out[i] = x
		}
	}
	return out
}

func genericSlice(elems []cty.Value) ([]any, error) {
	out := make([]any, len(elems))
	for i, e := range elems {
		nv, err := FromCty(e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = nv
	}
	return out, nil
}

func tupleFromCty(v cty.Value, mark *frameMark) (any, error) {
	elems := elements(v)
	if len(elems) == 0 {
		return []any{}, nil
	}

	// A filtered frame comes back from a for expression as a tuple of rows.
	if mark != nil && allObjects(elems) {
		return frameFromRows(elems, elems[0].Type(), mark)
	}

	if len(elems) == 1 {
		return FromCty(elems[0])
	}
	return genericSlice(elems)
}

func allObjects(elems []cty.Value) bool {
	for _, e := range elems {
		if !e.Type().IsObjectType() {
			return false
		}
	}
	return true
}

func mapFromCty(v cty.Value) (map[string]any, error) {
	out := make(map[string]any, v.LengthInt())
	it := v.ElementIterator()
	for it.Next() {
		k, e := it.Element()
		key := k.AsString()
		nv, err := FromCty(e)
		if err != nil {
			return nil, fmt.Errorf("in key %q: %w", key, err)
		}
		out[key] = nv
	}
	return out, nil
}

// frameFromRows rebuilds a frame. Column order comes from the frame mark
// when it still matches the row attributes, and is lexical otherwise.
func frameFromRows(rows []cty.Value, rowType cty.Type, mark *frameMark) (*table.Frame, error) {
	cols := sortedKeys(rowType)
	if mark != nil {
		if named := mark.names(); sameSet(named, cols) {
			cols = named
		}
	}

	out := make([][]any, len(rows))
	for i, row := range rows {
		row, _ = row.Unmark()
		if row.IsNull() {
			out[i] = make([]any, len(cols))
			continue
		}
		cells := make([]any, len(cols))
		for j, c := range cols {
			if !row.Type().HasAttribute(c) {
				continue
			}
			cell, err := FromCty(row.GetAttr(c))
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", i, c, err)
			}
			cells[j] = cell
		}
		out[i] = cells
	}
	return table.NewFrame(cols, out)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			return false
		}
	}
	return true
}
