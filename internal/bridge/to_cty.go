// Package bridge converts values between the orchestrator's native Go
// representation and the cty value model used by the HCL script runtime.
//
// Conversions are lossless for tables, numeric vectors (empty ones
// included) and string-keyed maps of scalars, up to two canonical
// coercions: integral numbers come back as int64, and int/int32 widen to
// int64.
package bridge

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/flowbridge/internal/result"
	"github.com/specialistvlad/flowbridge/internal/table"
	"github.com/zclconf/go-cty/cty"
)

// frameMark is attached to list values built from frames so the column
// order survives the trip through cty objects, whose attributes are unordered.
type frameMark struct {
	columns string
}

const columnSep = "\x1f"

func markFor(columns []string) frameMark {
	return frameMark{columns: strings.Join(columns, columnSep)}
}

func (m frameMark) names() []string {
	if m.columns == "" {
		return nil
	}
	return strings.Split(m.columns, columnSep)
}

// floatsMark is attached to empty number lists built from float vectors,
// since an empty cty list cannot tell them apart from integer ones.
type floatsMark struct{}

// opaque carries Go values that have no structural cty form, such as
// database handles and clients.
type opaque struct {
	value any
}

var opaqueType = cty.Capsule("opaque", reflect.TypeOf(opaque{}))

// ToCty converts a native value into the secondary runtime.
func ToCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		if x == cty.NilVal {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return x, nil
	case table.Tabular:
		f, err := x.Materialize()
		if err != nil {
			return cty.NilVal, fmt.Errorf("materializing table: %w", err)
		}
		return frameToCty(f)
	case result.Inputs:
		return envelopesToCty(x)
	case map[string]*result.Envelope:
		return envelopesToCty(x)
	case *result.Envelope:
		return ToCty(x.Payload())
	case []float64:
		return floatList(x), nil
	case []float32:
		fs := make([]float64, len(x))
		for i, f := range x {
			fs[i] = float64(f)
		}
		return floatList(fs), nil
	case []int64:
		return intList(x), nil
	case []int:
		is := make([]int64, len(x))
		for i, n := range x {
			is[i] = int64(n)
		}
		return intList(is), nil
	case []int32:
		is := make([]int64, len(x))
		for i, n := range x {
			is[i] = int64(n)
		}
		return intList(is), nil
	case []map[string]any:
		f, err := table.FromRecords(nil, x)
		if err != nil {
			return cty.NilVal, err
		}
		return frameToCty(f)
	case []any:
		return sliceToCty(x)
	case map[string]any:
		return objectToCty(x)
	case time.Time:
		return cty.StringVal(x.Format(time.RFC3339Nano)), nil
	}

	if s, ok := scalarToCty(v); ok {
		return s, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		if rv.Len() == 0 {
			switch rv.Type().Elem().Kind() {
			case reflect.String:
				return cty.ListValEmpty(cty.String), nil
			case reflect.Bool:
				return cty.ListValEmpty(cty.Bool), nil
			}
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return sliceToCty(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return objectToCty(m)
	}

	return cty.CapsuleVal(opaqueType, &opaque{value: v}), nil
}

func scalarToCty(v any) (cty.Value, bool) {
	switch x := v.(type) {
	case string:
		return cty.StringVal(x), true
	case bool:
		return cty.BoolVal(x), true
	case int:
		return cty.NumberIntVal(int64(x)), true
	case int8:
		return cty.NumberIntVal(int64(x)), true
	case int16:
		return cty.NumberIntVal(int64(x)), true
	case int32:
		return cty.NumberIntVal(int64(x)), true
	case int64:
		return cty.NumberIntVal(x), true
	case uint:
		return cty.NumberUIntVal(uint64(x)), true
	case uint8:
		return cty.NumberUIntVal(uint64(x)), true
	case uint16:
		return cty.NumberUIntVal(uint64(x)), true
	case uint32:
		return cty.NumberUIntVal(uint64(x)), true
	case uint64:
		return cty.NumberUIntVal(x), true
	case float32:
		return floatVal(float64(x)), true
	case float64:
		return floatVal(x), true
	}
	return cty.NilVal, false
}

// floatVal maps NaN to a null number since cty numbers cannot hold it.
func floatVal(f float64) cty.Value {
	if math.IsNaN(f) {
		return cty.NullVal(cty.Number)
	}
	return cty.NumberFloatVal(f)
}

func floatList(fs []float64) cty.Value {
	if len(fs) == 0 {
		return cty.ListValEmpty(cty.Number).Mark(floatsMark{})
	}
	vals := make([]cty.Value, len(fs))
	for i, f := range fs {
		vals[i] = floatVal(f)
	}
	return cty.ListVal(vals)
}

func intList(is []int64) cty.Value {
	if len(is) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	vals := make([]cty.Value, len(is))
	for i, n := range is {
		vals[i] = cty.NumberIntVal(n)
	}
	return cty.ListVal(vals)
}

// sliceToCty handles heterogeneous sequences: numeric ones become number
// lists, lists of row objects become frames, anything else a string list.
func sliceToCty(items []any) (cty.Value, error) {
	if len(items) == 0 {
		return cty.EmptyTupleVal, nil
	}

	allInts, allNums, allRecords := true, true, true
	for _, it := range items {
		switch it.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			allRecords = false
		case float32, float64:
			allInts, allRecords = false, false
		case map[string]any:
			allInts, allNums = false, false
		default:
			allInts, allNums, allRecords = false, false, false
		}
	}

	switch {
	case allNums && allInts:
		is := make([]int64, len(items))
		for i, it := range items {
			is[i] = reflect.ValueOf(it).Convert(reflect.TypeOf(int64(0))).Int()
		}
		return intList(is), nil
	case allNums:
		fs := make([]float64, len(items))
		for i, it := range items {
			fs[i] = reflect.ValueOf(it).Convert(reflect.TypeOf(float64(0))).Float()
		}
		return floatList(fs), nil
	case allRecords:
		recs := make([]map[string]any, len(items))
		for i, it := range items {
			recs[i] = it.(map[string]any)
		}
		f, err := table.FromRecords(nil, recs)
		if err != nil {
			return cty.NilVal, err
		}
		return frameToCty(f)
	}

	vals := make([]cty.Value, len(items))
	for i, it := range items {
		if it == nil {
			vals[i] = cty.NullVal(cty.String)
			continue
		}
		vals[i] = cty.StringVal(fmt.Sprint(it))
	}
	return cty.ListVal(vals), nil
}

func objectToCty(m map[string]any) (cty.Value, error) {
	if len(m) == 0 {
		return cty.EmptyObjectVal, nil
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		cv, err := ToCty(v)
		if err != nil {
			return cty.NilVal, fmt.Errorf("in key %q: %w", k, err)
		}
		attrs[k] = cv
	}
	return cty.ObjectVal(attrs), nil
}

// envelopesToCty keeps only the payloads of upstream results; entries whose
// payload is absent are dropped.
func envelopesToCty(m map[string]*result.Envelope) (cty.Value, error) {
	payloads := make(map[string]any, len(m))
	for id, env := range m {
		if p := env.Payload(); p != nil {
			payloads[id] = p
		}
	}
	return objectToCty(payloads)
}

type columnKind int

const (
	kindNull columnKind = iota
	kindNumber
	kindString
	kindBool
)

// columnType picks one cty type per column. Mixed columns fall back to
// strings.
func columnType(f *table.Frame, idx int) cty.Type {
	kind := kindNull
	for _, row := range f.Rows() {
		var k columnKind
		switch row[idx].(type) {
		case nil:
			continue
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			k = kindNumber
		case bool:
			k = kindBool
		default:
			k = kindString
		}
		if kind == kindNull {
			kind = k
		} else if kind != k {
			return cty.String
		}
	}
	switch kind {
	case kindNumber:
		return cty.Number
	case kindBool:
		return cty.Bool
	default:
		return cty.String
	}
}

func cellToCty(cell any, ty cty.Type) cty.Value {
	if cell == nil {
		return cty.NullVal(ty)
	}
	if ty == cty.String {
		if s, ok := cell.(string); ok {
			return cty.StringVal(s)
		}
		return cty.StringVal(fmt.Sprint(cell))
	}
	v, _ := scalarToCty(cell)
	return v
}

func frameToCty(f *table.Frame) (cty.Value, error) {
	cols := f.Columns()
	types := make(map[string]cty.Type, len(cols))
	for i, c := range cols {
		types[c] = columnType(f, i)
	}
	mark := markFor(cols)

	if f.Len() == 0 {
		return cty.ListValEmpty(cty.Object(types)).Mark(mark), nil
	}

	rows := make([]cty.Value, f.Len())
	for i, row := range f.Rows() {
		attrs := make(map[string]cty.Value, len(cols))
		for j, c := range cols {
			attrs[c] = cellToCty(row[j], types[c])
		}
		rows[i] = cty.ObjectVal(attrs)
	}
	return cty.ListVal(rows).Mark(mark), nil
}

// sortedKeys returns the attribute names of an object type in lexical order.
func sortedKeys(ty cty.Type) []string {
	keys := make([]string, 0, len(ty.AttributeTypes()))
	for k := range ty.AttributeTypes() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
