package config

import (
	"math/big"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// FromCtyValue converts a known cty value into plain Go values suitable for
// JSON state storage: string, float64/int, bool, []interface{},
// map[string]interface{}, or nil.
func FromCtyValue(val cty.Value) interface{} {
	if val.IsNull() || !val.IsKnown() {
		return nil
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString()
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if i, acc := bf.Int64(); acc == big.Exact {
			return int(i)
		}
		f, _ := bf.Float64()
		return f
	case ty == cty.Bool:
		return val.True()
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		out := make([]interface{}, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			out = append(out, FromCtyValue(elem))
		}
		return out
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]interface{})
		for it := val.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			out[key.AsString()] = FromCtyValue(elem)
		}
		return out
	default:
		return nil
	}
}

// ToCtyValue converts plain Go values back into cty values. Maps become
// objects and slices become tuples so mixed element types survive the trip.
func ToCtyValue(val interface{}) cty.Value {
	switch v := val.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(v)
	case bool:
		return cty.BoolVal(v)
	case int:
		return cty.NumberIntVal(int64(v))
	case int64:
		return cty.NumberIntVal(v)
	case float64:
		return cty.NumberFloatVal(v)
	case []interface{}:
		if len(v) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(v))
		for i, elem := range v {
			elems[i] = ToCtyValue(elem)
		}
		return cty.TupleVal(elems)
	case []string:
		if len(v) == 0 {
			return cty.ListValEmpty(cty.String)
		}
		elems := make([]cty.Value, len(v))
		for i, s := range v {
			elems[i] = cty.StringVal(s)
		}
		return cty.ListVal(elems)
	case map[string]interface{}:
		if len(v) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(v))
		for key, elem := range v {
			attrs[key] = ToCtyValue(elem)
		}
		return cty.ObjectVal(attrs)
	case map[string]string:
		if len(v) == 0 {
			return cty.MapValEmpty(cty.String)
		}
		attrs := make(map[string]cty.Value, len(v))
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			attrs[key] = cty.StringVal(v[key])
		}
		return cty.MapVal(attrs)
	default:
		return cty.NullVal(cty.DynamicPseudoType)
	}
}

// AttrsToCty converts an attribute map into a single cty object value.
func AttrsToCty(attrs map[string]interface{}) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	out := make(map[string]cty.Value, len(attrs))
	for name, val := range attrs {
		out[name] = ToCtyValue(val)
	}
	return cty.ObjectVal(out)
}
