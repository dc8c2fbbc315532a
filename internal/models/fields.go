package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// FieldKind tags the dynamic type held by a FieldValue.
type FieldKind int

const (
	FieldNull FieldKind = iota
	FieldString
	FieldNumber
	FieldBool
	FieldList
	FieldMap
)

func (k FieldKind) String() string {
	switch k {
	case FieldNull:
		return "null"
	case FieldString:
		return "string"
	case FieldNumber:
		return "number"
	case FieldBool:
		return "bool"
	case FieldList:
		return "list"
	case FieldMap:
		return "map"
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// FieldValue is one model-generated loader field. Exactly one payload field
// is meaningful, selected by Kind.
type FieldValue struct {
	Kind FieldKind
	Str  string
	Num  float64
	Bool bool
	List []FieldValue
	Map  LoaderFields
}

// LoaderFields is the open key-value mapping attached to a LoaderMapping.
type LoaderFields map[string]FieldValue

func StringField(s string) FieldValue { return FieldValue{Kind: FieldString, Str: s} }
func NumberField(n float64) FieldValue { return FieldValue{Kind: FieldNumber, Num: n} }
func BoolField(b bool) FieldValue { return FieldValue{Kind: FieldBool, Bool: b} }
func ListField(v ...FieldValue) FieldValue { return FieldValue{Kind: FieldList, List: v} }
func MapField(m LoaderFields) FieldValue { return FieldValue{Kind: FieldMap, Map: m} }

// FieldFromAny converts a value produced by encoding/json into a FieldValue.
func FieldFromAny(v any) (FieldValue, error) {
	switch t := v.(type) {
	case nil:
		return FieldValue{Kind: FieldNull}, nil
	case string:
		return StringField(t), nil
	case float64:
		return NumberField(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return FieldValue{}, err
		}
		return NumberField(n), nil
	case bool:
		return BoolField(t), nil
	case []any:
		out := make([]FieldValue, 0, len(t))
		for _, item := range t {
			fv, err := FieldFromAny(item)
			if err != nil {
				return FieldValue{}, err
			}
			out = append(out, fv)
		}
		return FieldValue{Kind: FieldList, List: out}, nil
	case map[string]any:
		out := make(LoaderFields, len(t))
		for k, item := range t {
			fv, err := FieldFromAny(item)
			if err != nil {
				return FieldValue{}, err
			}
			out[k] = fv
		}
		return MapField(out), nil
	}
	return FieldValue{}, fmt.Errorf("unsupported field value of type %T", v)
}

// Any converts the value back into plain Go values.
func (v FieldValue) Any() any {
	switch v.Kind {
	case FieldString:
		return v.Str
	case FieldNumber:
		return v.Num
	case FieldBool:
		return v.Bool
	case FieldList:
		out := make([]any, 0, len(v.List))
		for _, item := range v.List {
			out = append(out, item.Any())
		}
		return out
	case FieldMap:
		out := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.Any()
		}
		return out
	}
	return nil
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *FieldValue) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	fv, err := FieldFromAny(raw)
	if err != nil {
		return err
	}
	*v = fv
	return nil
}

// Keys returns the field names in sorted order.
func (f LoaderFields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
