package types

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// ValueType is the runtime type tag of a Value.
type ValueType string

const (
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
	TypeBoolean ValueType = "boolean"
	TypeObject  ValueType = "object"
	TypeUnknown ValueType = "unknown"
)

// Valid reports whether t is one of the known type tags.
func (t ValueType) Valid() bool {
	switch t {
	case TypeNumber, TypeString, TypeBoolean, TypeObject, TypeUnknown:
		return true
	}
	return false
}

// Value is an immutable tagged union over number, string, boolean and
// structured object payloads. The zero Value is null and has TypeUnknown.
type Value struct {
	kind ValueType
	num  float64
	str  string
	b    bool
	obj  any
}

// Null is the absent-value sentinel.
var Null = Value{}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: TypeNumber, num: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: TypeString, str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: TypeBoolean, b: b} }

// ValueOf wraps an arbitrary decoded payload. Any Go numeric kind and
// json.Number map to TypeNumber; nil maps to Null. Maps, slices and structs
// become objects and are deep-copied when they are plain JSON shapes.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Number(f)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	default:
		return Value{kind: TypeObject, obj: cloneJSON(v)}
	}
}

// Type returns the value's type tag. Null reports TypeUnknown.
func (v Value) Type() ValueType {
	if v.kind == "" {
		return TypeUnknown
	}
	return v.kind
}

// IsNull reports whether v carries no payload.
func (v Value) IsNull() bool { return v.kind == "" }

// Float returns the numeric payload and true when v is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != TypeNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the string payload and true when v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != TypeString {
		return "", false
	}
	return v.str, true
}

// Boolean returns the boolean payload and true when v is a boolean.
func (v Value) Boolean() (bool, bool) {
	if v.kind != TypeBoolean {
		return false, false
	}
	return v.b, true
}

// Any returns the payload as a plain Go value. Objects are returned as a
// fresh copy so callers cannot reach the stored payload.
func (v Value) Any() any {
	switch v.kind {
	case TypeNumber:
		return v.num
	case TypeString:
		return v.str
	case TypeBoolean:
		return v.b
	case TypeObject:
		return cloneJSON(v.obj)
	}
	return nil
}

// Equal reports whether v and o carry the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case TypeString:
		return v.str == o.str
	case TypeBoolean:
		return v.b == o.b
	case TypeObject:
		return reflect.DeepEqual(v.obj, o.obj)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case TypeString:
		return v.str
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeObject:
		b, err := json.Marshal(v.obj)
		if err != nil {
			return fmt.Sprintf("%v", v.obj)
		}
		return string(b)
	}
	return "null"
}

// MarshalJSON encodes the bare payload. Non-finite numbers encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case TypeNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case TypeString:
		return json.Marshal(v.str)
	case TypeBoolean:
		return json.Marshal(v.b)
	case TypeObject:
		return json.Marshal(v.obj)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes any JSON document into a Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("types: decode value: %w", err)
	}
	*v = ValueOf(raw)
	return nil
}

// cloneJSON deep-copies the map/slice shapes produced by encoding/json.
// Anything else is returned unchanged.
func cloneJSON(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneJSON(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneJSON(e)
		}
		return out
	}
	return v
}
