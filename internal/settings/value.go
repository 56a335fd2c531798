package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedValue is returned when a decoded value has no tagged-union representation.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindStringArray
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindStringArray:
		return "stringArray"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind name, which keeps schema payloads readable.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Value is a tagged union over the shapes an override or base configuration value may take.
// The zero Value is null.
type Value struct {
	kind    Kind
	b       bool
	num     float64
	integer bool
	s       string
	strs    []string
	list    []Value
	obj     Tree
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integral number.
func Int(n int64) Value { return Value{kind: KindNumber, num: float64(n), integer: true} }

// Float wraps a number; integral floats are kept integral for encoding.
func Float(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return Value{kind: KindNumber, num: f, integer: true}
	}
	return Value{kind: KindNumber, num: f}
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// StringArray wraps a list of strings. The slice is copied.
func StringArray(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{kind: KindStringArray, strs: out}
}

// List wraps a heterogeneous array. The slice is copied.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return Value{kind: KindList, list: out}
}

// Object wraps a nested tree. The tree is not copied.
func Object(t Tree) Value {
	if t == nil {
		t = Tree{}
	}
	return Value{kind: KindObject, obj: t}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsInt reports the number as an int64 when it is integral.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber || !v.integer {
		return 0, false
	}
	return int64(v.num), true
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsStringArray returns a copy of the strings held by a StringArray.
func (v Value) AsStringArray() ([]string, bool) {
	if v.kind != KindStringArray {
		return nil, false
	}
	out := make([]string, len(v.strs))
	copy(out, v.strs)
	return out, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// AsObject returns the nested tree. Mutating it mutates the value.
func (v Value) AsObject() (Tree, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindStringArray:
		return StringArray(v.strs...)
	case KindList:
		return List(v.list...)
	case KindObject:
		return Object(v.obj.Clone())
	default:
		return v
	}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.s == other.s
	case KindStringArray:
		if len(v.strs) != len(other.strs) {
			return false
		}
		for i := range v.strs {
			if v.strs[i] != other.strs[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	}
	return false
}

// ToAny converts the value into plain Go values (nil, bool, int64, float64, string,
// []string, []any, map[string]any) suitable for encoders and database drivers.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.integer {
			return int64(v.num)
		}
		return v.num
	case KindString:
		return v.s
	case KindStringArray:
		out := make([]string, len(v.strs))
		copy(out, v.strs)
		return out
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case KindObject:
		return v.obj.ToMap()
	default:
		return nil
	}
}

// FromAny converts decoded JSON, YAML or database values into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x.Clone(), nil
	case Tree:
		return Object(x.Clone()), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("%w: number %q", ErrUnsupportedValue, x.String())
		}
		return Float(f), nil
	case []string:
		return StringArray(x...), nil
	case []any:
		return fromSlice(x)
	case map[string]any:
		t := make(Tree, len(x))
		for k, item := range x {
			val, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("%s: %w", k, err)
			}
			t[k] = val
		}
		return Object(t), nil
	case map[any]any:
		t := make(Tree, len(x))
		for k, item := range x {
			key := fmt.Sprint(k)
			val, err := FromAny(item)
			if err != nil {
				return Null(), fmt.Errorf("%s: %w", key, err)
			}
			t[key] = val
		}
		return Object(t), nil
	default:
		return Null(), fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
}

func fromSlice(items []any) (Value, error) {
	allStrings := true
	for _, item := range items {
		if _, ok := item.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		strs := make([]string, len(items))
		for i, item := range items {
			strs[i] = item.(string)
		}
		return Value{kind: KindStringArray, strs: strs}, nil
	}

	list := make([]Value, len(items))
	for i, item := range items {
		val, err := FromAny(item)
		if err != nil {
			return Null(), fmt.Errorf("[%d]: %w", i, err)
		}
		list[i] = val
	}
	return Value{kind: KindList, list: list}, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.ToAny(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	val, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func (v Value) String() string {
	data, err := json.Marshal(v.ToAny())
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(data)
}

func sortedKeys(t Tree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
