// Package value implements the tagged-sum JSON value type every node's
// value and metadata are stored as: Null, Bool, Int, Float, String,
// List, or string-keyed Map.
// Values round-trip through PostgreSQL jsonb columns, so the
// representation here is chosen for byte-exact canonical-JSON comparison
// rather than for Go ergonomics.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind tags which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is Null | Bool | Int | Float | String | List<Value> | Map<string, Value>.
// The zero Value is KindNull.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    map[string]Value
}

func Null() Value            { return Value{kind: KindNull} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func List(l []Value) Value   { return Value{kind: KindList, l: l} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) BoolValue() bool  { return v.b }
func (v Value) IntValue() int64  { return v.i }
func (v Value) FloatValue() float64 { return v.f }
func (v Value) StringValue() string { return v.s }
func (v Value) ListValue() []Value  { return v.l }
func (v Value) MapValue() map[string]Value { return v.m }

// FromAny converts a decoded-JSON-shaped Go value (as produced by
// encoding/json into an `any`, or hand-built from map[string]any/[]any/
// string/float64/bool/nil/int64) into a Value. It rejects any map whose
// keys are not strings (trivially true here, since encoding/json only
// ever produces map[string]any) but is also used to validate
// user-supplied maps before they are accepted at all — callers pass
// map[string]any built from request bodies, never map[any]any.
func FromAny(a any) (Value, error) {
	switch t := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1e15 {
			// Preserve the int/float distinction where JSON can't: a
			// float64 that happens to be integral round-trips as Int so
			// that equality and set_time semantics behave predictably.
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return List(out), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Map(out), nil
	case map[any]any:
		return Value{}, ErrNonStringKey
	default:
		return Value{}, fmt.Errorf("value: unsupported type %T", a)
	}
}

// ErrNonStringKey is returned by FromAny/ValidateStringKeys when a map
// contains a non-string key.
var ErrNonStringKey = fmt.Errorf("value: map keys must be strings")

// ToAny converts a Value back to the plain Go shape encoding/json expects.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler using canonical (sorted-key)
// encoding so that Equal can be defined as byte-exact comparison of the
// marshaled form.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.canonicalJSON()
}

func (v Value) canonicalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool, KindInt, KindFloat, KindString:
		return json.Marshal(v.simple())
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.l {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.canonicalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.m[k].canonicalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

func (v Value) simple() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	var a any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return err
	}
	nv, err := fromDecoded(a)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

// fromDecoded handles json.Number, which FromAny doesn't see when values
// are built programmatically rather than decoded from the wire.
func fromDecoded(a any) (Value, error) {
	switch t := a.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := fromDecoded(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return List(out), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := fromDecoded(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Map(out), nil
	default:
		return FromAny(a)
	}
}

// Equal is byte-exact comparison of the canonical JSON forms — the one
// equality that stays unambiguous once floats are involved.
func Equal(a, b Value) bool {
	ab, aerr := a.canonicalJSON()
	bb, berr := b.canonicalJSON()
	if aerr != nil || berr != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// ValidateStringKeys walks a decoded-JSON `any` tree (maps, slices,
// scalars) and returns ErrNonStringKey if it contains a map[any]any at
// any depth — used to reject metadata/values carrying
// non-string-keyed maps before they ever reach FromAny.
func ValidateStringKeys(a any) error {
	switch t := a.(type) {
	case map[string]any:
		for _, e := range t {
			if err := ValidateStringKeys(e); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, e := range t {
			if err := ValidateStringKeys(e); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		return ErrNonStringKey
	default:
		return nil
	}
}
