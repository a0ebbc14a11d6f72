// Package value models decoded JSON-like payloads (manifests, property
// tables, material and geometry descriptors) as a tagged tree and diffs two
// such trees structurally.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Sequence
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable node of a structured tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	seq  []Value
	m    map[string]Value
}

func NullValue() Value             { return Value{} }
func BoolValue(b bool) Value       { return Value{kind: Bool, b: b} }
func StringValue(s string) Value   { return Value{kind: String, str: s} }
func SequenceOf(vs ...Value) Value { return Value{kind: Sequence, seq: vs} }

// NumberValue accepts any textual JSON number.
func NumberValue(n json.Number) Value { return Value{kind: Number, num: n} }

// IntValue is a convenience for integer numbers.
func IntValue(n int64) Value { return NumberValue(json.Number(strconv.FormatInt(n, 10))) }

// FloatValue is a convenience for floating point numbers.
func FloatValue(f float64) Value {
	return NumberValue(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// MapOf builds a key-map value. The map is copied.
func MapOf(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: Map, m: cp}
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) Len() int          { return len(v.seq) }
func (v Value) Index(i int) Value { return v.seq[i] }
func (v Value) Items() []Value    { return v.seq }
func (v Value) Str() string       { return v.str }
func (v Value) Boolean() bool     { return v.b }
func (v Value) Num() json.Number  { return v.num }

// Get returns the value stored under key in a map value.
func (v Value) Get(key string) (Value, bool) {
	x, ok := v.m[key]
	return x, ok
}

// Keys returns the sorted keys of a map value.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Interface converts v back to plain Go values (map[string]any, []any,
// json.Number, string, bool, nil) suitable for encoding/json.
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num
	case String:
		return v.str
	case Sequence:
		out := make([]any, len(v.seq))
		for i, x := range v.seq {
			out[i] = x.Interface()
		}
		return out
	case Map:
		out := make(map[string]any, len(v.m))
		for k, x := range v.m {
			out[k] = x.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v with sorted map keys.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON document into v, keeping numbers textual.
func (v *Value) UnmarshalJSON(data []byte) error {
	x, err := Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

// Decode reads a single JSON document from r.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, errors.Wrap(err, "decode json")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("decode json: trailing data after document")
	}
	return From(raw)
}

// From converts the output of encoding/json (decoded with UseNumber or not)
// into a Value.
func From(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case float64:
		return FloatValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case string:
		return StringValue(t), nil
	case []any:
		seq := make([]Value, len(t))
		for i, x := range t {
			v, err := From(x)
			if err != nil {
				return Value{}, err
			}
			seq[i] = v
		}
		return Value{kind: Sequence, seq: seq}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, x := range t {
			v, err := From(x)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Value{kind: Map, m: m}, nil
	default:
		return Value{}, errors.Errorf("unsupported value of type %T", raw)
	}
}

// Of converts any JSON-marshallable Go value into a Value by encoding it and
// decoding the result.
func Of(x any) (Value, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return Value{}, errors.Wrapf(err, "encode %T", x)
	}
	return Decode(bytes.NewReader(b))
}
