// Package value implements the dynamic value model that crosses the boundary
// between the host and the embedded script runtime.
//
// A Value is a closed tagged union. Type identity is decided once, when the
// Value is constructed: in particular a string that starts with the
// function-reference marker is classified as a function reference, never as a
// plain string. Every path that rebuilds a Value from text (Parse, Decompose,
// UnmarshalJSON, String) performs that classification again.
package value

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindFunction
	KindObject
	KindArray
)

// FunctionPrefix is the marker that identifies a function reference on the wire.
const FunctionPrefix = "function:"

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable-by-convention tagged union. The zero Value is Null.
//
// Object values share their *Object; copying a Value does not copy members.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	// s holds string content, or the raw wire text of a function reference
	s   string
	obj *Object
	arr []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Double returns a floating point value.
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// String classifies s: text carrying the function marker becomes a function
// reference (legacy or 3-part form), anything else a plain string.
func String(s string) Value {
	if strings.HasPrefix(s, FunctionPrefix) {
		return Value{kind: KindFunction, s: s}
	}
	return Value{kind: KindString, s: s}
}

// Function returns a function reference in the 3-part wire form
// "function:<id>:<base64(source)>".
func Function(id uint64, source string) Value {
	return Value{
		kind: KindFunction,
		s:    FunctionPrefix + strconv.FormatUint(id, 10) + ":" + base64.StdEncoding.EncodeToString([]byte(source)),
	}
}

// ObjectOf wraps o. A nil o yields an empty object.
func ObjectOf(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

// Array returns an array holding vs in order.
func Array(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, arr: vs}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsValid reports whether v carries anything other than null.
func (v Value) IsValid() bool { return v.kind != KindNull }

func (v Value) IsBool() bool { return v.kind == KindBool }

func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindDouble }

func (v Value) IsInt() bool { return v.kind == KindInt }

func (v Value) IsDouble() bool { return v.kind == KindDouble }

// IsString is true for plain strings only; function references are excluded.
func (v Value) IsString() bool { return v.kind == KindString }

// IsFunction reports whether v is a function reference, in either the legacy
// "function:<base64>" form or the 3-part form.
func (v Value) IsFunction() bool { return v.kind == KindFunction }

func (v Value) IsObject() bool { return v.kind == KindObject }

func (v Value) IsArray() bool { return v.kind == KindArray }

// WireText returns the raw wire text of a function reference.
func (v Value) WireText() (string, bool) {
	if v.kind != KindFunction {
		return "", false
	}
	return v.s, true
}

// FunctionID returns the function table id of a 3-part function reference.
func (v Value) FunctionID() (uint64, bool) {
	parts, ok := v.functionParts()
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FunctionSource returns the decoded source text of a 3-part function
// reference.
func (v Value) FunctionSource() (string, bool) {
	parts, ok := v.functionParts()
	if !ok {
		return "", false
	}
	src, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}
	return string(src), true
}

// functionParts splits the 3-part form. Legacy and malformed values do not
// yield exactly three parts and degrade to absent.
func (v Value) functionParts() ([]string, bool) {
	if v.kind != KindFunction {
		return nil, false
	}
	parts := strings.Split(v.s, ":")
	if len(parts) != 3 {
		return nil, false
	}
	return parts, true
}

// legacySource decodes the source of a "function:<base64>" value.
func (v Value) legacySource() (string, bool) {
	if v.kind != KindFunction {
		return "", false
	}
	encoded := strings.TrimPrefix(v.s, FunctionPrefix)
	if strings.Contains(encoded, ":") {
		return "", false
	}
	src, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(src), true
}

// Equal reports structural equality, including object key order. Doubles
// compare by value, so NaN is never equal to itself.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindDouble:
		return a.f == b.f
	case KindString, KindFunction:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return a.obj.equal(b.obj)
	}
	return false
}

// GoString renders the value as JSON text, for debugging and test failures.
func (v Value) GoString() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "value.Value(" + v.kind.String() + ")"
	}
	return "value.Value(" + string(b) + ")"
}
