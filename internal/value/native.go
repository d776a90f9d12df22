package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"unsafe"
)

var (
	// ErrCycle is returned when a native composite refers back to itself.
	ErrCycle = errors.New("value: reference cycle in native composite")
	// ErrUnsupported is returned for native values with no Value equivalent.
	ErrUnsupported = errors.New("value: unsupported native type")
)

// FromNative decomposes a native Go value into a Value tree.
//
// Maps with string keys become objects (keys sorted, so output is stable),
// slices and arrays become arrays, pointers and interfaces are followed.
// A Value or *Object is returned as-is. Composites that contain themselves
// fail with ErrCycle rather than recursing without bound.
func FromNative(x any) (Value, error) {
	n := nativeWalker{active: make(map[visitKey]struct{})}
	return n.walk(reflect.ValueOf(x), "$")
}

// MustFromNative is FromNative for values known to be acyclic and supported.
func MustFromNative(x any) Value {
	v, err := FromNative(x)
	if err != nil {
		panic(err)
	}
	return v
}

type visitKey struct {
	ptr  unsafe.Pointer
	typ  reflect.Type
	size int
}

type nativeWalker struct {
	// active holds the composites on the current path only; shared but
	// acyclic substructures are decomposed once per occurrence
	active map[visitKey]struct{}
}

var (
	valueType  = reflect.TypeOf(Value{})
	objectType = reflect.TypeOf((*Object)(nil))
	numberType = reflect.TypeOf(json.Number(""))
)

func (n *nativeWalker) walk(rv reflect.Value, path string) (Value, error) {
	if !rv.IsValid() {
		return Null(), nil
	}

	switch rv.Type() {
	case valueType:
		return rv.Interface().(Value), nil
	case objectType:
		if rv.IsNil() {
			return Null(), nil
		}
		return ObjectOf(rv.Interface().(*Object)), nil
	case numberType:
		return decodeNumber([]byte(rv.String()))
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return n.walk(rv.Elem(), path)

	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		leave, err := n.enter(rv.UnsafePointer(), rv.Type(), 0, path)
		if err != nil {
			return Null(), err
		}
		defer leave()
		return n.walk(rv.Elem(), path)

	case reflect.Bool:
		return Bool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Double(float64(u)), nil
		}
		return Int(int64(u)), nil

	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil

	case reflect.String:
		return String(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		leave, err := n.enter(rv.UnsafePointer(), rv.Type(), rv.Len(), path)
		if err != nil {
			return Null(), err
		}
		defer leave()
		return n.walkList(rv, path)

	case reflect.Array:
		return n.walkList(rv, path)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Null(), fmt.Errorf("%w: %s at %s", ErrUnsupported, rv.Type(), path)
		}
		if rv.IsNil() {
			return Null(), nil
		}
		leave, err := n.enter(rv.UnsafePointer(), rv.Type(), 0, path)
		if err != nil {
			return Null(), err
		}
		defer leave()
		return n.walkMap(rv, path)
	}

	return Null(), fmt.Errorf("%w: %s at %s", ErrUnsupported, rv.Type(), path)
}

func (n *nativeWalker) walkList(rv reflect.Value, path string) (Value, error) {
	elems := make([]Value, rv.Len())
	for i := range elems {
		v, err := n.walk(rv.Index(i), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return Null(), err
		}
		elems[i] = v
	}
	return Array(elems...), nil
}

func (n *nativeWalker) walkMap(rv reflect.Value, path string) (Value, error) {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	obj := NewObject()
	for _, k := range keys {
		v, err := n.walk(rv.MapIndex(k), path+"."+k.String())
		if err != nil {
			return Null(), err
		}
		obj.Set(k.String(), v)
	}
	return ObjectOf(obj), nil
}

func (n *nativeWalker) enter(ptr unsafe.Pointer, typ reflect.Type, size int, path string) (func(), error) {
	key := visitKey{ptr: ptr, typ: typ, size: size}
	if _, ok := n.active[key]; ok {
		return nil, fmt.Errorf("%w at %s", ErrCycle, path)
	}
	n.active[key] = struct{}{}
	return func() { delete(n.active, key) }, nil
}
