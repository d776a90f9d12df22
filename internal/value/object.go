package value

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a string-keyed map that remembers insertion order. Re-setting an
// existing key keeps its original position.
//
// Object is not safe for concurrent mutation.
type Object struct {
	m *orderedmap.OrderedMap[string, Value]
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{m: orderedmap.New[string, Value]()}
}

// Set stores v under key.
func (o *Object) Set(key string, v Value) {
	o.m.Set(key, v)
}

// Get returns the member stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Null(), false
	}
	return o.m.Get(key)
}

// Delete removes key, reporting whether it was present.
func (o *Object) Delete(key string) bool {
	_, ok := o.m.Delete(key)
	return ok
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return o.m.Len()
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	o.Range(func(key string, _ Value) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Range calls fn for each member in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

func (o *Object) equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	if o.Len() == 0 {
		return true
	}
	a, b := o.m.Oldest(), other.m.Oldest()
	for a != nil && b != nil {
		if a.Key != b.Key || !Equal(a.Value, b.Value) {
			return false
		}
		a, b = a.Next(), b.Next()
	}
	return a == nil && b == nil
}
