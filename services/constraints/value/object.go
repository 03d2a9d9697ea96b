// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package value

// Object is an insertion-ordered string-keyed map of Values.
//
// Read methods are nil-safe: a nil *Object behaves as an empty object.
//
// Thread Safety: not safe for concurrent mutation. The pipeline treats
// parsed objects as read-only once handed to the migrator.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the field names in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the field and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Null(), false
	}
	v, ok := o.values[key]
	return v, ok
}

// Lookup returns the field, or Null when absent.
func (o *Object) Lookup(key string) Value {
	v, _ := o.Get(key)
	return v
}

// Has reports whether key is present (even when its value is Null).
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores v under key. Existing keys keep their position.
func (o *Object) Set(key string, v Value) *Object {
	if o.values == nil {
		o.values = make(map[string]Value)
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

// SetDefault stores v under key only if key is absent.
func (o *Object) SetDefault(key string, v Value) *Object {
	if !o.Has(key) {
		o.Set(key, v)
	}
	return o
}

// Delete removes key if present.
func (o *Object) Delete(key string) {
	if _, exists := o.values[key]; !exists {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Rename moves the field at from to to, keeping its position. When to
// already exists the field at from is dropped and to wins.
func (o *Object) Rename(from, to string) {
	v, ok := o.values[from]
	if !ok || from == to {
		return
	}
	if o.Has(to) {
		o.Delete(from)
		return
	}
	for i, k := range o.keys {
		if k == from {
			o.keys[i] = to
			break
		}
	}
	delete(o.values, from)
	o.values[to] = v
}

// Range calls fn for every field in order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	out := NewObject()
	o.Range(func(k string, v Value) bool {
		out.Set(k, v.Clone())
		return true
	})
	return out
}
