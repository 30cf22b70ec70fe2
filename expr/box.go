// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
)

// PropertyBox holds a value for each path of a PropertySet. It is the value
// object of write operations and the row type of property set projections.
type PropertyBox struct {
	set    *PropertySet
	values map[string]any
}

// NewPropertyBox returns an empty box over set.
func NewPropertyBox(set *PropertySet) *PropertyBox {
	return &PropertyBox{set: set, values: make(map[string]any, set.Len())}
}

// PropertySet returns the set the box is defined over.
func (b *PropertyBox) PropertySet() *PropertySet {
	return b.set
}

// Set stores v for the path p. It fails if p is not part of the set or if v
// cannot hold a value of the path type.
func (b *PropertyBox) Set(p Path, v any) error {
	return b.SetValue(p.Name(), v)
}

// SetValue stores v for the path with the given name.
func (b *PropertyBox) SetValue(name string, v any) error {
	p, ok := b.set.Path(name)
	if !ok {
		return fmt.Errorf("property %q is not part of the property set", name)
	}
	if v != nil && p.Type() != anyType && !reflect.TypeOf(v).AssignableTo(p.Type()) {
		return fmt.Errorf("cannot set property %q of type %s to %T", name, p.Type(), v)
	}
	b.values[name] = v
	return nil
}

// Get returns the value stored for p, or nil.
func (b *PropertyBox) Get(p Path) any {
	return b.values[p.Name()]
}

// Value returns the value stored for the named path and whether one was set.
func (b *PropertyBox) Value(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Contains reports whether a non nil value is stored for the named path.
func (b *PropertyBox) Contains(name string) bool {
	v, ok := b.values[name]
	return ok && v != nil
}

// Values returns the stored values in property set order. Paths without a
// value yield nil.
func (b *PropertyBox) Values() []any {
	vs := make([]any, 0, b.set.Len())
	for _, p := range b.set.Paths() {
		vs = append(vs, b.values[p.Name()])
	}
	return vs
}

// Clone returns a shallow copy of b.
func (b *PropertyBox) Clone() *PropertyBox {
	c := NewPropertyBox(b.set)
	for k, v := range b.values {
		c.values[k] = v
	}
	return c
}

func (b *PropertyBox) String() string {
	s := "{"
	for i, p := range b.set.Paths() {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %v", p.Name(), b.values[p.Name()])
	}
	return s + "}"
}

// Value returns the typed value stored in b for the property p. The boolean
// is false when no value, or a nil value, is stored.
func Value[T any](b *PropertyBox, p *Property[T]) (T, bool) {
	var zero T
	v, ok := b.values[p.Name()]
	if !ok || v == nil {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
