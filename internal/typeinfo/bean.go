// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/sqlstore/expr"
)

// Bean gives access by tag to the "db" fields of a struct value.
type Bean struct {
	info  *Info
	value reflect.Value
}

// NewBean returns a Bean over the struct pointed to by ptr.
func NewBean(ptr any) (*Bean, error) {
	if ptr == (any)(nil) {
		return nil, errors.New("need pointer to struct, got nil")
	}
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.Type().Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("need pointer to struct, got %s", v.Kind())
	}
	if v.IsNil() {
		return nil, errors.Errorf("got nil pointer to %s", v.Type().Elem().Name())
	}
	info, err := TypeInfo(v.Type().Elem())
	if err != nil {
		return nil, err
	}
	return &Bean{info: info, value: v.Elem()}, nil
}

// New returns a Bean over a new zero value of the struct type described by
// info.
func New(info *Info) *Bean {
	return &Bean{info: info, value: reflect.New(info.Type).Elem()}
}

// Info returns the reflection information of the bean type.
func (b *Bean) Info() *Info {
	return b.info
}

// Interface returns a pointer to the underlying struct.
func (b *Bean) Interface() any {
	return b.value.Addr().Interface()
}

// Get returns the value of the field tagged tag. Nil pointers, and zero
// values of omitempty fields, yield nil. The boolean is false if no field has
// the tag.
func (b *Bean) Get(tag string) (any, bool) {
	f, ok := b.info.TagToField[tag]
	if !ok {
		return nil, false
	}
	fv := b.value.Field(f.Index)
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil, true
		}
		return fv.Elem().Interface(), true
	}
	if f.OmitEmpty && fv.IsZero() {
		return nil, true
	}
	return fv.Interface(), true
}

// Set stores v in the field tagged tag. A nil value zeroes the field. Values
// convertible to the field type, such as integers of another width, are
// converted.
func (b *Bean) Set(tag string, v any) error {
	f, ok := b.info.TagToField[tag]
	if !ok {
		return errors.Errorf("%s has no field tagged %q", b.info.Type.Name(), tag)
	}
	fv := b.value.Field(f.Index)
	if v == nil {
		fv.Set(reflect.Zero(f.Type))
		return nil
	}

	rv := reflect.ValueOf(v)
	target := f.ValueType()
	switch {
	case rv.Type().AssignableTo(target):
	case convertible(rv.Type(), target):
		rv = rv.Convert(target)
	default:
		return errors.Errorf("cannot set field %q of type %s to %T", f.Name, f.Type, v)
	}

	if f.Type.Kind() == reflect.Pointer {
		p := reflect.New(target)
		p.Elem().Set(rv)
		fv.Set(p)
		return nil
	}
	fv.Set(rv)
	return nil
}

// PropertySet returns the property set of the bean type.
func (b *Bean) PropertySet() *expr.PropertySet {
	return b.info.PropertySet()
}

// Value is Get, named after the property box accessor.
func (b *Bean) Value(name string) (any, bool) {
	return b.Get(name)
}

// SetValue is Set, named after the property box accessor.
func (b *Bean) SetValue(name string, v any) error {
	return b.Set(name, v)
}

// convertible reports whether values of type from may be converted to type to
// without changing their meaning: between numeric kinds or between strings.
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	switch {
	case isNumeric(from.Kind()) && isNumeric(to.Kind()):
		return true
	case from.Kind() == reflect.String && to.Kind() == reflect.String:
		return true
	case from.Kind() == reflect.Bool && to.Kind() == reflect.Bool:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
