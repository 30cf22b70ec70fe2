// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/canonical/sqlstore/expr"
)

// Field represents a single "db" tagged field of a struct type.
type Field struct {
	// Type is the field type.
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Tag is the column name given in the "db" tag.
	Tag string

	// Index of this field in the structure.
	Index int

	// OmitEmpty is true when "omitempty" is a property of the field's "db"
	// tag. Zero values of such fields are not written.
	OmitEmpty bool

	// Key is true when "key" is a property of the field's "db" tag. Key
	// fields identify a value for write operations.
	Key bool
}

// ValueType returns the type of the values held by the field, looking through
// pointers.
func (f Field) ValueType() reflect.Type {
	if f.Type.Kind() == reflect.Pointer {
		return f.Type.Elem()
	}
	return f.Type
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Fields holds the tagged fields in declaration order.
	Fields []Field

	// Relate tag names to fields.
	TagToField map[string]Field

	setOnce sync.Once
	set     *expr.PropertySet
}

// PropertySet returns the set of paths named after the field tags, typed
// after the field value types, with the key fields as identifiers.
func (info *Info) PropertySet() *expr.PropertySet {
	info.setOnce.Do(func() {
		paths := make([]expr.Path, len(info.Fields))
		for i, f := range info.Fields {
			paths[i] = expr.NewPath(f.Tag, f.ValueType())
		}
		info.set = expr.NewPropertySet(paths...).WithIdentifiers(info.Keys()...)
	})
	return info.set
}

// Keys returns the tags of the key fields.
func (info *Info) Keys() []string {
	var keys []string
	for _, f := range info.Fields {
		if f.Key {
			keys = append(keys, f.Tag)
		}
	}
	return keys
}

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo returns the Info of the struct type of value, or of the struct
// it points to, generating and caching as required.
func GetTypeInfo(value any) (*Info, error) {
	if value == (any)(nil) {
		return nil, errors.New("cannot reflect nil value")
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return TypeInfo(t)
}

// TypeInfo returns the Info of the struct type t.
func TypeInfo(t reflect.Type) (*Info, error) {
	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	if cached, ok := cache[t]; ok {
		info = cached
	} else {
		cache[t] = info
	}
	cacheMutex.Unlock()

	return info, nil
}

// generate produces the reflection information of the struct type typ.
func generate(typ reflect.Type) (*Info, error) {
	if typ.Kind() != reflect.Struct {
		return nil, errors.Errorf("can only reflect struct type, got %s", typ.Kind())
	}

	info := Info{
		TagToField: make(map[string]Field),
		Type:       typ,
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		// Fields without a "db" tag are not persisted.
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if !field.IsExported() {
			return nil, errors.Errorf("field %q of %s is not exported", field.Name, typ.Name())
		}
		name, opts, err := parseTag(tag)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q of %s", field.Name, typ.Name())
		}
		if _, ok := info.TagToField[name]; ok {
			return nil, errors.Errorf("%s has more than one field tagged %q", typ.Name(), name)
		}
		f := Field{
			Name:      field.Name,
			Tag:       name,
			Index:     i,
			OmitEmpty: opts.omitEmpty,
			Key:       opts.key,
			Type:      field.Type,
		}
		info.TagToField[name] = f
		info.Fields = append(info.Fields, f)
	}

	if len(info.Fields) == 0 {
		return nil, errors.Errorf("%s has no fields with a \"db\" tag", typ.Name())
	}

	return &info, nil
}

var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

type tagOptions struct {
	omitEmpty bool
	key       bool
}

// parseTag parses the input tag string and returns its name and options.
func parseTag(tag string) (string, tagOptions, error) {
	var opts tagOptions
	parts := strings.Split(tag, ",")

	name := parts[0]
	if len(name) == 0 {
		return "", opts, errors.New("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return "", opts, errors.Errorf("invalid column name %q in 'db' tag", name)
	}

	for _, o := range parts[1:] {
		switch strings.ToLower(strings.TrimSpace(o)) {
		case "omitempty":
			opts.omitEmpty = true
		case "key":
			opts.key = true
		default:
			return "", opts, errors.Errorf("unexpected tag value %q", o)
		}
	}

	return name, opts, nil
}
