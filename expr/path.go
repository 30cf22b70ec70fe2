// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"time"
)

var timeZero time.Time

// Path is a named, typed property of a data target, usually a column.
type Path interface {
	TypedExpression
	// Name is the property name, used as the column name.
	Name() string
	// Parent is the name of the data target the path belongs to, or "" when
	// the path is unqualified.
	Parent() string
	// Converter returns the converter between model and database values, or
	// nil.
	Converter() PropertyValueConverter
}

// BasePath is a Path whose type is only known at runtime.
type BasePath struct {
	name      string
	parent    string
	typ       reflect.Type
	temporal  TemporalType
	converter PropertyValueConverter
}

// NewPath returns a path with the given name and value type. A nil type
// yields values of any type.
func NewPath(name string, typ reflect.Type) *BasePath {
	if typ == nil {
		typ = anyType
	}
	return &BasePath{name: name, typ: typ, temporal: defaultTemporal(typ)}
}

func (p *BasePath) Kind() Kind {
	return KindPath
}

func (p *BasePath) Validate() error {
	if p == nil || p.name == "" {
		return fmt.Errorf("path without name")
	}
	if err := checkText(p.name); err != nil {
		return err
	}
	if err := checkText(p.parent); err != nil {
		return err
	}
	if p.converter != nil && p.converter.ModelType() != p.typ && p.typ != anyType {
		return fmt.Errorf("path %q of type %s has a converter for %s", p.name, p.typ, p.converter.ModelType())
	}
	return nil
}

func (p *BasePath) Name() string {
	return p.name
}

func (p *BasePath) Parent() string {
	return p.parent
}

func (p *BasePath) Type() reflect.Type {
	return p.typ
}

func (p *BasePath) Temporal() TemporalType {
	return p.temporal
}

func (p *BasePath) Converter() PropertyValueConverter {
	return p.converter
}

func (p *BasePath) String() string {
	if p.parent != "" {
		return p.parent + "." + p.name
	}
	return p.name
}

// Of returns a copy of p qualified by the given data target.
func (p *BasePath) Of(parent string) *BasePath {
	c := *p
	c.parent = parent
	return &c
}

// WithTemporal returns a copy of p with the given temporal qualifier.
func (p *BasePath) WithTemporal(t TemporalType) *BasePath {
	c := *p
	c.temporal = t
	return &c
}

// WithConverter returns a copy of p converting values with conv.
func (p *BasePath) WithConverter(conv PropertyValueConverter) *BasePath {
	c := *p
	c.converter = conv
	return &c
}

// Property is a Path with a compile time value type, offering typed
// predicate and sort helpers.
//
//	var name = expr.NewProperty[string]("name")
//	q.Filter(name.EQ("Fred")).Sort(name.Asc())
type Property[T any] struct {
	BasePath
}

// NewProperty returns a property named name holding values of type T.
func NewProperty[T any](name string) *Property[T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	return &Property[T]{BasePath: BasePath{name: name, typ: typ, temporal: defaultTemporal(typ)}}
}

// Of returns a copy of p qualified by the given data target.
func (p *Property[T]) Of(parent string) *Property[T] {
	c := *p
	c.parent = parent
	return &c
}

// WithTemporal returns a copy of p with the given temporal qualifier.
func (p *Property[T]) WithTemporal(t TemporalType) *Property[T] {
	c := *p
	c.temporal = t
	return &c
}

// WithConverter returns a copy of p converting values with conv.
func (p *Property[T]) WithConverter(conv PropertyValueConverter) *Property[T] {
	c := *p
	c.converter = conv
	return &c
}

func (p *Property[T]) EQ(v T) Filter {
	return NewOperationFilter(p, EQ, ValueOf(p, v))
}

func (p *Property[T]) NEQ(v T) Filter {
	return NewOperationFilter(p, NEQ, ValueOf(p, v))
}

func (p *Property[T]) LT(v T) Filter {
	return NewOperationFilter(p, LT, ValueOf(p, v))
}

func (p *Property[T]) LTE(v T) Filter {
	return NewOperationFilter(p, LTE, ValueOf(p, v))
}

func (p *Property[T]) GT(v T) Filter {
	return NewOperationFilter(p, GT, ValueOf(p, v))
}

func (p *Property[T]) GTE(v T) Filter {
	return NewOperationFilter(p, GTE, ValueOf(p, v))
}

func (p *Property[T]) In(vs ...T) Filter {
	return NewOperationFilter(p, In, collectionOf(p, vs))
}

func (p *Property[T]) NotIn(vs ...T) Filter {
	return NewOperationFilter(p, NotIn, collectionOf(p, vs))
}

func (p *Property[T]) IsNull() Filter {
	return NewOperationFilter(p, IsNull, nil)
}

func (p *Property[T]) IsNotNull() Filter {
	return NewOperationFilter(p, IsNotNull, nil)
}

func (p *Property[T]) Between(from, to T) Filter {
	return &BetweenFilter{Expr: p, From: ValueOf(p, from), To: ValueOf(p, to)}
}

func (p *Property[T]) Contains(s string, ignoreCase bool) Filter {
	return &StringMatchFilter{Expr: p, Value: s, Mode: MatchContains, IgnoreCase: ignoreCase}
}

func (p *Property[T]) StartsWith(s string, ignoreCase bool) Filter {
	return &StringMatchFilter{Expr: p, Value: s, Mode: MatchStartsWith, IgnoreCase: ignoreCase}
}

func (p *Property[T]) EndsWith(s string, ignoreCase bool) Filter {
	return &StringMatchFilter{Expr: p, Value: s, Mode: MatchEndsWith, IgnoreCase: ignoreCase}
}

func (p *Property[T]) Asc() Sort {
	return Asc(p)
}

func (p *Property[T]) Desc() Sort {
	return Desc(p)
}

func collectionOf[T any](p Path, vs []T) *CollectionExpression {
	values := make([]any, len(vs))
	for i, v := range vs {
		values[i] = v
	}
	return &CollectionExpression{Values: values, typ: p.Type(), temporal: p.Temporal(), converter: p.Converter()}
}
