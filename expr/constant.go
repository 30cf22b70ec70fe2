// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
)

// ConstantExpression is a single value, bound as a statement parameter.
type ConstantExpression struct {
	Value     any
	typ       reflect.Type
	temporal  TemporalType
	converter PropertyValueConverter
	inline    bool
}

// Constant returns a constant holding v, typed after the dynamic type of v.
func Constant(v any) *ConstantExpression {
	typ := anyType
	if v != nil {
		typ = reflect.TypeOf(v)
	}
	return &ConstantExpression{Value: v, typ: typ, temporal: defaultTemporal(typ)}
}

// Literal returns a constant rendered inline in the SQL text.
func Literal(v any) *ConstantExpression {
	c := Constant(v)
	c.inline = true
	return c
}

// ValueOf returns a constant compared against, or assigned to, the path p.
// It takes the type, temporal qualifier and converter of p.
func ValueOf(p TypedExpression, v any) *ConstantExpression {
	c := &ConstantExpression{Value: v, typ: p.Type(), temporal: p.Temporal()}
	if path, ok := p.(Path); ok {
		c.converter = path.Converter()
	}
	return c
}

func (c *ConstantExpression) Kind() Kind {
	if c.inline {
		return KindLiteral
	}
	return KindConstant
}

func (c *ConstantExpression) Validate() error {
	if c == nil {
		return fmt.Errorf("nil constant")
	}
	return nil
}

func (c *ConstantExpression) Type() reflect.Type {
	return c.typ
}

func (c *ConstantExpression) Temporal() TemporalType {
	return c.temporal
}

// Converter returns the converter applied to the value before binding.
func (c *ConstantExpression) Converter() PropertyValueConverter {
	return c.converter
}

// WithTemporal returns a copy of c with the given temporal qualifier.
func (c *ConstantExpression) WithTemporal(t TemporalType) *ConstantExpression {
	cc := *c
	cc.temporal = t
	return &cc
}

// CollectionExpression is a list of values, rendered as "(?, ?, ...)".
type CollectionExpression struct {
	Values    []any
	typ       reflect.Type
	temporal  TemporalType
	converter PropertyValueConverter
}

// CollectionConstant returns a collection of values. The element type is taken
// from the first non nil value.
func CollectionConstant(vs ...any) *CollectionExpression {
	c := &CollectionExpression{Values: vs, typ: anyType}
	for _, v := range vs {
		if v != nil {
			c.typ = reflect.TypeOf(v)
			break
		}
	}
	c.temporal = defaultTemporal(c.typ)
	return c
}

func (c *CollectionExpression) Kind() Kind {
	return KindCollection
}

func (c *CollectionExpression) Validate() error {
	if c == nil || len(c.Values) == 0 {
		return fmt.Errorf("empty collection")
	}
	return nil
}

func (c *CollectionExpression) Type() reflect.Type {
	return c.typ
}

func (c *CollectionExpression) Temporal() TemporalType {
	return c.temporal
}

func (c *CollectionExpression) Converter() PropertyValueConverter {
	return c.converter
}

// Element returns the i-th value as a constant of the collection type.
func (c *CollectionExpression) Element(i int) *ConstantExpression {
	return &ConstantExpression{Value: c.Values[i], typ: c.typ, temporal: c.temporal, converter: c.converter}
}
