// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package compose

import (
	"reflect"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
	"github.com/canonical/sqlstore/sqlvalue"
)

var propertyBoxType = reflect.TypeOf((*expr.PropertyBox)(nil))

// PropertyBoxConverter converts rows selected by a property set projection
// into property boxes.
type PropertyBoxConverter struct {
	Set          *expr.PropertySet
	Selections   []sqlexpr.Selection
	Deserializer sqlvalue.Deserializer
}

func (c *PropertyBoxConverter) ConversionType() reflect.Type {
	return propertyBoxType
}

func (c *PropertyBoxConverter) Convert(row sqlexpr.Row) (any, error) {
	box := expr.NewPropertyBox(c.Set)
	for _, sel := range c.Selections {
		path, ok := sel.Expr.(expr.Path)
		if !ok {
			continue
		}
		raw, _ := row.Value(sel.Label)
		v, err := c.Deserializer.Deserialize(path, raw)
		if err != nil {
			return nil, err
		}
		if err := box.Set(path, v); err != nil {
			return nil, &sqlerr.QueryResultConversionError{Value: v, Target: path.Type().String(), Err: err}
		}
	}
	return box, nil
}

// ValueConverter converts rows selected by a single expression into values
// of the expression type.
type ValueConverter struct {
	Label        string
	Expr         expr.TypedExpression
	Deserializer sqlvalue.Deserializer
}

func (c *ValueConverter) ConversionType() reflect.Type {
	return c.Expr.Type()
}

func (c *ValueConverter) Convert(row sqlexpr.Row) (any, error) {
	raw, _ := row.Value(c.Label)
	return c.Deserializer.Deserialize(c.Expr, raw)
}
