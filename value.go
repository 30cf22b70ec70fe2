// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"github.com/canonical/sqlstore/compose"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/internal/typeinfo"
	"github.com/canonical/sqlstore/sqlerr"
)

// Value is the value of a write operation: a value for each path of a
// property set. It is implemented by *expr.PropertyBox. Pointers to structs
// with "db" tagged fields are adapted to it, the tags naming the paths and
// the fields tagged "key" being the identifiers.
type Value interface {
	PropertySet() *expr.PropertySet
	// Value returns the value of the named path, nil for NULL, and whether
	// the value holds one.
	Value(name string) (any, bool)
	SetValue(name string, v any) error
}

// valueOf adapts v to a Value.
func valueOf(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, sqlerr.StatementConfiguration("nil value")
	case Value:
		if v.PropertySet() == nil {
			return nil, sqlerr.StatementConfiguration("value without property set")
		}
		return v, nil
	}
	b, err := typeinfo.NewBean(v)
	if err != nil {
		return nil, sqlerr.StatementConfiguration("cannot use %T as value: %v", v, err)
	}
	return b, nil
}

// assignments returns the assignments of the values of v, skipping NULL
// values unless includeNulls is set and the paths for which skip returns true.
func assignments(v Value, includeNulls bool, skip func(name string) bool) []compose.Assignment {
	var as []compose.Assignment
	for _, p := range v.PropertySet().Paths() {
		if skip != nil && skip(p.Name()) {
			continue
		}
		val, ok := v.Value(p.Name())
		if !ok || (val == nil && !includeNulls) {
			continue
		}
		as = append(as, compose.Assign(p, val))
	}
	return as
}
