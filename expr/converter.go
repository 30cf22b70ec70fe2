// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
)

// PropertyValueConverter converts path values between their model type and
// the type stored in the database.
type PropertyValueConverter interface {
	// ToModel converts a database value, already of DataType, to ModelType.
	ToModel(v any) (any, error)
	// FromModel converts a model value to DataType.
	FromModel(v any) (any, error)
	ModelType() reflect.Type
	DataType() reflect.Type
}

type numericBoolean struct{}

// NumericBoolean stores bool values as 0 or 1 integers.
func NumericBoolean() PropertyValueConverter {
	return numericBoolean{}
}

func (numericBoolean) ToModel(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return v != 0, nil
	}
	return nil, fmt.Errorf("cannot convert %T to bool", v)
}

func (numericBoolean) FromModel(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("cannot convert %T to numeric boolean", v)
}

func (numericBoolean) ModelType() reflect.Type {
	return reflect.TypeOf(false)
}

func (numericBoolean) DataType() reflect.Type {
	return int64Type
}

type enumByName[E comparable] struct {
	byName map[string]E
}

// EnumByName stores enumeration values by their name, as given by
// fmt.Sprint. The accepted values are listed explicitly.
func EnumByName[E comparable](values ...E) PropertyValueConverter {
	c := enumByName[E]{byName: make(map[string]E, len(values))}
	for _, v := range values {
		c.byName[fmt.Sprint(v)] = v
	}
	return c
}

func (c enumByName[E]) ToModel(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to %s", v, c.ModelType())
	}
	e, ok := c.byName[s]
	if !ok {
		return nil, fmt.Errorf("no %s value named %q", c.ModelType(), s)
	}
	return e, nil
}

func (c enumByName[E]) FromModel(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	e, ok := v.(E)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to %s name", v, c.ModelType())
	}
	return fmt.Sprint(e), nil
}

func (c enumByName[E]) ModelType() reflect.Type {
	return reflect.TypeOf((*E)(nil)).Elem()
}

func (c enumByName[E]) DataType() reflect.Type {
	return stringType
}
