// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Function names of the built-in functions.
const (
	FunctionCount            = "COUNT"
	FunctionAvg              = "AVG"
	FunctionMin              = "MIN"
	FunctionMax              = "MAX"
	FunctionSum              = "SUM"
	FunctionLower            = "LOWER"
	FunctionUpper            = "UPPER"
	FunctionCurrentDate      = "CURRENT_DATE"
	FunctionCurrentTimestamp = "CURRENT_TIMESTAMP"
	FunctionYear             = "YEAR"
	FunctionMonth            = "MONTH"
	FunctionDay              = "DAY"
	FunctionHour             = "HOUR"
)

// Function is a typed function call. Dialects map functions to SQL by name.
type Function interface {
	TypedExpression
	Name() string
	Args() []TypedExpression
}

// FunctionExpression is the generic Function implementation.
type FunctionExpression struct {
	name     string
	args     []TypedExpression
	typ      reflect.Type
	temporal TemporalType
	distinct bool
}

// NewFunction returns a call of name over args yielding values of type typ.
func NewFunction(name string, typ reflect.Type, args ...TypedExpression) *FunctionExpression {
	return &FunctionExpression{name: name, args: args, typ: typ, temporal: defaultTemporal(typ)}
}

// Kind is "function." followed by the lower case function name.
func (f *FunctionExpression) Kind() Kind {
	return KindFunction.Child(strings.ToLower(f.name))
}

func (f *FunctionExpression) Validate() error {
	if f.name == "" {
		return fmt.Errorf("function without name")
	}
	if f.typ == nil {
		return fmt.Errorf("function %s without result type", f.name)
	}
	for _, a := range f.args {
		if a == nil {
			return fmt.Errorf("function %s with nil argument", f.name)
		}
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *FunctionExpression) Name() string {
	return f.name
}

func (f *FunctionExpression) Args() []TypedExpression {
	return f.args
}

func (f *FunctionExpression) Type() reflect.Type {
	return f.typ
}

func (f *FunctionExpression) Temporal() TemporalType {
	return f.temporal
}

// Distinct reports whether the aggregate applies to distinct values only.
func (f *FunctionExpression) Distinct() bool {
	return f.distinct
}

var (
	int64Type   = reflect.TypeOf(int64(0))
	intType     = reflect.TypeOf(0)
	float64Type = reflect.TypeOf(float64(0))
	stringType  = reflect.TypeOf("")
)

// Count counts the non null values of e.
func Count(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionCount, int64Type, e)
}

// CountDistinct counts the distinct non null values of e.
func CountDistinct(e TypedExpression) *FunctionExpression {
	f := Count(e)
	f.distinct = true
	return f
}

// CountAll counts rows.
func CountAll() *FunctionExpression {
	return NewFunction(FunctionCount, int64Type)
}

func Avg(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionAvg, float64Type, e)
}

func Min(e TypedExpression) *FunctionExpression {
	f := NewFunction(FunctionMin, e.Type(), e)
	f.temporal = e.Temporal()
	return f
}

func Max(e TypedExpression) *FunctionExpression {
	f := NewFunction(FunctionMax, e.Type(), e)
	f.temporal = e.Temporal()
	return f
}

func Sum(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionSum, e.Type(), e)
}

func Lower(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionLower, stringType, e)
}

func Upper(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionUpper, stringType, e)
}

func CurrentDate() *FunctionExpression {
	f := NewFunction(FunctionCurrentDate, timeType)
	f.temporal = Date
	return f
}

func CurrentTimestamp() *FunctionExpression {
	return NewFunction(FunctionCurrentTimestamp, timeType)
}

func Year(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionYear, intType, e)
}

func Month(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionMonth, intType, e)
}

func Day(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionDay, intType, e)
}

func Hour(e TypedExpression) *FunctionExpression {
	return NewFunction(FunctionHour, intType, e)
}
