// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"reflect"
	"strings"
)

// Kind is a hierarchical, dot separated expression type tag. A kind "a.b" is
// assignable to "a", so resolvers registered for "filter" accept every
// "filter.*" expression.
type Kind string

// AssignableTo reports whether k equals other or is nested below it.
// Every kind is assignable to the empty kind.
func (k Kind) AssignableTo(other Kind) bool {
	if other == "" || k == other {
		return true
	}
	return strings.HasPrefix(string(k), string(other)+".")
}

// Child returns the kind nested below k with the given name.
func (k Kind) Child(name string) Kind {
	if k == "" {
		return Kind(name)
	}
	return k + "." + Kind(name)
}

const (
	KindPath     Kind = "path"
	KindConstant Kind = "constant"
	// KindCollection is a constant holding several values, rendered as a
	// parenthesized list.
	KindCollection Kind = "constant.collection"
	// KindLiteral is a constant rendered inline instead of being bound.
	KindLiteral Kind = "constant.literal"

	KindFilter            Kind = "filter"
	KindOperationFilter   Kind = "filter.operation"
	KindBetweenFilter     Kind = "filter.between"
	KindStringMatchFilter Kind = "filter.stringmatch"
	KindAndFilter         Kind = "filter.and"
	KindOrFilter          Kind = "filter.or"
	KindNotFilter         Kind = "filter.not"
	KindWhereFilter       Kind = "filter.where"

	KindSort          Kind = "sort"
	KindPathSort      Kind = "sort.path"
	KindCompositeSort Kind = "sort.composite"
	KindOrderBySort   Kind = "sort.orderby"

	KindFunction Kind = "function"

	KindProjection           Kind = "projection"
	KindPropertySet          Kind = "projection.propertyset"
	KindExpressionProjection Kind = "projection.expression"

	KindTarget Kind = "target"
)

// Expression is the root of every query and persistence model node.
type Expression interface {
	// Kind returns the type tag used to select resolvers.
	Kind() Kind
	// Validate checks the expression is well formed.
	Validate() error
}

// TemporalType qualifies time values.
type TemporalType int

const (
	TemporalNone TemporalType = iota
	Date
	Time
	DateTime
)

func (t TemporalType) String() string {
	switch t {
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case DateTime:
		return "DATE_TIME"
	}
	return "NONE"
}

// TypedExpression is an expression carrying the Go type of the values it
// yields.
type TypedExpression interface {
	Expression
	Type() reflect.Type
	Temporal() TemporalType
}

var (
	anyType  = reflect.TypeOf((*any)(nil)).Elem()
	timeType = reflect.TypeOf(timeZero)
)

func defaultTemporal(t reflect.Type) TemporalType {
	if t == timeType {
		return DateTime
	}
	return TemporalNone
}
