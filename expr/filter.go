// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"

	"github.com/canonical/sqlstore/internal/rawsql"
)

// Filter is a boolean predicate. Its kind must be assignable to KindFilter.
// Custom filters implement Filter and register a resolver for their kind.
type Filter interface {
	Expression
}

// Operator is a comparison operator of an OperationFilter.
type Operator int

const (
	EQ Operator = iota
	NEQ
	LT
	LTE
	GT
	GTE
	In
	NotIn
	IsNull
	IsNotNull
)

var operatorNames = [...]string{"EQ", "NEQ", "LT", "LTE", "GT", "GTE", "IN", "NIN", "NULL", "NOT_NULL"}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Unary reports whether the operator takes no right operand.
func (o Operator) Unary() bool {
	return o == IsNull || o == IsNotNull
}

// OperationFilter compares an expression with another using Op.
type OperationFilter struct {
	Left  TypedExpression
	Op    Operator
	Right TypedExpression
}

// NewOperationFilter returns a filter comparing left and right.
func NewOperationFilter(left TypedExpression, op Operator, right TypedExpression) *OperationFilter {
	return &OperationFilter{Left: left, Op: op, Right: right}
}

func (f *OperationFilter) Kind() Kind {
	return KindOperationFilter
}

func (f *OperationFilter) Validate() error {
	if f.Left == nil {
		return fmt.Errorf("%s filter without left operand", f.Op)
	}
	if err := f.Left.Validate(); err != nil {
		return err
	}
	if f.Op.Unary() {
		return nil
	}
	if f.Right == nil {
		return fmt.Errorf("%s filter without right operand", f.Op)
	}
	if f.Op == In || f.Op == NotIn {
		if _, ok := f.Right.(*CollectionExpression); !ok && !f.Right.Kind().AssignableTo(KindCollection) {
			return fmt.Errorf("%s filter right operand must be a collection", f.Op)
		}
	}
	return f.Right.Validate()
}

// BetweenFilter checks that an expression lies within [From, To].
type BetweenFilter struct {
	Expr TypedExpression
	From TypedExpression
	To   TypedExpression
}

func (f *BetweenFilter) Kind() Kind {
	return KindBetweenFilter
}

func (f *BetweenFilter) Validate() error {
	if f.Expr == nil || f.From == nil || f.To == nil {
		return fmt.Errorf("between filter with missing operand")
	}
	for _, e := range []Expression{f.Expr, f.From, f.To} {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MatchMode selects where the value of a StringMatchFilter must occur.
type MatchMode int

const (
	MatchContains MatchMode = iota
	MatchStartsWith
	MatchEndsWith
)

// StringMatchFilter is a LIKE predicate. Value is matched literally: wildcard
// characters it contains are escaped.
type StringMatchFilter struct {
	Expr       TypedExpression
	Value      string
	Mode       MatchMode
	IgnoreCase bool
}

func (f *StringMatchFilter) Kind() Kind {
	return KindStringMatchFilter
}

func (f *StringMatchFilter) Validate() error {
	if f.Expr == nil {
		return fmt.Errorf("string match filter without expression")
	}
	if f.Expr.Type().Kind() != reflect.String && f.Expr.Type() != anyType {
		return fmt.Errorf("string match filter on non string expression of type %s", f.Expr.Type())
	}
	return f.Expr.Validate()
}

// AndFilter is the conjunction of its filters.
type AndFilter struct {
	Filters []Filter
}

func (f *AndFilter) Kind() Kind {
	return KindAndFilter
}

func (f *AndFilter) Validate() error {
	return validateAll("and", f.Filters)
}

// OrFilter is the disjunction of its filters.
type OrFilter struct {
	Filters []Filter
}

func (f *OrFilter) Kind() Kind {
	return KindOrFilter
}

func (f *OrFilter) Validate() error {
	return validateAll("or", f.Filters)
}

// NotFilter negates a filter.
type NotFilter struct {
	Filter Filter
}

func (f *NotFilter) Kind() Kind {
	return KindNotFilter
}

func (f *NotFilter) Validate() error {
	if f.Filter == nil {
		return fmt.Errorf("not filter without filter")
	}
	return f.Filter.Validate()
}

// WhereFilter is a raw SQL predicate. Positional "?" markers in SQL are bound
// to Params in order.
type WhereFilter struct {
	SQL    string
	Params []any
}

// Where returns a raw SQL filter.
func Where(sql string, params ...any) *WhereFilter {
	return &WhereFilter{SQL: sql, Params: params}
}

func (f *WhereFilter) Kind() Kind {
	return KindWhereFilter
}

func (f *WhereFilter) Validate() error {
	if f.SQL == "" {
		return fmt.Errorf("empty where filter")
	}
	if err := checkText(f.SQL); err != nil {
		return err
	}
	n, err := rawsql.CountParameters(f.SQL)
	if err != nil {
		return err
	}
	if n != len(f.Params) {
		return fmt.Errorf("where filter has %d parameter markers but %d values", n, len(f.Params))
	}
	return nil
}

// And combines filters with AND, flattening nested conjunctions. Nil filters
// are ignored. It returns nil when there is nothing to combine.
func And(filters ...Filter) Filter {
	var fs []Filter
	for _, f := range filters {
		switch f := f.(type) {
		case nil:
		case *AndFilter:
			fs = append(fs, f.Filters...)
		default:
			fs = append(fs, f)
		}
	}
	switch len(fs) {
	case 0:
		return nil
	case 1:
		return fs[0]
	}
	return &AndFilter{Filters: fs}
}

// Or combines filters with OR.
func Or(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return &OrFilter{Filters: filters}
}

// Not negates f.
func Not(f Filter) Filter {
	return &NotFilter{Filter: f}
}

func validateAll(op string, filters []Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%s filter without filters", op)
	}
	for _, f := range filters {
		if f == nil {
			return fmt.Errorf("nil filter in %s filter", op)
		}
		if !f.Kind().AssignableTo(KindFilter) {
			return fmt.Errorf("%s is not a filter", f.Kind())
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// checkText returns an error if s, a name or raw SQL, holds a control
// character other than white space. Composition reserves them.
func checkText(s string) error {
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' || r == 0x7f {
			return fmt.Errorf("control character %U in %q", r, s)
		}
	}
	return nil
}
