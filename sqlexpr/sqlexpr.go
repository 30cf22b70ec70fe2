// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqlexpr is the SQL vocabulary that model expressions resolve into.
// All nodes are immutable except ProjectionBuilder.
package sqlexpr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlvalue"
)

const (
	KindSQL         expr.Kind = "sql"
	KindToken       expr.Kind = "sql.token"
	KindLiteral     expr.Kind = "sql.literal"
	KindParameter   expr.Kind = "sql.parameter"
	KindPlaceholder expr.Kind = "sql.placeholder"
	KindFunction    expr.Kind = "sql.function"
	KindPrimaryKey  expr.Kind = "sql.primarykey"
	KindProjection  expr.Kind = "sql.projection"
	KindStatement   expr.Kind = "sql.statement"
	KindQuery       expr.Kind = "sql.statement.query"
)

// Token is raw SQL text.
type Token struct {
	SQL string
}

func (t Token) Kind() expr.Kind {
	return KindToken
}

func (t Token) Validate() error {
	if strings.TrimSpace(t.SQL) == "" {
		return fmt.Errorf("empty token")
	}
	return nil
}

func (t Token) String() string {
	return t.SQL
}

// Literal is a value rendered inline by the dialect literal serializer.
type Literal struct {
	Value    any
	Type     reflect.Type
	Temporal expr.TemporalType
}

func (l Literal) Kind() expr.Kind {
	return KindLiteral
}

func (l Literal) Validate() error {
	return nil
}

// Parameter is a value bound to a statement parameter.
type Parameter struct {
	Value    any
	Type     reflect.Type
	Temporal expr.TemporalType
	// Converter, if set, converts the model value before binding. Type is
	// then the converter data type.
	Converter expr.PropertyValueConverter
	// Serializer, if set, wraps the parameter marker, for example to cast it.
	Serializer func(marker string) string
	// Placeholder, if set, names the value, taken from each row of a batch,
	// that the parameter is bound to. Value is unused.
	Placeholder string
}

func (p Parameter) Kind() expr.Kind {
	if p.Placeholder != "" {
		return KindPlaceholder
	}
	return KindParameter
}

func (p Parameter) Validate() error {
	return nil
}

// Serialize returns the SQL for the parameter given the dialect marker.
func (p Parameter) Serialize(marker string) string {
	if p.Serializer != nil {
		return p.Serializer(marker)
	}
	return marker
}

// Bind converts value, the parameter value or the batch row value, into a
// driver argument.
func (p Parameter) Bind(binder sqlvalue.Binder, value any) (any, error) {
	if p.Converter != nil {
		v, err := p.Converter.FromModel(value)
		if err != nil {
			return nil, err
		}
		value = v
	}
	return binder.Bind(value, p.Type, p.Temporal)
}

// Cast returns a serializer casting the marker to sqlType.
func Cast(sqlType string) func(string) string {
	return func(marker string) string {
		return "CAST(" + marker + " AS " + sqlType + ")"
	}
}

// Placeholder returns a parameter bound, in a batch, to the value named name.
func Placeholder(name string, typ reflect.Type, temporal expr.TemporalType) Parameter {
	return Parameter{Placeholder: name, Type: typ, Temporal: temporal}
}

// Function is a SQL function with its argument serialization.
type Function struct {
	Name string
	// Serializer renders the call given its serialized arguments. If nil the
	// call renders as NAME(arg1, arg2, ...).
	Serializer func(args []string) string
}

func (f *Function) Kind() expr.Kind {
	return KindFunction
}

func (f *Function) Validate() error {
	if f.Name == "" && f.Serializer == nil {
		return fmt.Errorf("function without name")
	}
	return nil
}

// Serialize renders the function call.
func (f *Function) Serialize(args []string) string {
	if f.Serializer != nil {
		return f.Serializer(args)
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

// NewFunction returns a function rendered as NAME(args).
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// Keyword returns a function rendered as its name only, such as
// CURRENT_DATE.
func Keyword(name string) *Function {
	return &Function{Name: name, Serializer: func([]string) string { return name }}
}

// Template returns a function rendered by substituting its arguments, in
// order, for the "?" markers of format.
func Template(name, format string) *Function {
	return &Function{Name: name, Serializer: func(args []string) string {
		var sb strings.Builder
		i := 0
		for _, r := range format {
			if r == '?' && i < len(args) {
				sb.WriteString(args[i])
				i++
				continue
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}}
}

// PrimaryKey is the ordered set of key paths of a data target.
type PrimaryKey struct {
	Paths []expr.Path
}

func (pk PrimaryKey) Kind() expr.Kind {
	return KindPrimaryKey
}

func (pk PrimaryKey) Validate() error {
	if len(pk.Paths) == 0 {
		return fmt.Errorf("empty primary key")
	}
	return nil
}

// Names returns the key path names.
func (pk PrimaryKey) Names() []string {
	names := make([]string, len(pk.Paths))
	for i, p := range pk.Paths {
		names[i] = p.Name()
	}
	return names
}

// Statement is final SQL text, with dialect placeholders, and its ordered
// parameters.
type Statement struct {
	SQL    string
	Params []Parameter
}

func (s Statement) Kind() expr.Kind {
	return KindStatement
}

func (s Statement) Validate() error {
	if s.SQL == "" {
		return fmt.Errorf("empty statement")
	}
	return nil
}

func (s Statement) String() string {
	return s.SQL
}

// Args binds the statement parameters. Placeholders take their value from
// row, which may be nil for statements without placeholders.
func (s Statement) Args(binder sqlvalue.Binder, row func(name string) (any, bool)) ([]any, error) {
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		v := p.Value
		if p.Placeholder != "" {
			if row == nil {
				return nil, sqlerr.StatementConfiguration("no value for placeholder %q", p.Placeholder)
			}
			v, _ = row(p.Placeholder)
		}
		arg, err := p.Bind(binder, v)
		if err != nil {
			return nil, &sqlerr.StatementConfigurationError{Message: fmt.Sprintf("cannot bind parameter %d", i+1), Err: err}
		}
		args[i] = arg
	}
	return args, nil
}

// Batch reports whether the statement has placeholders bound per row.
func (s Statement) Batch() bool {
	for _, p := range s.Params {
		if p.Placeholder != "" {
			return true
		}
	}
	return false
}

// Query is a statement returning rows, converted by Converter. Labels names
// the result columns in select order.
type Query struct {
	Statement
	Labels    []string
	Converter ResultConverter
}

func (q Query) Kind() expr.Kind {
	return KindQuery
}

func (q Query) Validate() error {
	if q.Converter == nil {
		return fmt.Errorf("query without result converter")
	}
	return q.Statement.Validate()
}
