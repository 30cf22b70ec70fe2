// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// Projection describes what a query selects and the Go type of each result.
type Projection interface {
	Expression
	ResultType() reflect.Type
}

var propertyBoxType = reflect.TypeOf((*PropertyBox)(nil))

// PropertySet is an ordered set of paths. As a projection it selects every
// path and yields a *PropertyBox per row. Identifier paths, when declared,
// identify a value for write operations.
type PropertySet struct {
	paths       []Path
	identifiers []Path
	index       map[string]int
}

// NewPropertySet returns a set of the given paths, in order. Duplicate names
// keep the first path.
func NewPropertySet(paths ...Path) *PropertySet {
	s := &PropertySet{index: make(map[string]int, len(paths))}
	for _, p := range paths {
		if p == nil {
			continue
		}
		if _, ok := s.index[p.Name()]; ok {
			continue
		}
		s.index[p.Name()] = len(s.paths)
		s.paths = append(s.paths, p)
	}
	return s
}

// WithIdentifiers returns a copy of s declaring the named paths as
// identifiers. Names not in s are ignored.
func (s *PropertySet) WithIdentifiers(names ...string) *PropertySet {
	c := &PropertySet{paths: s.paths, index: s.index}
	for _, n := range names {
		if p, ok := s.Path(n); ok {
			c.identifiers = append(c.identifiers, p)
		}
	}
	return c
}

func (s *PropertySet) Kind() Kind {
	return KindPropertySet
}

func (s *PropertySet) Validate() error {
	if s == nil || len(s.paths) == 0 {
		return fmt.Errorf("empty property set")
	}
	for _, p := range s.paths {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *PropertySet) ResultType() reflect.Type {
	return propertyBoxType
}

// Paths returns the paths in order.
func (s *PropertySet) Paths() []Path {
	return s.paths
}

// Identifiers returns the declared identifier paths.
func (s *PropertySet) Identifiers() []Path {
	return s.identifiers
}

// Len returns the number of paths.
func (s *PropertySet) Len() int {
	return len(s.paths)
}

// Path returns the path with the given name.
func (s *PropertySet) Path(name string) (Path, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.paths[i], true
}

// Lookup returns the path whose name matches name ignoring case. Database
// metadata does not always preserve the case of column names.
func (s *PropertySet) Lookup(name string) (Path, bool) {
	if p, ok := s.Path(name); ok {
		return p, true
	}
	for _, p := range s.paths {
		if strings.EqualFold(p.Name(), name) {
			return p, true
		}
	}
	return nil, false
}

// Contains reports whether the set has a path with the given name.
func (s *PropertySet) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// ExpressionProjection selects a single expression, yielding values of its
// type.
type ExpressionProjection struct {
	Expr TypedExpression
}

// Select returns a projection of a single expression.
func Select(e TypedExpression) *ExpressionProjection {
	return &ExpressionProjection{Expr: e}
}

// CountAllProjection selects the number of rows as an int64.
func CountAllProjection() *ExpressionProjection {
	return Select(CountAll())
}

func (p *ExpressionProjection) Kind() Kind {
	return KindExpressionProjection
}

func (p *ExpressionProjection) Validate() error {
	if p.Expr == nil {
		return fmt.Errorf("projection without expression")
	}
	return p.Expr.Validate()
}

func (p *ExpressionProjection) ResultType() reflect.Type {
	return p.Expr.Type()
}
