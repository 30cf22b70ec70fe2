// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package compose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/canonical/sqlstore/dialect"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

// maxDepth bounds nested resolution, catching resolvers that resolve an
// expression into itself.
const maxDepth = 100

// markerDelim delimits parameter markers in composed SQL. Expressions reject
// control characters in names and raw SQL, and serialized literals holding it
// are refused, so it only appears in markers. Custom resolvers must not
// produce it.
const markerDelim = '\x1f'

// state is shared by a context and its children.
type state struct {
	params   []sqlexpr.Parameter
	aliasSeq int
	depth    int
}

// Context holds the state of the composition of a single statement: the
// dialect, the resolvers, the parameters and the table aliases. It is not safe
// for concurrent use.
type Context struct {
	dialect dialect.Dialect
	layers  []*Registry
	parent  *Context
	state   *state
	// aliases maps data target names to their alias in this scope.
	aliases map[string]string
	// main is the alias unqualified paths refer to, if any.
	main string
}

// NewContext returns a context for d. Resolvers are looked up in layers, in
// order, and then in the built-in registry.
func NewContext(d dialect.Dialect, layers ...*Registry) *Context {
	var ls []*Registry
	for _, l := range layers {
		if l.Len() > 0 {
			ls = append(ls, l)
		}
	}
	ls = append(ls, Builtins())
	return &Context{
		dialect: d,
		layers:  ls,
		state:   &state{},
		aliases: map[string]string{},
	}
}

// WithResolvers returns a context sharing the state of c in which rs take
// precedence over every other resolver.
func (c *Context) WithResolvers(rs ...Resolver) *Context {
	if len(rs) == 0 {
		return c
	}
	nc := *c
	nc.layers = append([]*Registry{NewRegistry(rs...)}, c.layers...)
	return &nc
}

// Child returns a nested scope, such as a sub-query, sharing the parameters
// and the alias sequence of c. Aliases of c remain visible.
func (c *Context) Child() *Context {
	return &Context{
		dialect: c.dialect,
		layers:  c.layers,
		parent:  c,
		state:   c.state,
		aliases: map[string]string{},
	}
}

// Dialect returns the context dialect.
func (c *Context) Dialect() dialect.Dialect {
	return c.dialect
}

// Resolve resolves e into an expression of kind kind. An expression whose
// kind is already assignable to kind is returned as is. It returns false if
// no resolver handles e.
func (c *Context) Resolve(e expr.Expression, kind expr.Kind) (expr.Expression, bool, error) {
	if e == nil {
		return nil, false, sqlerr.InvalidExpression("<nil>", "missing expression")
	}
	if err := e.Validate(); err != nil {
		return nil, false, &sqlerr.InvalidExpressionError{Expression: string(e.Kind()), Err: err}
	}
	if e.Kind().AssignableTo(kind) {
		return e, true, nil
	}

	c.state.depth++
	defer func() { c.state.depth-- }()
	if c.state.depth > maxDepth {
		return nil, false, sqlerr.InvalidExpression(string(e.Kind()), "resolution of %s too deep", e.Kind())
	}

	for _, l := range c.layers {
		for _, r := range l.candidates(e.Kind(), kind) {
			res, ok, err := r.Resolve(c, e)
			if err != nil {
				return nil, false, err
			}
			if ok && res != nil {
				return res, true, nil
			}
		}
	}
	return nil, false, nil
}

// ResolveOrFail is like Resolve but returns an InvalidExpressionError if
// nothing resolves e.
func (c *Context) ResolveOrFail(e expr.Expression, kind expr.Kind) (expr.Expression, error) {
	res, ok, err := c.Resolve(e, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sqlerr.InvalidExpression(string(e.Kind()), "cannot resolve %s into %s", e.Kind(), kind)
	}
	return res, nil
}

// ResolveAs resolves e into kind and asserts the result is a T.
func ResolveAs[T expr.Expression](c *Context, e expr.Expression, kind expr.Kind) (T, error) {
	var zero T
	res, err := c.ResolveOrFail(e, kind)
	if err != nil {
		return zero, err
	}
	t, ok := res.(T)
	if !ok {
		return zero, sqlerr.InvalidExpression(string(e.Kind()), "%s resolved into unexpected %T", e.Kind(), res)
	}
	return t, nil
}

// SQL resolves e into SQL text.
func (c *Context) SQL(e expr.Expression) (string, error) {
	tok, err := ResolveAs[sqlexpr.Token](c, e, sqlexpr.KindToken)
	if err != nil {
		return "", err
	}
	return tok.SQL, nil
}

// AddParameter registers p and returns the marker standing for it in the
// composed SQL until Prepare.
func (c *Context) AddParameter(p sqlexpr.Parameter) string {
	c.state.params = append(c.state.params, p)
	return string(markerDelim) + strconv.Itoa(len(c.state.params)-1) + string(markerDelim)
}

// Alias returns the alias of the data target name, generating one if the
// target has none yet in this scope.
func (c *Context) Alias(name string) string {
	if a, ok := c.aliases[name]; ok {
		return a
	}
	a := "t" + strconv.Itoa(c.state.aliasSeq)
	c.state.aliasSeq++
	c.aliases[name] = a
	return a
}

// LookupAlias returns the alias of the data target name, looking in the
// enclosing scopes too.
func (c *Context) LookupAlias(name string) (string, bool) {
	for s := c; s != nil; s = s.parent {
		if a, ok := s.aliases[name]; ok {
			return a, true
		}
	}
	return "", false
}

// SetMainAlias makes unqualified paths refer to alias.
func (c *Context) SetMainAlias(alias string) {
	c.main = alias
}

// MainAlias returns the alias unqualified paths refer to, if any.
func (c *Context) MainAlias() (string, bool) {
	for s := c; s != nil; s = s.parent {
		if s.main != "" {
			return s.main, true
		}
	}
	return "", false
}

// Prepare replaces the parameter markers of sql with the dialect
// placeholders, numbered from left to right, and returns the statement with
// its parameters in placeholder order.
func (c *Context) Prepare(sql string) (sqlexpr.Statement, error) {
	var sb strings.Builder
	var params []sqlexpr.Parameter
	for {
		start := strings.IndexByte(sql, markerDelim)
		if start < 0 {
			sb.WriteString(sql)
			break
		}
		end := strings.IndexByte(sql[start+1:], markerDelim)
		if end < 0 {
			return sqlexpr.Statement{}, fmt.Errorf("internal error: unterminated parameter marker")
		}
		end += start + 1
		n, err := strconv.Atoi(sql[start+1 : end])
		if err != nil || n < 0 || n >= len(c.state.params) {
			return sqlexpr.Statement{}, fmt.Errorf("internal error: invalid parameter marker %q", sql[start+1:end])
		}
		p := c.state.params[n]
		params = append(params, p)
		sb.WriteString(sql[:start])
		sb.WriteString(p.Serialize(c.dialect.Placeholder(len(params))))
		sql = sql[end+1:]
	}
	return sqlexpr.Statement{SQL: sb.String(), Params: params}, nil
}
