// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package compose

import (
	"reflect"
	"strings"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/internal/rawsql"
	"github.com/canonical/sqlstore/sqlerr"
	"github.com/canonical/sqlstore/sqlexpr"
)

var stringType = reflect.TypeOf("")

func builtinResolvers() []Resolver {
	return []Resolver{
		Typed(expr.KindPath, sqlexpr.KindToken, DefaultPriority, resolvePath),
		Typed(expr.KindConstant, sqlexpr.KindParameter, DefaultPriority, resolveConstantParameter),
		Typed(expr.KindConstant, sqlexpr.KindToken, DefaultPriority, resolveConstant),
		Typed(expr.KindCollection, sqlexpr.KindToken, DefaultPriority, resolveCollection),
		Typed(sqlexpr.KindParameter, sqlexpr.KindToken, DefaultPriority, resolveParameter),
		Typed(sqlexpr.KindPlaceholder, sqlexpr.KindToken, DefaultPriority, resolveParameter),
		Typed(sqlexpr.KindLiteral, sqlexpr.KindToken, DefaultPriority, resolveLiteral),
		Typed(expr.KindFunction, sqlexpr.KindFunction, DefaultPriority, resolveDialectFunction),
		Typed(expr.KindFunction, sqlexpr.KindToken, DefaultPriority, resolveFunction),
		Typed(expr.KindOperationFilter, sqlexpr.KindToken, DefaultPriority, resolveOperationFilter),
		Typed(expr.KindBetweenFilter, sqlexpr.KindToken, DefaultPriority, resolveBetweenFilter),
		Typed(expr.KindStringMatchFilter, sqlexpr.KindToken, DefaultPriority, resolveStringMatchFilter),
		Typed(expr.KindAndFilter, sqlexpr.KindToken, DefaultPriority, resolveAndFilter),
		Typed(expr.KindOrFilter, sqlexpr.KindToken, DefaultPriority, resolveOrFilter),
		Typed(expr.KindNotFilter, sqlexpr.KindToken, DefaultPriority, resolveNotFilter),
		Typed(expr.KindWhereFilter, sqlexpr.KindToken, DefaultPriority, resolveWhereFilter),
		Typed(expr.KindPathSort, sqlexpr.KindToken, DefaultPriority, resolvePathSort),
		Typed(expr.KindCompositeSort, sqlexpr.KindToken, DefaultPriority, resolveCompositeSort),
		Typed(expr.KindOrderBySort, sqlexpr.KindToken, DefaultPriority, resolveOrderBySort),
		Typed(expr.KindPropertySet, sqlexpr.KindProjection, DefaultPriority, resolvePropertySet),
		Typed(expr.KindExpressionProjection, sqlexpr.KindProjection, DefaultPriority, resolveExpressionProjection),
		Typed(expr.KindTarget, sqlexpr.KindToken, DefaultPriority, resolveTarget),
		Typed(KindQueryDefinition, sqlexpr.KindQuery, DefaultPriority, resolveQuery),
		Typed(KindInsertDefinition, sqlexpr.KindStatement, DefaultPriority, resolveInsert),
		Typed(KindUpdateDefinition, sqlexpr.KindStatement, DefaultPriority, resolveUpdate),
		Typed(KindDeleteDefinition, sqlexpr.KindStatement, DefaultPriority, resolveDelete),
		Typed(KindBulkInsertDefinition, sqlexpr.KindStatement, DefaultPriority, resolveBulkInsert),
	}
}

func token(sql string) sqlexpr.Token {
	return sqlexpr.Token{SQL: sql}
}

// resolvePath qualifies the column with the alias of its data target when the
// statement uses aliases.
func resolvePath(ctx *Context, p expr.Path) (sqlexpr.Token, bool, error) {
	col := ctx.dialect.ColumnName(p.Name())
	if parent := p.Parent(); parent != "" {
		if a, ok := ctx.LookupAlias(parent); ok {
			return token(a + "." + col), true, nil
		}
		return token(ctx.dialect.TableName(parent) + "." + col), true, nil
	}
	if a, ok := ctx.MainAlias(); ok {
		return token(a + "." + col), true, nil
	}
	return token(col), true, nil
}

// Parameter returns the parameter binding value as an expression of the given
// type would be bound.
func Parameter(ctx *Context, value any, typ reflect.Type, temporal expr.TemporalType, conv expr.PropertyValueConverter) sqlexpr.Parameter {
	p := sqlexpr.Parameter{Value: value, Type: typ, Temporal: temporal, Converter: conv}
	if conv != nil {
		p.Type = conv.DataType()
	}
	if cast := ctx.dialect.ParameterCast(p.Type, temporal); cast != "" {
		p.Serializer = sqlexpr.Cast(cast)
	}
	return p
}

func resolveConstantParameter(ctx *Context, c *expr.ConstantExpression) (sqlexpr.Parameter, bool, error) {
	if c.Kind() == expr.KindLiteral {
		return sqlexpr.Parameter{}, false, nil
	}
	return Parameter(ctx, c.Value, c.Type(), c.Temporal(), c.Converter()), true, nil
}

func resolveConstant(ctx *Context, c *expr.ConstantExpression) (sqlexpr.Token, bool, error) {
	if c.Kind() == expr.KindLiteral {
		v := c.Value
		if conv := c.Converter(); conv != nil {
			var err error
			if v, err = conv.FromModel(v); err != nil {
				return sqlexpr.Token{}, false, sqlerr.InvalidExpression(string(c.Kind()), "cannot convert literal: %v", err)
			}
		}
		return serializeLiteral(ctx, c.Kind(), v, c.Temporal())
	}
	return token(ctx.AddParameter(Parameter(ctx, c.Value, c.Type(), c.Temporal(), c.Converter()))), true, nil
}

func resolveCollection(ctx *Context, c *expr.CollectionExpression) (sqlexpr.Token, bool, error) {
	markers := make([]string, len(c.Values))
	for i := range c.Values {
		el := c.Element(i)
		markers[i] = ctx.AddParameter(Parameter(ctx, el.Value, el.Type(), el.Temporal(), el.Converter()))
	}
	return token("(" + strings.Join(markers, ", ") + ")"), true, nil
}

func resolveParameter(ctx *Context, p sqlexpr.Parameter) (sqlexpr.Token, bool, error) {
	return token(ctx.AddParameter(p)), true, nil
}

func resolveLiteral(ctx *Context, l sqlexpr.Literal) (sqlexpr.Token, bool, error) {
	return serializeLiteral(ctx, l.Kind(), l.Value, l.Temporal)
}

func serializeLiteral(ctx *Context, kind expr.Kind, v any, temporal expr.TemporalType) (sqlexpr.Token, bool, error) {
	sql, err := ctx.dialect.ValueSerializer().Serialize(v, temporal)
	if err != nil {
		return sqlexpr.Token{}, false, sqlerr.InvalidExpression(string(kind), "%v", err)
	}
	if strings.ContainsRune(sql, markerDelim) {
		return sqlexpr.Token{}, false, sqlerr.InvalidExpression(string(kind), "literal %q holds a control character", sql)
	}
	return token(sql), true, nil
}

func resolveDialectFunction(ctx *Context, f expr.Function) (*sqlexpr.Function, bool, error) {
	fn, ok := ctx.dialect.ResolveFunction(f)
	return fn, ok, nil
}

func resolveFunction(ctx *Context, f expr.Function) (sqlexpr.Token, bool, error) {
	fn, err := ResolveAs[*sqlexpr.Function](ctx, f, sqlexpr.KindFunction)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	args := make([]string, len(f.Args()))
	for i, a := range f.Args() {
		if args[i], err = ctx.SQL(a); err != nil {
			return sqlexpr.Token{}, false, err
		}
	}
	return token(fn.Serialize(args)), true, nil
}

var operatorSQL = map[expr.Operator]string{
	expr.EQ:        " = ",
	expr.NEQ:       " <> ",
	expr.LT:        " < ",
	expr.LTE:       " <= ",
	expr.GT:        " > ",
	expr.GTE:       " >= ",
	expr.In:        " IN ",
	expr.NotIn:     " NOT IN ",
	expr.IsNull:    " IS NULL",
	expr.IsNotNull: " IS NOT NULL",
}

func resolveOperationFilter(ctx *Context, f *expr.OperationFilter) (sqlexpr.Token, bool, error) {
	op, ok := operatorSQL[f.Op]
	if !ok {
		return sqlexpr.Token{}, false, sqlerr.InvalidExpression(string(f.Kind()), "unsupported operator %s", f.Op)
	}
	left, err := ctx.SQL(f.Left)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	if f.Op.Unary() {
		return token(left + op), true, nil
	}
	right, err := ctx.SQL(f.Right)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	return token(left + op + right), true, nil
}

func resolveBetweenFilter(ctx *Context, f *expr.BetweenFilter) (sqlexpr.Token, bool, error) {
	var parts [3]string
	for i, e := range []expr.TypedExpression{f.Expr, f.From, f.To} {
		var err error
		if parts[i], err = ctx.SQL(e); err != nil {
			return sqlexpr.Token{}, false, err
		}
	}
	return token(parts[0] + " BETWEEN " + parts[1] + " AND " + parts[2]), true, nil
}

// LikePattern returns the LIKE pattern matching value literally, in the given
// mode. The LIKE wildcards and the backslash are escaped with a backslash.
func LikePattern(value string, mode expr.MatchMode) string {
	var sb strings.Builder
	if mode != expr.MatchStartsWith {
		sb.WriteByte('%')
	}
	for _, r := range value {
		if r == '\\' || r == '%' || r == '_' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	if mode != expr.MatchEndsWith {
		sb.WriteByte('%')
	}
	return sb.String()
}

func resolveStringMatchFilter(ctx *Context, f *expr.StringMatchFilter) (sqlexpr.Token, bool, error) {
	left := f.Expr
	pattern := LikePattern(f.Value, f.Mode)
	if f.IgnoreCase {
		left = expr.Lower(left)
		pattern = strings.ToLower(pattern)
	}
	sql, err := ctx.SQL(left)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	sql += " LIKE " + ctx.AddParameter(sqlexpr.Parameter{Value: pattern, Type: stringType})
	if ctx.dialect.SupportsLikeEscapeClause() {
		sql += ` ESCAPE '\'`
	}
	return token(sql), true, nil
}

// filterList renders filters joined by op. Disjunctions and raw filters are
// parenthesized.
func filterList(ctx *Context, filters []expr.Filter, op string) (string, error) {
	parts := make([]string, len(filters))
	for i, f := range filters {
		sql, err := ctx.SQL(f)
		if err != nil {
			return "", err
		}
		if k := f.Kind(); k.AssignableTo(expr.KindOrFilter) || k.AssignableTo(expr.KindWhereFilter) {
			sql = "(" + sql + ")"
		}
		parts[i] = sql
	}
	return strings.Join(parts, op), nil
}

func resolveAndFilter(ctx *Context, f *expr.AndFilter) (sqlexpr.Token, bool, error) {
	sql, err := filterList(ctx, f.Filters, " AND ")
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	return token(sql), true, nil
}

func resolveOrFilter(ctx *Context, f *expr.OrFilter) (sqlexpr.Token, bool, error) {
	sql, err := filterList(ctx, f.Filters, " OR ")
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	return token(sql), true, nil
}

func resolveNotFilter(ctx *Context, f *expr.NotFilter) (sqlexpr.Token, bool, error) {
	sql, err := ctx.SQL(f.Filter)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	return token("NOT (" + sql + ")"), true, nil
}

// resolveWhereFilter replaces the positional markers of the raw SQL with
// context parameters.
func resolveWhereFilter(ctx *Context, f *expr.WhereFilter) (sqlexpr.Token, bool, error) {
	parsed, err := rawsql.Parse(f.SQL)
	if err != nil {
		return sqlexpr.Token{}, false, sqlerr.InvalidExpression(string(f.Kind()), "%v", err)
	}
	markers := make([]string, parsed.Params())
	for i := range markers {
		c := expr.Constant(f.Params[i])
		markers[i] = ctx.AddParameter(Parameter(ctx, c.Value, c.Type(), c.Temporal(), nil))
	}
	return token(parsed.Render(func(i int) string { return markers[i] })), true, nil
}

func resolvePathSort(ctx *Context, s *expr.PathSort) (sqlexpr.Token, bool, error) {
	sql, err := ctx.SQL(s.Expr)
	if err != nil {
		return sqlexpr.Token{}, false, err
	}
	if s.Direction == expr.Descending {
		return token(sql + " DESC"), true, nil
	}
	return token(sql + " ASC"), true, nil
}

func resolveCompositeSort(ctx *Context, s *expr.CompositeSort) (sqlexpr.Token, bool, error) {
	parts := make([]string, len(s.Sorts))
	for i, sort := range s.Sorts {
		var err error
		if parts[i], err = ctx.SQL(sort); err != nil {
			return sqlexpr.Token{}, false, err
		}
	}
	return token(strings.Join(parts, ", ")), true, nil
}

func resolveOrderBySort(ctx *Context, s *expr.OrderBySort) (sqlexpr.Token, bool, error) {
	return token(s.SQL), true, nil
}

func resolvePropertySet(ctx *Context, set *expr.PropertySet) (sqlexpr.Projection, bool, error) {
	b := sqlexpr.NewProjectionBuilder()
	for _, p := range set.Paths() {
		sql, err := ctx.SQL(p)
		if err != nil {
			return sqlexpr.Projection{}, false, err
		}
		b.Add(ctx.dialect.ColumnName(p.Name()), sql, p)
	}
	// The converter needs the labels chosen by the builder.
	proj := b.Build(nil)
	proj.Converter = &PropertyBoxConverter{
		Set:          set,
		Selections:   proj.Selections,
		Deserializer: ctx.dialect.ValueDeserializer(),
	}
	return proj, true, nil
}

func resolveExpressionProjection(ctx *Context, p *expr.ExpressionProjection) (sqlexpr.Projection, bool, error) {
	sql, err := ctx.SQL(p.Expr)
	if err != nil {
		return sqlexpr.Projection{}, false, err
	}
	label := ""
	if path, ok := p.Expr.(expr.Path); ok {
		label = ctx.dialect.ColumnName(path.Name())
	}
	b := sqlexpr.NewProjectionBuilder()
	label = b.Add(label, sql, p.Expr)
	return b.Build(&ValueConverter{
		Label:        label,
		Expr:         p.Expr,
		Deserializer: ctx.dialect.ValueDeserializer(),
	}), true, nil
}

// resolveTarget renders the FROM clause. Joined statements alias every data
// target, and unqualified paths then refer to the main target.
func resolveTarget(ctx *Context, t *expr.DataTarget) (sqlexpr.Token, bool, error) {
	d := ctx.dialect
	if len(t.Joins()) == 0 {
		return token(d.TableName(t.Name())), true, nil
	}
	main := ctx.Alias(t.Name())
	for _, j := range t.Joins() {
		ctx.Alias(j.Target)
	}
	ctx.SetMainAlias(main)

	var sb strings.Builder
	sb.WriteString(d.TableName(t.Name()) + " " + main)
	for _, j := range t.Joins() {
		sb.WriteString(" " + j.Type.String() + " " + d.TableName(j.Target) + " " + ctx.Alias(j.Target))
		if j.On != nil {
			on, err := ctx.SQL(j.On)
			if err != nil {
				return sqlexpr.Token{}, false, err
			}
			sb.WriteString(" ON " + on)
		}
	}
	return token(sb.String()), true, nil
}
