// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlstore/expr"
)

// Hook up gocheck into the "go test" runner.
func TestExpr(t *testing.T) { TestingT(t) }

type ExprSuite struct{}

var _ = Suite(&ExprSuite{})

var (
	id   = expr.NewProperty[int64]("id")
	name = expr.NewProperty[string]("name")
)

func (s *ExprSuite) TestKindAssignability(c *C) {
	c.Check(expr.KindOperationFilter.AssignableTo(expr.KindFilter), Equals, true)
	c.Check(expr.KindLiteral.AssignableTo(expr.KindConstant), Equals, true)
	c.Check(expr.KindFilter.AssignableTo(expr.KindOperationFilter), Equals, false)
	c.Check(expr.Kind("filterx").AssignableTo(expr.KindFilter), Equals, false)
	c.Check(expr.KindSort.AssignableTo(""), Equals, true)
	c.Check(expr.KindFilter.Child("custom"), Equals, expr.Kind("filter.custom"))
}

var validateTests = []struct {
	summary string
	expr    expr.Expression
	err     string
}{{
	summary: "empty collection",
	expr:    expr.CollectionConstant(),
	err:     "empty collection",
}, {
	summary: "in without collection",
	expr:    expr.NewOperationFilter(id, expr.In, expr.Constant(int64(1))),
	err:     "IN filter right operand must be a collection",
}, {
	summary: "in with empty collection",
	expr:    expr.NewOperationFilter(id, expr.NotIn, expr.CollectionConstant()),
	err:     "empty collection",
}, {
	summary: "binary filter without right operand",
	expr:    expr.NewOperationFilter(id, expr.LT, nil),
	err:     "LT filter without right operand",
}, {
	summary: "where with too few values",
	expr:    expr.Where("id = ? AND name = ?", 1),
	err:     "where filter has 2 parameter markers but 1 values",
}, {
	summary: "where with too many values",
	expr:    expr.Where("name = '?'", "Fred"),
	err:     "where filter has 0 parameter markers but 1 values",
}, {
	summary: "empty where",
	expr:    expr.Where(""),
	err:     "empty where filter",
}, {
	summary: "control character in where",
	expr:    expr.Where("name = '\x00'"),
	err:     `control character U\+0000 in .*`,
}, {
	summary: "control character in order by",
	expr:    expr.OrderBy("name\x1f"),
	err:     `control character U\+001F in .*`,
}, {
	summary: "control character in path",
	expr:    expr.NewPath("na\x7fme", nil),
	err:     `control character U\+007F in .*`,
}, {
	summary: "control character in join",
	expr:    expr.Target("person").LeftJoin("addr\x01ess", nil),
	err:     `control character U\+0001 in .*`,
}, {
	summary: "path without name",
	expr:    expr.NewPath("", nil),
	err:     "path without name",
}, {
	summary: "and without filters",
	expr:    &expr.AndFilter{},
	err:     "and filter without filters",
}, {
	summary: "nil filter in or",
	expr:    &expr.OrFilter{Filters: []expr.Filter{id.IsNull(), nil}},
	err:     "nil filter in or filter",
}, {
	summary: "not without filter",
	expr:    expr.Not(nil),
	err:     "not filter without filter",
}, {
	summary: "string match on an integer",
	expr:    id.Contains("1", false),
	err:     "string match filter on non string expression of type int64",
}, {
	summary: "empty composite sort",
	expr:    &expr.CompositeSort{},
	err:     "empty composite sort",
}}

func (s *ExprSuite) TestValidate(c *C) {
	for i, t := range validateTests {
		c.Check(t.expr.Validate(), ErrorMatches, t.err, Commentf("test %d failed (%s)", i, t.summary))
	}
}

func (s *ExprSuite) TestValid(c *C) {
	valid := []expr.Expression{
		id.In(1, 2, 3),
		id.Between(1, 10),
		name.IsNull(),
		expr.Where("name = ? OR name = '?'", "Fred"),
		expr.Where("id IN (?,\n\t?)", 1, 2),
		expr.OrderBy("name DESC"),
		expr.Target("person").InnerJoin("address", expr.EqualTo(id, expr.NewProperty[int64]("person").Of("address"))),
	}
	for i, e := range valid {
		c.Check(e.Validate(), IsNil, Commentf("expression %d (%s)", i, e.Kind()))
	}
}

func (s *ExprSuite) TestAndFlattens(c *C) {
	a, b, d := id.GT(1), name.IsNull(), id.LT(5)

	c.Check(expr.And(), IsNil)
	c.Check(expr.And(nil, nil), IsNil)
	c.Check(expr.And(nil, a), Equals, a)

	f, ok := expr.And(expr.And(a, b), nil, d).(*expr.AndFilter)
	c.Assert(ok, Equals, true)
	c.Check(f.Filters, DeepEquals, []expr.Filter{a, b, d})

	// Disjunctions are kept as operands.
	or := expr.Or(a, b)
	f, ok = expr.And(or, d).(*expr.AndFilter)
	c.Assert(ok, Equals, true)
	c.Check(f.Filters, DeepEquals, []expr.Filter{or, d})
	c.Check(expr.Or(a), Equals, a)
}

func (s *ExprSuite) TestSortsFlatten(c *C) {
	a, b, d := id.Asc(), name.Desc(), expr.OrderBy("random()")

	c.Check(expr.Sorts(), IsNil)
	c.Check(expr.Sorts(nil), IsNil)
	c.Check(expr.Sorts(nil, a), Equals, a)

	sort, ok := expr.Sorts(a, expr.Sorts(b, nil, d)).(*expr.CompositeSort)
	c.Assert(ok, Equals, true)
	c.Check(sort.Sorts, DeepEquals, []expr.Sort{a, b, d})
	c.Check(sort.Validate(), IsNil)
}

func (s *ExprSuite) TestPropertyBox(c *C) {
	set := expr.NewPropertySet(id, name)
	box := expr.NewPropertyBox(set)

	c.Assert(box.Set(id, int64(7)), IsNil)
	c.Check(box.Set(name, 7), ErrorMatches, `cannot set property "name" of type string to int`)
	c.Check(box.SetValue("team", "eng"), ErrorMatches, `property "team" is not part of the property set`)
	c.Assert(box.Set(name, nil), IsNil)

	v, ok := expr.Value(box, id)
	c.Check(ok, Equals, true)
	c.Check(v, Equals, int64(7))
	_, ok = expr.Value(box, name)
	c.Check(ok, Equals, false)
	c.Check(box.Contains("name"), Equals, false)
	c.Check(box.Values(), DeepEquals, []any{int64(7), nil})
	c.Check(box.String(), Equals, "{id: 7, name: <nil>}")
}
