// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rawsql_test

import (
	"strconv"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlstore/internal/rawsql"
)

func TestPackage(t *testing.T) { TestingT(t) }

type ParserSuite struct{}

var _ = Suite(&ParserSuite{})

var parseTests = []struct {
	summary  string
	input    string
	params   int
	rendered string
}{{
	summary:  "no parameters",
	input:    "name IS NOT NULL",
	params:   0,
	rendered: "name IS NOT NULL",
}, {
	summary:  "single parameter",
	input:    "id = ?",
	params:   1,
	rendered: "id = $1",
}, {
	summary:  "several parameters",
	input:    "id > ? AND name = ? OR code IN (?, ?)",
	params:   4,
	rendered: "id > $1 AND name = $2 OR code IN ($3, $4)",
}, {
	summary:  "quoted marker",
	input:    "name = '?' AND id = ?",
	params:   1,
	rendered: "name = '?' AND id = $1",
}, {
	summary:  "escaped quote",
	input:    "name = 'it''s ?' AND id = ?",
	params:   1,
	rendered: "name = 'it''s ?' AND id = $1",
}, {
	summary:  "quoted identifier",
	input:    `"odd?column" = ? AND ` + "`other?` = ?",
	params:   2,
	rendered: `"odd?column" = $1 AND ` + "`other?` = $2",
}, {
	summary:  "line comment",
	input:    "id = ? -- is it?\nAND x = ?",
	params:   2,
	rendered: "id = $1 -- is it?\nAND x = $2",
}, {
	summary:  "block comment",
	input:    "id = ? /* what? */ AND x = ?",
	params:   2,
	rendered: "id = $1 /* what? */ AND x = $2",
}, {
	summary:  "adjacent markers",
	input:    "??",
	params:   2,
	rendered: "$1$2",
}}

func (s *ParserSuite) TestParse(c *C) {
	for i, t := range parseTests {
		pe, err := rawsql.Parse(t.input)
		c.Assert(err, IsNil, Commentf("test %d failed (%s)", i, t.summary))
		c.Check(pe.Params(), Equals, t.params, Commentf("test %d failed (%s)", i, t.summary))
		rendered := pe.Render(func(n int) string { return "$" + strconv.Itoa(n+1) })
		c.Check(rendered, Equals, t.rendered, Commentf("test %d failed (%s)", i, t.summary))
	}
}

func (s *ParserSuite) TestUnterminatedLiteral(c *C) {
	_, err := rawsql.Parse("name = 'abc AND id = ?")
	c.Assert(err, ErrorMatches, "cannot parse sql: column 8: missing closing quote in string literal")

	_, err = rawsql.CountParameters("id = ?\nAND name = \"abc")
	c.Assert(err, ErrorMatches, "cannot parse sql: line 2, column 12: missing closing quote in string literal")
}

func (s *ParserSuite) TestCountParameters(c *C) {
	n, err := rawsql.CountParameters("a = ? AND b = '?'")
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 1)
}
