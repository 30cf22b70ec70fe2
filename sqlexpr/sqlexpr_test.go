// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlexpr_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlexpr"
)

func TestFunctionSerialization(t *testing.T) {
	assert.Equal(t, "LOWER(t0.name)", sqlexpr.NewFunction("LOWER").Serialize([]string{"t0.name"}))
	assert.Equal(t, "CURRENT_DATE", sqlexpr.Keyword("CURRENT_DATE").Serialize(nil))
	assert.Equal(t, "CAST(strftime('%Y', born) AS INTEGER)",
		sqlexpr.Template("YEAR", "CAST(strftime('%Y', ?) AS INTEGER)").Serialize([]string{"born"}))
	assert.Equal(t, "COALESCE(a, b)", sqlexpr.NewFunction("COALESCE").Serialize([]string{"a", "b"}))
}

func TestParameterSerialization(t *testing.T) {
	p := sqlexpr.Parameter{Value: "2018-02-07", Serializer: sqlexpr.Cast("DATE")}
	assert.Equal(t, "CAST($1 AS DATE)", p.Serialize("$1"))
	assert.Equal(t, sqlexpr.KindParameter, p.Kind())

	ph := sqlexpr.Placeholder("name", reflect.TypeOf(""), expr.TemporalNone)
	assert.Equal(t, "?", ph.Serialize("?"))
	assert.Equal(t, sqlexpr.KindPlaceholder, ph.Kind())
	assert.True(t, ph.Kind().AssignableTo(sqlexpr.KindSQL))

	stmt := sqlexpr.Statement{SQL: "INSERT INTO t (name) VALUES (?)", Params: []sqlexpr.Parameter{ph}}
	assert.True(t, stmt.Batch())
}

func TestProjectionBuilder(t *testing.T) {
	id := expr.NewProperty[int64]("id")
	b := sqlexpr.NewProjectionBuilder()
	assert.Equal(t, "id", b.Add("id", "t0.id", id))
	assert.Equal(t, "id_1", b.Add("id", "t1.id", id))
	assert.Equal(t, "c", b.Add("", "COUNT(*)", expr.CountAll()))
	p := b.Build(nil)

	assert.Equal(t, []string{"id", "id_1", "c"}, p.Labels())
	assert.Equal(t, "t0.id, t1.id AS id_1, COUNT(*) AS c", p.SQL())

	assert.Panics(t, func() { b.Add("x", "x", id) })
}

func TestKinds(t *testing.T) {
	q := sqlexpr.Query{}
	assert.True(t, q.Kind().AssignableTo(sqlexpr.KindStatement))
	assert.False(t, sqlexpr.KindStatement.AssignableTo(sqlexpr.KindQuery))
	assert.Error(t, q.Validate())
	assert.Error(t, sqlexpr.Token{SQL: "  "}.Validate())
}
