// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package postgres_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqlstore/dialect/postgres"
	"github.com/canonical/sqlstore/expr"
	"github.com/canonical/sqlstore/sqlerr"
)

func TestDialect(t *testing.T) {
	d := postgres.New()
	assert.Equal(t, "$2", d.Placeholder(2))
	assert.Equal(t, "person", d.TableName("PERSON"))
	assert.True(t, d.SupportsGetGeneratedKeyByName())
	assert.False(t, d.SupportsGetGeneratedKeys())
	assert.Equal(t, " RETURNING id", d.ReturningClause([]string{"ID"}))
	assert.Equal(t, "SELECT 1 LIMIT 3 OFFSET 2", d.LimitClause("SELECT 1", 3, 2))
	assert.Equal(t, "SELECT 1 OFFSET 2", d.LimitClause("SELECT 1", 0, 2))
	assert.Len(t, d.Resolvers(), 1)
}

func TestParameterCast(t *testing.T) {
	d := postgres.New()
	timeType := reflect.TypeOf(time.Time{})
	assert.Equal(t, "DATE", d.ParameterCast(timeType, expr.Date))
	assert.Equal(t, "TIME", d.ParameterCast(timeType, expr.Time))
	assert.Equal(t, "", d.ParameterCast(timeType, expr.DateTime))
	assert.Equal(t, "", d.ParameterCast(reflect.TypeOf(""), expr.Date))
}

func TestTranslateError(t *testing.T) {
	d := postgres.New()
	tests := []struct {
		code     pq.ErrorCode
		expected sqlerr.Code
	}{
		{"23505", sqlerr.DuplicateKey},
		{"23503", sqlerr.IntegrityViolation},
		{"23502", sqlerr.IntegrityViolation},
		{"22001", sqlerr.InvalidData},
		{"57014", sqlerr.Timeout},
		{"55P03", sqlerr.Timeout},
		{"08006", sqlerr.Connection},
		{"42P01", sqlerr.Unknown},
	}
	for _, test := range tests {
		err := d.TranslateError(fmt.Errorf("exec: %w", &pq.Error{Code: test.code}))
		assert.Equal(t, test.expected, sqlerr.CodeOf(err), string(test.code))
	}
	assert.Equal(t, sqlerr.Unknown, sqlerr.CodeOf(d.TranslateError(errors.New("boom"))))
}
