// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqlstore/sqlerr"
)

func TestDataAccessErrorCode(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: person.id")
	err := fmt.Errorf("insert: %w", sqlerr.DataAccess(sqlerr.DuplicateKey, cause, "cannot execute statement"))

	assert.Equal(t, sqlerr.DuplicateKey, sqlerr.CodeOf(err))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &sqlerr.DataAccessError{Code: sqlerr.DuplicateKey}))
	assert.False(t, errors.Is(err, &sqlerr.DataAccessError{Code: sqlerr.NotFound}))
	assert.Equal(t, "insert: cannot execute statement (duplicate key): UNIQUE constraint failed: person.id", err.Error())

	assert.Equal(t, sqlerr.Unknown, sqlerr.CodeOf(cause))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{{
		err:      sqlerr.InvalidExpression("filter.operation", "missing right operand"),
		expected: "invalid expression filter.operation: missing right operand",
	}, {
		err:      sqlerr.StatementConfiguration("missing data target"),
		expected: "invalid statement configuration: missing data target",
	}, {
		err:      &sqlerr.IllegalTransactionStatusError{Op: "commit", Status: "completed"},
		expected: "cannot commit transaction: transaction is completed",
	}, {
		err:      &sqlerr.TransactionError{Op: "begin", Err: errors.New("database is locked")},
		expected: "cannot begin transaction: database is locked",
	}, {
		err:      &sqlerr.QueryResultConversionError{Value: "abc", Target: "int64"},
		expected: "cannot convert string value to int64",
	}, {
		err:      sqlerr.DataAccess(sqlerr.NoPrimaryKey, nil, "cannot update %q", "person"),
		expected: `cannot update "person" (no primary key)`,
	}}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.err.Error())
	}
}

func TestErrorsAs(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &sqlerr.QueryResultConversionError{Value: 1, Target: "bool", Err: cause})

	var qe *sqlerr.QueryResultConversionError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, "bool", qe.Target)
	assert.True(t, errors.Is(err, cause))

	var ie *sqlerr.InvalidExpressionError
	assert.False(t, errors.As(err, &ie))
}
