// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dqlite_test

import (
	"fmt"
	"testing"

	dqlitedriver "github.com/canonical/go-dqlite/driver"
	"github.com/stretchr/testify/assert"

	"github.com/canonical/sqlstore/dialect/dqlite"
	"github.com/canonical/sqlstore/sqlerr"
)

func TestDialect(t *testing.T) {
	d := dqlite.New()
	assert.Equal(t, dqlite.Name, d.Name())
	assert.Equal(t, "SELECT 1 LIMIT -1 OFFSET 2", d.LimitClause("SELECT 1", 0, 2))
}

func TestTranslateError(t *testing.T) {
	d := dqlite.New()
	tests := []struct {
		code     int
		expected sqlerr.Code
	}{
		// SQLITE_CONSTRAINT_UNIQUE
		{2067, sqlerr.DuplicateKey},
		// SQLITE_CONSTRAINT_PRIMARYKEY
		{1555, sqlerr.DuplicateKey},
		// SQLITE_CONSTRAINT_NOTNULL
		{1299, sqlerr.IntegrityViolation},
		// SQLITE_BUSY
		{5, sqlerr.Timeout},
		// SQLITE_ERROR
		{1, sqlerr.Unknown},
	}
	for _, test := range tests {
		err := d.TranslateError(fmt.Errorf("exec: %w", dqlitedriver.Error{Code: test.code, Message: "failed"}))
		assert.Equal(t, test.expected, sqlerr.CodeOf(err), test.code)
	}
}
