// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which
// counts the statements prepared and closed on it, and the queries run with
// and without a prepared statement. Counts are indexed by the test name given
// in the DSN.

// stmtCounts holds the counts of a test. The countsMutex must be used when
// accessing the counts.
type stmtCounts struct {
	prepared    int
	closed      int
	stmtQueries int
	connQueries int
}

var counts = map[string]*stmtCounts{}
var countsMutex sync.Mutex

func countsOf(testName string) stmtCounts {
	countsMutex.Lock()
	defer countsMutex.Unlock()
	if c, ok := counts[testName]; ok {
		return *c
	}
	return stmtCounts{}
}

func count(testName string, f func(c *stmtCounts)) {
	countsMutex.Lock()
	defer countsMutex.Unlock()
	c, ok := counts[testName]
	if !ok {
		c = &stmtCounts{}
		counts[testName] = c
	}
	f(c)
}

type countingDriver struct {
	driver.Driver
}

type countingConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type countingStmt struct {
	testName string
	*sqlite3.SQLiteStmt
}

func (s *countingStmt) Close() error {
	count(s.testName, func(c *stmtCounts) { c.closed++ })
	return s.SQLiteStmt.Close()
}

func (s *countingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	if err == nil {
		count(s.testName, func(c *stmtCounts) { c.stmtQueries++ })
	}
	return rows, err
}

func (s *countingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.SQLiteStmt.ExecContext(ctx, args)
	if err == nil {
		count(s.testName, func(c *stmtCounts) { c.stmtQueries++ })
	}
	return res, err
}

func (c *countingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	count(c.testName, func(c *stmtCounts) { c.prepared++ })
	return &countingStmt{SQLiteStmt: sm, testName: c.testName}, nil
}

func (c *countingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *countingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err == nil {
		count(c.testName, func(c *stmtCounts) { c.connQueries++ })
	}
	return rows, err
}

func (c *countingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	if err == nil {
		count(c.testName, func(c *stmtCounts) { c.connQueries++ })
	}
	return res, err
}

const testNameTag = "testName"

// Open expects the DSN to contain the test name using the testNameTag
// attribute.
func (d *countingDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, parameters, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(parameters, "&") {
			if v, ok := strings.CutPrefix(p, testNameTag+"="); ok {
				testName = v
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	sqliteConn, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &countingConn{SQLiteConn: sqliteConn, testName: testName}, nil
}

func init() {
	sql.Register("sqlite3_counted", &countingDriver{
		&sqlite3.SQLiteDriver{},
	})
}
