// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultStatementCacheSize is the number of driver prepared statements kept
// per datastore unless configured otherwise.
const DefaultStatementCacheSize = 200

// statementCache caches the sql.Stmt values prepared on the datastore pool,
// indexed by SQL text. Composed SQL only depends on the operation shape, its
// values being bound as parameters, so the same text is run repeatedly.
//
// A statement handed out by the cache is held until its release function is
// called. An evicted statement is closed once no holder is left. Rows opened
// on a statement keep its driver statement open until they are closed.
//
// The mutex must be locked when accessing the lru or an entry.
type statementCache struct {
	mutex sync.Mutex
	lru   *lru.Cache
}

// cacheEntry is a cached statement and the number of its holders.
type cacheEntry struct {
	stmt    *sql.Stmt
	refs    int
	evicted bool
}

// newStatementCache returns a cache of at most size statements, or nil if size
// is negative, disabling the cache.
func newStatementCache(size int) *statementCache {
	if size < 0 {
		return nil
	}
	if size == 0 {
		size = DefaultStatementCacheSize
	}
	c := lru.New(size)
	c.OnEvicted = func(_ lru.Key, v any) {
		e := v.(*cacheEntry)
		e.evicted = true
		if e.refs == 0 {
			e.stmt.Close()
		}
	}
	return &statementCache{lru: c}
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// hold takes a reference on e and returns the function dropping it. The mutex
// must be locked.
func (sc *statementCache) hold(e *cacheEntry) func() {
	e.refs++
	var once sync.Once
	return func() {
		once.Do(func() {
			sc.mutex.Lock()
			defer sc.mutex.Unlock()
			e.refs--
			if e.evicted && e.refs == 0 {
				e.stmt.Close()
			}
		})
	}
}

// lookupStmt returns the statement prepared for query, if any, and the
// function to call once it is not needed anymore.
func (sc *statementCache) lookupStmt(query string) (*sql.Stmt, func(), bool) {
	if sc == nil {
		return nil, nil, false
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	v, ok := sc.lru.Get(query)
	if !ok {
		return nil, nil, false
	}
	e := v.(*cacheEntry)
	return e.stmt, sc.hold(e), true
}

// prepareStmt prepares query on ps. It first checks in the cache to see if it
// has already been prepared. The prepareSubstrate must be the pool the cache
// belongs to. The returned function must be called once the statement is not
// needed anymore.
func (sc *statementCache) prepareStmt(ctx context.Context, ps prepareSubstrate, query string) (*sql.Stmt, func(), error) {
	if sqlstmt, release, ok := sc.lookupStmt(query); ok {
		return sqlstmt, release, nil
	}
	sqlstmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := sc.lru.Get(query); ok {
		sqlstmt.Close()
		e := alt.(*cacheEntry)
		return e.stmt, sc.hold(e), nil
	}
	e := &cacheEntry{stmt: sqlstmt}
	release := sc.hold(e)
	sc.lru.Add(query, e)
	return sqlstmt, release, nil
}

// len returns the number of cached statements.
func (sc *statementCache) len() int {
	if sc == nil {
		return 0
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return sc.lru.Len()
}

// close forgets every cached statement, closing those nobody holds.
func (sc *statementCache) close() {
	if sc == nil {
		return
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	sc.lru.Clear()
}
