// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pkcache caches the primary key columns of tables.
package pkcache

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is the number of tables cached when no capacity is given.
const DefaultCapacity = 1000

// Cache is a bounded, least recently used, map from table names to primary
// key columns. An empty key, for tables without primary key, is cached too.
// It is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	group singleflight.Group
}

// New returns a cache holding at most capacity tables. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{lru: lru.New(capacity)}
}

// Get returns the cached key columns of table.
func (c *Cache) Get(table string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(table)
	if !ok {
		return nil, false
	}
	return clone(v.([]string)), true
}

// Add caches the key columns of table, replacing any previous entry.
func (c *Cache) Add(table string, columns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(table, clone(columns))
}

// Remove drops table from the cache.
func (c *Cache) Remove(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(table)
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Lookup returns the key columns of table, calling fetch on a miss. Concurrent
// misses for the same table share a single fetch. Errors are not cached.
func (c *Cache) Lookup(ctx context.Context, table string, fetch func(ctx context.Context) ([]string, error)) ([]string, error) {
	if cols, ok := c.Get(table); ok {
		return cols, nil
	}
	v, err, _ := c.group.Do(table, func() (any, error) {
		cols, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if cols == nil {
			cols = []string{}
		}
		c.Add(table, cols)
		return cols, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]string)), nil
}

func clone(cols []string) []string {
	return append([]string{}, cols...)
}
