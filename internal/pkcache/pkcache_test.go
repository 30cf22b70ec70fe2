// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package pkcache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/sqlstore/internal/pkcache"
)

func TestEviction(t *testing.T) {
	c := pkcache.New(2)
	c.Add("a", []string{"id"})
	c.Add("b", []string{"code"})
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Add("c", nil)

	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	cols, ok := c.Get("c")
	assert.True(t, ok)
	assert.Empty(t, cols)
}

func TestDefaultCapacity(t *testing.T) {
	c := pkcache.New(0)
	for i := 0; i < pkcache.DefaultCapacity+10; i++ {
		c.Add(fmt.Sprint(i), nil)
	}
	assert.Equal(t, pkcache.DefaultCapacity, c.Len())
}

func TestCopies(t *testing.T) {
	c := pkcache.New(10)
	cols := []string{"id"}
	c.Add("a", cols)
	cols[0] = "changed"
	got, _ := c.Get("a")
	assert.Equal(t, []string{"id"}, got)
	got[0] = "changed"
	got, _ = c.Get("a")
	assert.Equal(t, []string{"id"}, got)
}

func TestLookup(t *testing.T) {
	c := pkcache.New(10)
	ctx := context.Background()
	var calls int32
	fetch := func(context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	cols, err := c.Lookup(ctx, "note", fetch)
	require.NoError(t, err)
	assert.Empty(t, cols)
	cols, err = c.Lookup(ctx, "note", fetch)
	require.NoError(t, err)
	assert.Empty(t, cols)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLookupErrorNotCached(t *testing.T) {
	c := pkcache.New(10)
	ctx := context.Background()
	_, err := c.Lookup(ctx, "t", func(context.Context) ([]string, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, c.Len())

	cols, err := c.Lookup(ctx, "t", func(context.Context) ([]string, error) {
		return []string{"id"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, cols)
}

func TestLookupConcurrent(t *testing.T) {
	c := pkcache.New(10)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cols, err := c.Lookup(ctx, "person", func(context.Context) ([]string, error) {
				return []string{"id"}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, []string{"id"}, cols)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
