package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedBackend serves Get from an in-process TTL cache in front of another
// backend. Misses are cached too, so repeated lookups of absent keys stay local.
// Committed entries are written through to the cache.
type CachedBackend struct {
	inner Backend
	cache *gocache.Cache
}

type cached struct {
	entry Entry
	found bool
}

// NewCachedBackend wraps inner. ttl <= 0 keeps items until Close.
func NewCachedBackend(inner Backend, ttl time.Duration) *CachedBackend {
	expiry := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiry = gocache.NoExpiration
		cleanup = 0
	}
	return &CachedBackend{inner: inner, cache: gocache.New(expiry, cleanup)}
}

func (c *CachedBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		item := v.(cached)
		return item.entry.Clone(), item.found, nil
	}
	e, found, err := c.inner.Get(ctx, key)
	if err != nil {
		return Entry{}, false, err
	}
	c.cache.Set(key, cached{entry: e.Clone(), found: found}, gocache.DefaultExpiration)
	return e, found, nil
}

func (c *CachedBackend) Iterate(ctx context.Context, prefix string, fn func(Entry) error) error {
	return c.inner.Iterate(ctx, prefix, fn)
}

func (c *CachedBackend) LastBlock(ctx context.Context) (uint64, bool, error) {
	return c.inner.LastBlock(ctx)
}

func (c *CachedBackend) Commit(ctx context.Context, block uint64, entries []Entry) error {
	if err := c.inner.Commit(ctx, block, entries); err != nil {
		// the inner backend may have applied part of the batch before failing
		c.cache.Flush()
		return err
	}
	for _, e := range entries {
		c.cache.Set(e.Key, cached{entry: e.Clone(), found: true}, gocache.DefaultExpiration)
	}
	return nil
}

// Len reports the number of cached keys, including cached misses.
func (c *CachedBackend) Len() int {
	return c.cache.ItemCount()
}

func (c *CachedBackend) Close() error {
	c.cache.Flush()
	return c.inner.Close()
}
