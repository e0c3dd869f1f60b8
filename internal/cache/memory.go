package cache

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxEntries bounds a MemoryProvider created with a non-positive limit.
const DefaultMaxEntries = 1024

// MemoryProvider is an in-process Provider backed by an expiring LRU. The provider TTL
// caps every entry; a shorter per-call ttl expires that entry sooner.
type MemoryProvider struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryProvider creates an empty cache holding at most maxEntries values for at most
// ttl each. A non-positive ttl leaves expiry to the per-call ttl alone.
func NewMemoryProvider(maxEntries int, ttl time.Duration) *MemoryProvider {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryProvider{
		lru: expirable.NewLRU[string, entry](maxEntries, nil, ttl),
		now: time.Now,
	}
}

// Get returns a copy of the stored value, or ErrCacheMiss.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	it, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if it.expired(c.now()) {
		c.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return slices.Clone(it.value), nil
}

// Set stores a copy of value, evicting the least recently used entry when full.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.lru.Add(key, entry{value: slices.Clone(value), expiresAt: expires})
	return nil
}

// Del removes key; absent keys are not an error.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.lru.Purge()
	return nil
}

// Len reports stored entries, expired ones included until they are reaped.
func (c *MemoryProvider) Len() int {
	return c.lru.Len()
}
