// Package cache provides the two-tier cache used by the storage layer: an
// in-process memory tier in front of a persistent backend (redis or
// memcached). Entries in the persistent tier carry tags so whole groups can
// be invalidated at once.
package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrMiss is returned by a Backend when a key is not present.
var ErrMiss = errors.New("cache miss")

// Backend is the persistent cache tier. Keys and tags are opaque strings;
// values are opaque bytes. Implementations must treat a missing key as
// ErrMiss, not a failure.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	Delete(ctx context.Context, keys ...string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

// TwoTier composes the memory tier with a persistent backend. A nil backend
// makes the cache memory-only; kinds stored that way are not persistently
// cacheable and skip tag bookkeeping entirely.
type TwoTier struct {
	memory  *gocache.Cache
	backend Backend
	ttl     time.Duration
}

func New(backend Backend, ttl time.Duration) *TwoTier {
	return &TwoTier{
		memory:  gocache.New(ttl, 2*ttl),
		backend: backend,
		ttl:     ttl,
	}
}

// Persistent reports whether a persistent tier is configured.
func (t *TwoTier) Persistent() bool {
	return t.backend != nil
}

// TTL is the expiration applied to persistent entries.
func (t *TwoTier) TTL() time.Duration {
	return t.ttl
}

func (t *TwoTier) MemoryGet(key string) (any, bool) {
	return t.memory.Get(key)
}

func (t *TwoTier) MemorySet(key string, value any) {
	t.memory.Set(key, value, gocache.DefaultExpiration)
}

func (t *TwoTier) MemoryDelete(keys ...string) {
	for _, key := range keys {
		t.memory.Delete(key)
	}
}

func (t *TwoTier) MemoryFlush() {
	t.memory.Flush()
}

func (t *TwoTier) Get(ctx context.Context, key string) ([]byte, error) {
	if t.backend == nil {
		return nil, ErrMiss
	}
	return t.backend.Get(ctx, key)
}

func (t *TwoTier) Set(ctx context.Context, key string, value []byte, tags []string) error {
	if t.backend == nil {
		return nil
	}
	return t.backend.Set(ctx, key, value, t.ttl, tags)
}

func (t *TwoTier) Delete(ctx context.Context, keys ...string) error {
	t.MemoryDelete(keys...)
	if t.backend == nil {
		return nil
	}
	return t.backend.Delete(ctx, keys...)
}

func (t *TwoTier) InvalidateTags(ctx context.Context, tags ...string) error {
	if t.backend == nil {
		return nil
	}
	return t.backend.InvalidateTags(ctx, tags...)
}
