// Package storage provides the generic load/save/cache-reset skeleton that
// entity stores specialize. The remote API is always the system of record;
// the skeleton only keeps the two cache tiers in front of it.
package storage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/ngonendi/edgestore/internal/cache"
)

// Entity is anything the generic store can manage.
type Entity interface {
	// EntityID returns the primary key the store caches under.
	EntityID() string
	// IsNew reports whether the entity exists on the remote system yet.
	IsNew() bool
}

// Controller performs the remote CRUD calls for one entity kind. Ids passed
// to Load/LoadMultiple/Delete may be any key the remote system resolves.
type Controller[E Entity] interface {
	Load(ctx context.Context, id string) (E, error)
	LoadMultiple(ctx context.Context, ids []string) (map[string]E, error)
	Create(ctx context.Context, e E) error
	Update(ctx context.Context, e E) error
	Delete(ctx context.Context, id string) error
}

// Cacher is the overridable persistent-cache hook. The base supplies the
// defaults; a specialization passes itself to NewBase to override how
// entities are tagged and written.
type Cacher[E Entity] interface {
	PersistentCacheTags(e E) []string
	SetPersistentCache(ctx context.Context, entities []E) error
}

// Base is the generic storage skeleton for one entity kind.
type Base[E Entity] struct {
	kind       string
	controller Controller[E]
	cache      *cache.TwoTier
	factory    func() E
	cacher     Cacher[E]
}

func NewBase[E Entity](kind string, controller Controller[E], tt *cache.TwoTier, factory func() E) *Base[E] {
	b := &Base[E]{
		kind:       kind,
		controller: controller,
		cache:      tt,
		factory:    factory,
	}
	b.cacher = b
	return b
}

// SetCacher installs a specialization's caching hooks in place of the
// defaults. Must be called before the store is used.
func (b *Base[E]) SetCacher(c Cacher[E]) {
	b.cacher = c
}

func (b *Base[E]) Kind() string {
	return b.kind
}

func (b *Base[E]) Cache() *cache.TwoTier {
	return b.cache
}

// Key is the cache key for an id within this store's kind.
func (b *Base[E]) Key(id string) string {
	return cache.Key(b.kind, id)
}

// LoadMultiple resolves ids through the memory tier, the persistent tier,
// and finally the remote API. The result is keyed by each entity's primary
// key, which is not necessarily the id it was looked up by. A nil id list
// loads everything the remote system has.
func (b *Base[E]) LoadMultiple(ctx context.Context, ids []string) (map[string]E, error) {
	result := make(map[string]E)

	if ids == nil {
		remote, err := b.controller.LoadMultiple(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(err, "remote load failed")
		}
		fetched := make([]E, 0, len(remote))
		for _, e := range remote {
			result[e.EntityID()] = e
			fetched = append(fetched, e)
		}
		b.writeThrough(ctx, fetched)
		return result, nil
	}

	var misses []string
	for _, id := range ids {
		if x, found := b.cache.MemoryGet(b.Key(id)); found {
			e := x.(E)
			result[e.EntityID()] = e
			continue
		}

		raw, err := b.cache.Get(ctx, b.Key(id))
		if err == nil {
			e := b.factory()
			if err := json.Unmarshal(raw, e); err == nil {
				b.cache.MemorySet(b.Key(id), e)
				result[e.EntityID()] = e
				continue
			}
		} else if err != cache.ErrMiss {
			slog.Warn("persistent cache read failed",
				slog.String("kind", b.kind),
				slog.String("error", err.Error()),
			)
		}

		misses = append(misses, id)
	}

	if len(misses) > 0 {
		remote, err := b.controller.LoadMultiple(ctx, misses)
		if err != nil {
			return nil, errors.Wrap(err, "remote load failed")
		}
		fetched := make([]E, 0, len(remote))
		for _, e := range remote {
			result[e.EntityID()] = e
			fetched = append(fetched, e)
		}
		b.writeThrough(ctx, fetched)
	}

	return result, nil
}

// DoSave creates or updates the entity remotely, then refreshes the cache
// entries. Remote failures propagate unchanged; a cache refresh failure is
// not fatal because the next load repairs from the remote system.
func (b *Base[E]) DoSave(ctx context.Context, e E) error {
	var err error
	if e.IsNew() {
		err = b.controller.Create(ctx, e)
	} else {
		err = b.controller.Update(ctx, e)
	}
	if err != nil {
		return err
	}

	b.writeThrough(ctx, []E{e})
	return nil
}

// Delete removes the entity remotely and drops its cache entries.
func (b *Base[E]) Delete(ctx context.Context, id string) error {
	if err := b.controller.Delete(ctx, id); err != nil {
		return err
	}
	if err := b.cache.Delete(ctx, b.Key(id)); err != nil {
		slog.Warn("cache delete failed",
			slog.String("kind", b.kind),
			slog.String("error", err.Error()),
		)
	}
	return b.cache.InvalidateTags(ctx, b.kind+":"+id, b.kind+":"+id+":values")
}

// PersistentCacheTags is the default tag set: the kind itself, the
// kind-wide values class, and the id-scoped pair.
func (b *Base[E]) PersistentCacheTags(e E) []string {
	id := e.EntityID()
	return []string{
		b.kind,
		b.kind + ":values",
		b.kind + ":" + id,
		b.kind + ":" + id + ":values",
	}
}

// SetPersistentCache writes the entities to the persistent tier under their
// primary keys, tagged via the installed Cacher, and mirrors them into the
// memory tier.
func (b *Base[E]) SetPersistentCache(ctx context.Context, entities []E) error {
	for _, e := range entities {
		encoded, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "failed to encode cache entry")
		}
		if err := b.cache.Set(ctx, b.Key(e.EntityID()), encoded, b.cacher.PersistentCacheTags(e)); err != nil {
			return err
		}
		b.cache.MemorySet(b.Key(e.EntityID()), e)
	}
	return nil
}

// ResetCache drops cache entries. With explicit ids only those keys are
// evicted from both tiers; with nil ids the memory tier is flushed and the
// kind-wide tag is invalidated.
func (b *Base[E]) ResetCache(ctx context.Context, ids []string) error {
	if ids == nil {
		b.cache.MemoryFlush()
		return b.cache.InvalidateTags(ctx, b.kind)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.Key(id)
	}
	return b.cache.Delete(ctx, keys...)
}

// writeThrough caches fetched or saved entities, tolerating failure: the
// cache is an optimization, the record already lives remotely.
func (b *Base[E]) writeThrough(ctx context.Context, entities []E) {
	if len(entities) == 0 {
		return
	}
	if err := b.cacher.SetPersistentCache(ctx, entities); err != nil {
		slog.Warn("persistent cache write failed",
			slog.String("kind", b.kind),
			slog.String("error", err.Error()),
		)
	}
}
