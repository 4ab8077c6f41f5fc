package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcachedStore is the slice of the gomemcache client the backend uses.
type memcachedStore interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Add(item *memcache.Item) error
	Delete(key string) error
	Increment(key string, delta uint64) (uint64, error)
}

const memcachedTagPrefix = "tagv:"

// MemcachedBackend stores entries in memcached. Memcached cannot enumerate
// keys by tag, so tags are versioned instead: each tag has a counter item,
// entries record the counter values seen at write time, and an entry whose
// recorded version lags the current counter is treated as a miss.
// Invalidating a tag is a counter bump.
type MemcachedBackend struct {
	mc memcachedStore
}

func NewMemcachedBackend(mc *memcache.Client) *MemcachedBackend {
	return &MemcachedBackend{mc: mc}
}

type memcachedEnvelope struct {
	Value []byte            `json:"value"`
	Tags  map[string]uint64 `json:"tags,omitempty"`
}

func (b *MemcachedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := b.mc.Get(backendKey(key))
	if err == memcache.ErrCacheMiss {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var envelope memcachedEnvelope
	if err := json.Unmarshal(item.Value, &envelope); err != nil {
		return nil, ErrMiss
	}

	for tag, seen := range envelope.Tags {
		current, err := b.tagVersion(tag)
		if err != nil {
			return nil, err
		}
		if current > seen {
			b.mc.Delete(item.Key)
			return nil, ErrMiss
		}
	}
	return envelope.Value, nil
}

func (b *MemcachedBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	envelope := memcachedEnvelope{Value: value}
	if len(tags) > 0 {
		envelope.Tags = make(map[string]uint64, len(tags))
		for _, tag := range tags {
			version, err := b.tagVersion(tag)
			if err != nil {
				return err
			}
			envelope.Tags[tag] = version
		}
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return b.mc.Set(&memcache.Item{
		Key:        backendKey(key),
		Value:      encoded,
		Expiration: int32(ttl / time.Second),
	})
}

func (b *MemcachedBackend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := b.mc.Delete(backendKey(key)); err != nil && err != memcache.ErrCacheMiss {
			return err
		}
	}
	return nil
}

func (b *MemcachedBackend) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		_, err := b.mc.Increment(tagKey(tag), 1)
		if err == memcache.ErrCacheMiss {
			// Counter was never written, or was evicted. The reseed must
			// exceed every version a surviving entry may have recorded;
			// the clock is above any increment count.
			seed := strconv.FormatInt(time.Now().UnixNano(), 10)
			err = b.mc.Set(&memcache.Item{Key: tagKey(tag), Value: []byte(seed)})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// tagVersion reads the current counter for a tag, seeding it when absent so
// later entries have a version to record.
func (b *MemcachedBackend) tagVersion(tag string) (uint64, error) {
	item, err := b.mc.Get(tagKey(tag))
	if err == memcache.ErrCacheMiss {
		err = b.mc.Add(&memcache.Item{Key: tagKey(tag), Value: []byte("1")})
		if err != nil && err != memcache.ErrNotStored {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	version, err := strconv.ParseUint(string(item.Value), 10, 64)
	if err != nil {
		return 0, nil
	}
	return version, nil
}

func tagKey(tag string) string {
	return backendKey(memcachedTagPrefix + tag)
}

var _ Backend = (*MemcachedBackend)(nil)
