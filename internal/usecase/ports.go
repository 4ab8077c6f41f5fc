package usecase

import (
	"context"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/internal/domain"
	"github.com/ngonendi/edgestore/internal/storage"
)

// DeveloperStore defines the storage operations for developer records. Ids
// accepted anywhere may be an email or a developer identifier.
type DeveloperStore interface {
	Load(ctx context.Context, id string) (*edgestore.Developer, error)
	LoadMultiple(ctx context.Context, ids []string) (*storage.OrderedMap[*edgestore.Developer], error)
	Save(ctx context.Context, dev *edgestore.Developer) error
	Delete(ctx context.Context, id string) error
	ResetCache(ctx context.Context, ids []string) error
	// Key names the cache key an id resolves to, for invalidation events.
	Key(id string) string
}

// UserRepository defines persistence for local user accounts.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Delete(ctx context.Context, id int64) error
}

// InvalidationPublisher broadcasts cache invalidation events to other
// replicas and watchers.
type InvalidationPublisher interface {
	Publish(ctx context.Context, event edgestore.Event) error
}

// CacheInvalidator drops persistent cache entries by tag.
type CacheInvalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) error
}
