package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/client"
	"github.com/ngonendi/edgestore/internal/cache"
	"github.com/ngonendi/edgestore/internal/domain"
	"github.com/ngonendi/edgestore/internal/storage"
	"github.com/ngonendi/edgestore/internal/usecase"
)

var tracer = otel.Tracer("repository")

const developerKind = "developer"

// DeveloperController is the remote API surface the store needs: the
// generic CRUD contract plus the explicit status-change call.
type DeveloperController interface {
	storage.Controller[*edgestore.Developer]
	SetStatus(ctx context.Context, id string, status edgestore.Status) error
}

// DeveloperStorage specializes the generic storage skeleton for developer
// records. A record is reachable by two keys, its email and its developer
// identifier; this store keeps both cache keyings in step by always writing
// and invalidating them within the same call.
type DeveloperStorage struct {
	*storage.Base[*edgestore.Developer]
	client DeveloperController
}

func NewDeveloperStorage(cl DeveloperController, tt *cache.TwoTier) *DeveloperStorage {
	s := &DeveloperStorage{client: cl}
	s.Base = storage.NewBase[*edgestore.Developer](developerKind, cl, tt, func() *edgestore.Developer {
		return &edgestore.Developer{}
	})
	s.Base.SetCacher(s)
	return s
}

// LoadMultiple resolves a mixed list of emails and developer identifiers.
// The generic loader keys its result by each record's email, so a record
// looked up by developer identifier comes back under a key the caller never
// asked for; re-key by developer id as well, merge, and project the merged
// collection back onto the caller's id list. The result maps each
// resolvable input id to its record, in input order, with unresolvable ids
// silently dropped. A nil id list loads every developer.
func (s *DeveloperStorage) LoadMultiple(ctx context.Context, ids []string) (*storage.OrderedMap[*edgestore.Developer], error) {
	ctx, span := tracer.Start(ctx, "DeveloperStorage.LoadMultiple")
	defer span.End()

	var lookup []string
	if ids != nil {
		lookup = make([]string, len(ids))
		for i, id := range ids {
			lookup[i] = edgestore.NormalizeEmail(id)
		}
	}

	loaded, err := s.Base.LoadMultiple(ctx, lookup)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := storage.NewOrderedMap[*edgestore.Developer]()

	if ids == nil {
		emails := make([]string, 0, len(loaded))
		for email := range loaded {
			emails = append(emails, email)
		}
		sort.Strings(emails)
		for _, email := range emails {
			result.Set(email, loaded[email])
		}
		return result, nil
	}

	merged := make(map[string]*edgestore.Developer, 2*len(loaded))
	for email, dev := range loaded {
		merged[email] = dev
	}
	for _, dev := range loaded {
		if dev.DeveloperID == "" {
			continue
		}
		if _, taken := merged[dev.DeveloperID]; !taken {
			merged[dev.DeveloperID] = dev
		}
	}

	for _, id := range lookup {
		if dev, found := merged[id]; found {
			result.Set(id, dev)
		}
	}
	return result, nil
}

// Load resolves a single id, email or developer identifier.
func (s *DeveloperStorage) Load(ctx context.Context, id string) (*edgestore.Developer, error) {
	result, err := s.LoadMultiple(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	dev, found := result.Get(edgestore.NormalizeEmail(id))
	if !found {
		return nil, domain.NotFoundError{Resource: "developer"}
	}
	return dev, nil
}

// Save creates or updates the record remotely, then reapplies the intended
// status with the explicit status-change call. The generic save path may
// leave the remote record in whatever status the create/update produced, so
// the status call is issued unconditionally and its outcome is what the
// returned record reflects. A failure there fails the whole save: the
// caller must assume the save did not fully complete even though the field
// update may already have been persisted remotely.
func (s *DeveloperStorage) Save(ctx context.Context, dev *edgestore.Developer) error {
	ctx, span := tracer.Start(ctx, "DeveloperStorage.Save")
	defer span.End()

	status := dev.Status
	wasNew := dev.IsNew()

	if err := s.Base.DoSave(ctx, dev); err != nil {
		span.RecordError(err)
		return err
	}

	if !wasNew {
		// The shadow has served its purpose: the update addressed the
		// remote record by it.
		dev.OriginalEmail = ""
	}

	if status == "" {
		status = dev.Status
	}

	if err := s.client.SetStatus(ctx, dev.Email, status); err != nil {
		wrapped := wrapAPIError(err)
		span.RecordError(wrapped)
		return wrapped
	}
	dev.Status = status

	// Refresh both keyings so readers observe the status the explicit call
	// settled on. The remote record is already correct at this point, so a
	// cache failure downgrades to eviction and repair-on-read.
	if err := s.SetPersistentCache(ctx, []*edgestore.Developer{dev}); err != nil {
		slog.Warn("cache refresh after save failed",
			slog.String("developer", dev.Email),
			slog.String("error", err.Error()),
		)
		keys := []string{s.Key(dev.Email)}
		if dev.DeveloperID != "" {
			keys = append(keys, s.Key(dev.DeveloperID))
		}
		if err := s.Cache().Delete(ctx, keys...); err != nil {
			slog.Warn("cache eviction after save failed",
				slog.String("developer", dev.Email),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Delete removes the record remotely and drops both cache keyings.
func (s *DeveloperStorage) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "DeveloperStorage.Delete")
	defer span.End()

	id = edgestore.NormalizeEmail(id)

	// Resolve the record first so the alias keying can be dropped too; a
	// record already gone remotely is fine to delete by the given id alone.
	var aliases []string
	if dev, err := s.Load(ctx, id); err == nil {
		if dev.Email != id {
			aliases = append(aliases, dev.Email)
		}
		if dev.DeveloperID != "" && dev.DeveloperID != id {
			aliases = append(aliases, dev.DeveloperID)
		}
	}

	if err := s.Base.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}

	for _, alias := range aliases {
		if err := s.Cache().Delete(ctx, s.Key(alias)); err != nil {
			slog.Warn("alias cache eviction failed",
				slog.String("developer", alias),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// PersistentCacheTags returns the generic tags with every character the
// cache backend cannot store percent-encoded (emails may carry accented
// characters), plus the developer-id pair so invalidation by either key
// works, plus the owning user's tag so changes to that account invalidate
// this record as well.
func (s *DeveloperStorage) PersistentCacheTags(dev *edgestore.Developer) []string {
	tags := s.Base.PersistentCacheTags(dev)
	for i, tag := range tags {
		tags[i] = cache.SanitizeTag(tag)
	}

	if dev.DeveloperID != "" {
		tags = append(tags,
			developerKind+":"+dev.DeveloperID,
			developerKind+":"+dev.DeveloperID+":values",
		)
	}
	if dev.OwnerID != nil {
		tags = append(tags, fmt.Sprintf("user:%d", *dev.OwnerID))
	}
	return tags
}

// SetPersistentCache performs the generic write (keyed by email) and then
// writes a second entry for the same record under its developer-id key,
// with the same expiration and tags, so loads by developer id hit the cache
// without the re-keying merge.
func (s *DeveloperStorage) SetPersistentCache(ctx context.Context, devs []*edgestore.Developer) error {
	if err := s.Base.SetPersistentCache(ctx, devs); err != nil {
		return err
	}

	for _, dev := range devs {
		if dev.DeveloperID == "" {
			continue
		}
		encoded, err := json.Marshal(dev)
		if err != nil {
			return errors.Wrap(err, "failed to encode cache entry")
		}
		if err := s.Cache().Set(ctx, s.Key(dev.DeveloperID), encoded, s.PersistentCacheTags(dev)); err != nil {
			return err
		}
		s.Cache().MemorySet(s.Key(dev.DeveloperID), dev)
	}
	return nil
}

// ResetCache performs the generic reset and, when explicit ids were given
// on a persistently cacheable store, additionally invalidates the kind-wide
// values tag class. Every id-keyed variant, email or developer id, carries
// that tag, so the coarse sweep drops aliases the id list did not name.
func (s *DeveloperStorage) ResetCache(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "DeveloperStorage.ResetCache")
	defer span.End()

	var lookup []string
	if ids != nil {
		lookup = make([]string, len(ids))
		for i, id := range ids {
			lookup[i] = edgestore.NormalizeEmail(id)
		}
	}

	if err := s.Base.ResetCache(ctx, lookup); err != nil {
		span.RecordError(err)
		return err
	}

	if lookup != nil && s.Cache().Persistent() {
		return s.Cache().InvalidateTags(ctx, developerKind+":values")
	}
	return nil
}

func wrapAPIError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return domain.StorageError{Code: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return domain.StorageError{Message: err.Error(), Err: err}
}

var _ storage.Cacher[*edgestore.Developer] = (*DeveloperStorage)(nil)
var _ usecase.DeveloperStore = (*DeveloperStorage)(nil)
var _ DeveloperController = (*client.Client)(nil)
