package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/internal/storage"
)

type DeveloperUsecase struct {
	store  DeveloperStore
	signal InvalidationPublisher
}

func NewDeveloperUsecase(store DeveloperStore, signal InvalidationPublisher) *DeveloperUsecase {
	return &DeveloperUsecase{store: store, signal: signal}
}

func (uc *DeveloperUsecase) Get(ctx context.Context, id string) (*edgestore.Developer, error) {
	return uc.store.Load(ctx, id)
}

// List resolves a mixed list of emails and developer identifiers, keeping
// input order. A nil list returns every developer.
func (uc *DeveloperUsecase) List(ctx context.Context, ids []string) (*storage.OrderedMap[*edgestore.Developer], error) {
	return uc.store.LoadMultiple(ctx, ids)
}

// Create registers a new developer record on the remote system. Status
// defaults to active, matching what the remote system does on its own.
func (uc *DeveloperUsecase) Create(ctx context.Context, dev *edgestore.Developer) error {
	if dev.Status == "" {
		dev.Status = edgestore.StatusActive
	}
	return uc.store.Save(ctx, dev)
}

// Save persists a changed developer record.
func (uc *DeveloperUsecase) Save(ctx context.Context, dev *edgestore.Developer) error {
	return uc.store.Save(ctx, dev)
}

// SetStatus loads the record and saves it with the requested status; the
// store's save path makes the explicit status call.
func (uc *DeveloperUsecase) SetStatus(ctx context.Context, id string, status edgestore.Status) (*edgestore.Developer, error) {
	dev, err := uc.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	dev.Status = status
	if err := uc.store.Save(ctx, dev); err != nil {
		return nil, err
	}
	return dev, nil
}

// Delete removes the record and broadcasts both of its cache keyings, so
// sibling replicas drop the alias entry from their memory tiers too, not
// just the key the caller happened to address.
func (uc *DeveloperUsecase) Delete(ctx context.Context, id string) error {
	ids := []string{edgestore.NormalizeEmail(id)}
	if dev, err := uc.store.Load(ctx, id); err == nil {
		if dev.Email != ids[0] {
			ids = append(ids, dev.Email)
		}
		if dev.DeveloperID != "" && dev.DeveloperID != ids[0] {
			ids = append(ids, dev.DeveloperID)
		}
	}

	if err := uc.store.Delete(ctx, id); err != nil {
		return err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = uc.store.Key(id)
	}
	uc.broadcast(ctx, keys, nil)
	return nil
}

// ResetCache evicts cached records. With ids, only those entries (plus any
// alias variants via the values tag class); with nil ids, everything.
func (uc *DeveloperUsecase) ResetCache(ctx context.Context, ids []string) error {
	if err := uc.store.ResetCache(ctx, ids); err != nil {
		return err
	}

	var keys []string
	for _, id := range ids {
		keys = append(keys, uc.store.Key(id))
	}
	uc.broadcast(ctx, keys, []string{"developer:values"})
	return nil
}

// broadcast failures never fail the operation that triggered them; remote
// replicas fall back to their TTLs.
func (uc *DeveloperUsecase) broadcast(ctx context.Context, keys []string, tags []string) {
	event := edgestore.Event{
		Kind:      "developer",
		Keys:      keys,
		Tags:      tags,
		Timestamp: time.Now().UTC(),
	}
	if err := uc.signal.Publish(ctx, event); err != nil {
		slog.Warn("failed to broadcast invalidation",
			slog.String("error", err.Error()),
			slog.String("module", "usecase"),
		)
	}
}
