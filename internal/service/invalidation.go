package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/internal/cache"
)

const invalidationChannel = "edgestore:invalidation"

// InvalidationService broadcasts cache invalidation events over redis
// pub/sub. Other replicas mirror the events into their memory tiers, and
// the realtime endpoint streams them to interested clients. The broadcast
// is observability and best-effort mirroring, not a transactional
// guarantee: a replica that misses an event falls back to its TTL.
type InvalidationService struct {
	rdb *redis.Client
}

func NewInvalidationService(redisClient *redis.Client) *InvalidationService {
	return &InvalidationService{
		rdb: redisClient,
	}
}

func (s *InvalidationService) Publish(ctx context.Context, event edgestore.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, invalidationChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime streams invalidation events to output until ctx ends. Prefix
// lists received on input narrow the stream to events whose keys or tags
// match any prefix; an empty list passes everything.
func (s *InvalidationService) Realtime(ctx context.Context, input chan []string, output chan edgestore.Event) {
	pubsub := s.rdb.Subscribe(ctx, invalidationChannel)
	defer pubsub.Close()

	var filters []string
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case prefixes, ok := <-input:
			if !ok {
				return
			}
			filters = prefixes
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event edgestore.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Error("failed to decode invalidation event",
					slog.String("error", err.Error()),
					slog.String("module", "invalidation"),
				)
				continue
			}
			if !matches(filters, event) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case output <- event:
			}
		}
	}
}

// Mirror applies broadcast invalidations to this replica's memory tier.
// Runs until ctx ends; intended as a long-lived goroutine.
func (s *InvalidationService) Mirror(ctx context.Context, tt *cache.TwoTier) {
	pubsub := s.rdb.Subscribe(ctx, invalidationChannel)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var event edgestore.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Error("failed to decode invalidation event",
					slog.String("error", err.Error()),
					slog.String("module", "invalidation"),
				)
				continue
			}
			if len(event.Keys) == 0 {
				tt.MemoryFlush()
				continue
			}
			tt.MemoryDelete(event.Keys...)
		}
	}
}

func matches(filters []string, event edgestore.Event) bool {
	if len(filters) == 0 {
		return true
	}
	for _, prefix := range filters {
		for _, key := range event.Keys {
			if strings.HasPrefix(key, prefix) {
				return true
			}
		}
		for _, tag := range event.Tags {
			if strings.HasPrefix(tag, prefix) {
				return true
			}
		}
	}
	return false
}
