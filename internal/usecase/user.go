package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/internal/domain"
)

type UserUsecase struct {
	repo   UserRepository
	cache  CacheInvalidator
	signal InvalidationPublisher
}

func NewUserUsecase(repo UserRepository, cache CacheInvalidator, signal InvalidationPublisher) *UserUsecase {
	return &UserUsecase{repo: repo, cache: cache, signal: signal}
}

func (uc *UserUsecase) Create(ctx context.Context, user domain.User) (domain.User, error) {
	return uc.repo.Create(ctx, user)
}

func (uc *UserUsecase) Get(ctx context.Context, id int64) (domain.User, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *UserUsecase) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return uc.repo.GetByEmail(ctx, email)
}

// Delete removes the local account and invalidates the user's cache tag,
// dropping every cached developer record the account owned.
func (uc *UserUsecase) Delete(ctx context.Context, id int64) error {
	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}

	tag := fmt.Sprintf("user:%d", id)
	if err := uc.cache.InvalidateTags(ctx, tag); err != nil {
		return err
	}

	event := edgestore.Event{
		Kind:      "user",
		Tags:      []string{tag},
		Timestamp: time.Now().UTC(),
	}
	if err := uc.signal.Publish(ctx, event); err != nil {
		slog.Warn("failed to broadcast invalidation",
			slog.String("error", err.Error()),
			slog.String("module", "usecase"),
		)
	}
	return nil
}
