package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ngonendi/edgestore"
	"github.com/ngonendi/edgestore/internal/domain"
	"github.com/ngonendi/edgestore/internal/infra/database/models"
	"github.com/ngonendi/edgestore/internal/usecase"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	model := models.User{
		Name:  user.Name,
		Email: edgestore.NormalizeEmail(user.Email),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.User{}, err
	}
	return toDomainUser(model), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (domain.User, error) {
	var model models.User
	err := r.db.WithContext(ctx).Take(&model, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return domain.User{}, domain.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(model), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var model models.User
	err := r.db.WithContext(ctx).Take(&model, "email = ?", edgestore.NormalizeEmail(email)).Error
	if err == gorm.ErrRecordNotFound {
		return domain.User{}, domain.NotFoundError{Resource: "user"}
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(model), nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id).Error
}

var _ usecase.UserRepository = (*UserRepository)(nil)

func toDomainUser(model models.User) domain.User {
	return domain.User{
		ID:    model.ID,
		Name:  model.Name,
		Email: model.Email,
		CDate: model.CDate,
		MDate: model.MDate,
	}
}
