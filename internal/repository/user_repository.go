package repository

import (
	"context"
	"errors"
	"strings"

	"txstatus-backend/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines the interface for User data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// FindByWalletAddress case-insensitive match on the primary wallet
	FindByWalletAddress(ctx context.Context, address string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByWalletAddress(ctx context.Context, address string) (*models.User, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, ErrNotFound
	}

	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(primary_wallet_address) = ?", address).
		Order("created_at ASC").
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}
