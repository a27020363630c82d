// Package storage persists users in Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/butvinm-itmo/highload-sub001/user-service/domain"
)

// Store wraps the gorm handle used by the service.
type Store struct {
	db *gorm.DB
}

// New creates a Store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the users table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&domain.User{})
}

// FindUserByID loads a user.
func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// SaveUser inserts u. A taken username is domain.ErrConflict.
func (s *Store) SaveUser(ctx context.Context, u *domain.User) error {
	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

// DeleteUserByID removes a user and reports whether it existed.
func (s *Store) DeleteUserByID(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
