// Package domain manages user accounts and announces their removal.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrInvalid  = errors.New("invalid user")
	ErrConflict = errors.New("username taken")
)

// User is an account of the platform.
type User struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Username  string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// Store persists users.
type Store interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	// DeleteUserByID reports whether a row was removed.
	DeleteUserByID(ctx context.Context, id string) (bool, error)
}

// Publisher appends events after the originating write has committed.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// UserService implements the user write paths.
type UserService struct {
	store     Store
	publisher Publisher
	logger    *log.Logger

	newID func() string
	now   func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(store Store, p Publisher, logger *log.Logger) *UserService {
	return &UserService{store: store, publisher: p, logger: logger, newID: uuid.NewString, now: time.Now}
}

// CreateUser stores a new user.
func (s *UserService) CreateUser(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalid)
	}
	u := &User{ID: s.newID(), Username: username, CreatedAt: s.now().UTC()}
	if err := s.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns the user with id.
func (s *UserService) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.FindUserByID(ctx, id)
}

// DeleteUser removes the user and then announces it so other services drop
// the user's data. Deleting a missing user is ErrNotFound and announces
// nothing.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	deleted, err := s.store.DeleteUserByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.WithField("userId", id).Info("user deleted")

	if err := s.publisher.Publish(ctx, events.UserDeleted{UserID: id}); err != nil {
		s.logger.WithField("userId", id).Debug("event dropped after commit")
	}
	return nil
}
