// Package storage persists notifications in Postgres.
package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/butvinm-itmo/highload-sub001/notification-service/domain"
)

const defaultListLimit = 50

// Store wraps the gorm handle used by the service.
type Store struct {
	db *gorm.DB
}

// New creates a Store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the notifications table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&domain.Notification{})
}

// SaveNotification inserts n. A row with the same source event id makes the
// insert a no-op and reports false.
func (s *Store) SaveNotification(ctx context.Context, n *domain.Notification) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_event_id"}},
			DoNothing: true,
		}).
		Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListNotifications returns the newest notifications of userID.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []domain.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// CountUnread counts the unread notifications of userID.
func (s *Store) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
