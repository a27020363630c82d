// Package storage persists spreads and interpretations in Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/butvinm-itmo/highload-sub001/divination-service/domain"
)

// Store wraps the gorm handle used by the service.
type Store struct {
	db *gorm.DB
}

// New creates a Store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the spread tables. Card placements and
// interpretations reference their spread with ON DELETE CASCADE.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&domain.Spread{}, &domain.CardPlacement{}, &domain.Interpretation{})
}

// SaveSpread inserts s together with its card placements.
func (s *Store) SaveSpread(ctx context.Context, sp *domain.Spread) error {
	return s.db.WithContext(ctx).Create(sp).Error
}

// FindSpreadByID loads a spread with its cards.
func (s *Store) FindSpreadByID(ctx context.Context, id string) (*domain.Spread, error) {
	var sp domain.Spread
	err := s.db.WithContext(ctx).Preload("Cards").First(&sp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find spread: %w", err)
	}
	return &sp, nil
}

// SaveInterpretation inserts i.
func (s *Store) SaveInterpretation(ctx context.Context, i *domain.Interpretation) error {
	return s.db.WithContext(ctx).Create(i).Error
}

// DeleteInterpretationsByAuthor removes every interpretation written by userID.
func (s *Store) DeleteInterpretationsByAuthor(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("author_id = ?", userID).Delete(&domain.Interpretation{})
	return res.RowsAffected, res.Error
}

// DeleteSpreadsByAuthor removes every spread of userID. The database removes
// their cards and interpretations.
func (s *Store) DeleteSpreadsByAuthor(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("author_id = ?", userID).Delete(&domain.Spread{})
	return res.RowsAffected, res.Error
}

// CountByAuthor counts the spreads and interpretations authored by userID.
func (s *Store) CountByAuthor(ctx context.Context, userID string) (spreads, interpretations int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&domain.Spread{}).Where("author_id = ?", userID).Count(&spreads).Error; err != nil {
		return 0, 0, err
	}
	if err = db.Model(&domain.Interpretation{}).Where("author_id = ?", userID).Count(&interpretations).Error; err != nil {
		return 0, 0, err
	}
	return spreads, interpretations, nil
}

// Transaction runs fn against a Store bound to one transaction.
func (s *Store) Transaction(ctx context.Context, fn func(domain.AuthoredData) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
