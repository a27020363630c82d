// Package domain holds spreads, interpretations and the reactions of the
// divination service to events of other services.
package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

// Spread is a set of cards laid out for a question.
type Spread struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	AuthorID       string    `gorm:"type:uuid;not null;index" json:"authorId"`
	Question       *string   `gorm:"type:text" json:"question,omitempty"`
	LayoutTypeName string    `gorm:"type:varchar(64);not null" json:"layoutTypeName"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`

	Cards           []CardPlacement  `gorm:"constraint:OnDelete:CASCADE" json:"cards"`
	Interpretations []Interpretation `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// CardPlacement is one card at a position of a spread.
type CardPlacement struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	SpreadID string `gorm:"type:uuid;not null;index" json:"-"`
	CardName string `gorm:"type:varchar(64);not null" json:"cardName"`
	Position int    `gorm:"not null" json:"position"`
	Reversed bool   `gorm:"not null;default:false" json:"reversed"`
}

// Interpretation is a reading of a spread, possibly by another user.
type Interpretation struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	SpreadID  string    `gorm:"type:uuid;not null;index" json:"spreadId"`
	AuthorID  string    `gorm:"type:uuid;not null;index" json:"authorId"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// Card is a card requested for a new spread.
type Card struct {
	Name     string `json:"cardName"`
	Reversed bool   `json:"reversed"`
}

// NewSpread describes a spread to create.
type NewSpread struct {
	Question       *string `json:"question"`
	LayoutTypeName string  `json:"layoutTypeName"`
	Cards          []Card  `json:"cards"`
}

func (n NewSpread) validate() error {
	if n.LayoutTypeName == "" {
		return fmt.Errorf("%w: layoutTypeName is required", ErrInvalid)
	}
	if len(n.Cards) == 0 {
		return fmt.Errorf("%w: at least one card is required", ErrInvalid)
	}
	for i, c := range n.Cards {
		if c.Name == "" {
			return fmt.Errorf("%w: card %d has no name", ErrInvalid, i)
		}
	}
	return nil
}
