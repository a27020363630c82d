package domain

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

// AuthoredData removes everything a user authored.
type AuthoredData interface {
	DeleteInterpretationsByAuthor(ctx context.Context, userID string) (int64, error)
	DeleteSpreadsByAuthor(ctx context.Context, userID string) (int64, error)
}

// CascadeStore runs fn in one transaction.
type CascadeStore interface {
	Transaction(ctx context.Context, fn func(AuthoredData) error) error
}

// CascadeExecutor removes the spreads and interpretations of deleted users.
type CascadeExecutor struct {
	store  CascadeStore
	logger *log.Logger
}

// NewCascadeExecutor creates a CascadeExecutor.
func NewCascadeExecutor(store CascadeStore, logger *log.Logger) *CascadeExecutor {
	return &CascadeExecutor{store: store, logger: logger}
}

// Handle dispatches a consumed event.
func (c *CascadeExecutor) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.UserDeleted:
		return c.DeleteUserData(ctx, e.UserID)
	case events.SpreadCreated, events.InterpretationCreated:
		c.logger.WithFields(log.Fields{
			"event":   ev.Name(),
			"eventId": ev.Meta().EventID,
		}).Debug("event ignored")
		return nil
	default:
		return fmt.Errorf("%w: %s", events.ErrUnhandled, ev.Name())
	}
}

// DeleteUserData deletes the interpretations written by userID, then the
// spreads userID authored together with whatever hangs off them. Running it
// again for the same user deletes nothing.
func (c *CascadeExecutor) DeleteUserData(ctx context.Context, userID string) error {
	var interps, spreads int64
	err := c.store.Transaction(ctx, func(tx AuthoredData) error {
		var err error
		if interps, err = tx.DeleteInterpretationsByAuthor(ctx, userID); err != nil {
			return fmt.Errorf("delete interpretations: %w", err)
		}
		if spreads, err = tx.DeleteSpreadsByAuthor(ctx, userID); err != nil {
			return fmt.Errorf("delete spreads: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.WithFields(log.Fields{
		"userId":          userID,
		"interpretations": interps,
		"spreads":         spreads,
	}).Info("user data removed")
	return nil
}
