// Package domain turns interpretation events into notifications.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

// Store persists notifications.
type Store interface {
	// SaveNotification inserts n unless a notification with the same
	// SourceEventID exists. It reports whether a row was inserted.
	SaveNotification(ctx context.Context, n *Notification) (bool, error)
}

// Broadcaster pushes a message to the live channels of a user. It never fails;
// delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, userID string, msg any)
}

// UnreadInvalidator drops cached unread counters.
type UnreadInvalidator interface {
	InvalidateUnread(ctx context.Context, userID string)
}

// Materializer creates a notification for the spread author when someone else
// interprets their spread.
type Materializer struct {
	store       Store
	broadcaster Broadcaster
	cache       UnreadInvalidator
	logger      *log.Logger

	newID func() string
	now   func() time.Time
}

// NewMaterializer creates a Materializer. cache may be nil.
func NewMaterializer(store Store, b Broadcaster, cache UnreadInvalidator, logger *log.Logger) *Materializer {
	return &Materializer{
		store:       store,
		broadcaster: b,
		cache:       cache,
		logger:      logger,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Handle dispatches a consumed event.
func (m *Materializer) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.InterpretationCreated:
		return m.Materialize(ctx, e)
	case events.SpreadCreated, events.UserDeleted:
		m.logger.WithFields(log.Fields{
			"event":   ev.Name(),
			"eventId": ev.Meta().EventID,
		}).Debug("event ignored")
		return nil
	default:
		return fmt.Errorf("%w: %s", events.ErrUnhandled, ev.Name())
	}
}

// Materialize stores and broadcasts the notification for ev. A storage error is
// returned; broadcasting cannot fail.
func (m *Materializer) Materialize(ctx context.Context, ev events.InterpretationCreated) error {
	entry := m.logger.WithFields(log.Fields{
		"eventId":          ev.Meta().EventID,
		"spreadId":         ev.SpreadID,
		"interpretationId": ev.InterpretationID,
	})
	if ev.SelfAuthored() {
		entry.Debug("interpretation by spread author, no notification")
		return nil
	}

	spreadID := ev.SpreadID
	interpretationID := ev.InterpretationID
	n := &Notification{
		ID:               m.newID(),
		UserID:           ev.SpreadAuthorID,
		Type:             NewInterpretation,
		Title:            newInterpretationTitle,
		Message:          interpretationMessage(ev.InterpretationAuthorUsername, ev.TextPreview),
		SpreadID:         &spreadID,
		InterpretationID: &interpretationID,
		SourceEventID:    ev.Meta().EventID,
		CreatedAt:        m.now().UTC(),
	}
	created, err := m.store.SaveNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	if !created {
		entry.Info("notification already materialized, skipping duplicate")
		return nil
	}
	entry.WithField("userId", n.UserID).Info("notification created")

	if m.cache != nil {
		m.cache.InvalidateUnread(ctx, n.UserID)
	}
	m.broadcaster.Broadcast(ctx, n.UserID, n.ToDTO())
	return nil
}
