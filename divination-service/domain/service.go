package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

// Store persists spreads and interpretations.
type Store interface {
	SaveSpread(ctx context.Context, s *Spread) error
	FindSpreadByID(ctx context.Context, id string) (*Spread, error)
	SaveInterpretation(ctx context.Context, i *Interpretation) error
}

// Publisher appends events after the originating write has committed.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Directory resolves display names of users.
type Directory interface {
	Username(ctx context.Context, userID string) (string, error)
}

// SpreadService implements the write paths that emit spread and
// interpretation events.
type SpreadService struct {
	store     Store
	publisher Publisher
	users     Directory
	logger    *log.Logger

	newID func() string
	now   func() time.Time
}

// NewSpreadService creates a SpreadService.
func NewSpreadService(store Store, p Publisher, users Directory, logger *log.Logger) *SpreadService {
	return &SpreadService{
		store:     store,
		publisher: p,
		users:     users,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// CreateSpread stores a spread authored by authorID and then announces it.
// A failed announcement is logged and does not undo the spread.
func (s *SpreadService) CreateSpread(ctx context.Context, authorID string, req NewSpread) (*Spread, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	username, err := s.users.Username(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	spread := &Spread{
		ID:             s.newID(),
		AuthorID:       authorID,
		Question:       req.Question,
		LayoutTypeName: req.LayoutTypeName,
		CreatedAt:      s.now().UTC(),
		Cards:          make([]CardPlacement, 0, len(req.Cards)),
	}
	for i, c := range req.Cards {
		spread.Cards = append(spread.Cards, CardPlacement{
			ID:       s.newID(),
			SpreadID: spread.ID,
			CardName: c.Name,
			Position: i + 1,
			Reversed: c.Reversed,
		})
	}
	if err := s.store.SaveSpread(ctx, spread); err != nil {
		return nil, fmt.Errorf("save spread: %w", err)
	}

	s.announce(ctx, events.SpreadCreated{
		SpreadID:       spread.ID,
		AuthorID:       authorID,
		AuthorUsername: username,
		Question:       spread.Question,
		LayoutTypeName: spread.LayoutTypeName,
		CardsCount:     len(spread.Cards),
	})
	return spread, nil
}

// AddInterpretation stores an interpretation of spreadID by authorID and then
// announces it to the spread's author.
func (s *SpreadService) AddInterpretation(ctx context.Context, spreadID, authorID, text string) (*Interpretation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalid)
	}
	spread, err := s.store.FindSpreadByID(ctx, spreadID)
	if err != nil {
		return nil, err
	}
	username, err := s.users.Username(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	interp := &Interpretation{
		ID:        s.newID(),
		SpreadID:  spread.ID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveInterpretation(ctx, interp); err != nil {
		return nil, fmt.Errorf("save interpretation: %w", err)
	}

	s.announce(ctx, events.InterpretationCreated{
		InterpretationID:             interp.ID,
		SpreadID:                     spread.ID,
		SpreadAuthorID:               spread.AuthorID,
		InterpretationAuthorID:       authorID,
		InterpretationAuthorUsername: username,
		TextPreview:                  events.Preview(text),
	})
	return interp, nil
}

// announce publishes ev. The publisher has already logged a failure; the write
// stands either way.
func (s *SpreadService) announce(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WithField("event", ev.Name()).WithField("key", ev.Key()).Debug("event dropped after commit")
	}
}
