// Package eventstest provides sample events for tests.
package eventstest

import (
	"time"

	"github.com/google/uuid"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

// Samples returns one stamped event of every kind. Handlers use it to check
// that no kind falls through to their default branch.
func Samples() []events.Event {
	q := "What does the week hold?"
	return []events.Event{
		Stamped(events.SpreadCreated{
			SpreadID:       "spread-1",
			AuthorID:       "author-1",
			AuthorUsername: "alice",
			Question:       &q,
			LayoutTypeName: "THREE_CARDS",
			CardsCount:     3,
		}),
		Stamped(events.InterpretationCreated{
			InterpretationID:             "interp-1",
			SpreadID:                     "spread-1",
			SpreadAuthorID:               "author-1",
			InterpretationAuthorID:       "author-2",
			InterpretationAuthorUsername: "bob",
			TextPreview:                  "The tower means change",
		}),
		Stamped(events.UserDeleted{UserID: "author-1"}),
	}
}

// Stamped gives ev a fresh event id and the current time.
func Stamped(ev events.Event) events.Event {
	return events.Stamp(ev, uuid.NewString(), time.Now())
}
