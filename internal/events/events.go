// Package events defines the domain events exchanged between services and their
// wire encoding.
package events

import (
	"errors"
	"time"
	"unicode/utf8"
)

// Event types carried in the eventType header and envelope body.
const (
	TypeCreated = "CREATED"
	TypeUpdated = "UPDATED"
	TypeDeleted = "DELETED"
)

// Aggregate kinds. Each aggregate kind is published on its own topic.
const (
	AggregateSpread         = "spread"
	AggregateInterpretation = "interpretation"
	AggregateUser           = "user"
)

// ErrUnhandled is returned by handlers that receive an event kind they do not
// know how to dispatch.
var ErrUnhandled = errors.New("unhandled event kind")

// Metadata is stamped on every event when it is published.
type Metadata struct {
	EventID   string
	Timestamp time.Time
}

// Meta returns the event metadata.
func (m Metadata) Meta() Metadata { return m }

// Event is a closed set: SpreadCreated, InterpretationCreated and UserDeleted.
// Consumers dispatch with a type switch and return ErrUnhandled from the
// default branch.
type Event interface {
	Meta() Metadata
	Name() string
	Aggregate() string
	EventType() string
	// Key is the primary aggregate id used as the partition key.
	Key() string

	withMeta(Metadata) Event
}

// SpreadCreated is published by the divination service after a spread is stored.
type SpreadCreated struct {
	Metadata `json:"-"`

	SpreadID       string  `json:"spreadId"`
	AuthorID       string  `json:"authorId"`
	AuthorUsername string  `json:"authorUsername"`
	Question       *string `json:"question,omitempty"`
	LayoutTypeName string  `json:"layoutTypeName"`
	CardsCount     int     `json:"cardsCount"`
}

func (SpreadCreated) Name() string { return "SpreadCreated" }
func (SpreadCreated) Aggregate() string { return AggregateSpread }
func (SpreadCreated) EventType() string { return TypeCreated }
func (e SpreadCreated) Key() string { return e.SpreadID }
func (e SpreadCreated) withMeta(m Metadata) Event {
	e.Metadata = m
	return e
}

// InterpretationCreated is published when an interpretation is attached to a
// spread. It is keyed by the spread so that it follows the spread's own events.
type InterpretationCreated struct {
	Metadata `json:"-"`

	InterpretationID             string `json:"interpretationId"`
	SpreadID                     string `json:"spreadId"`
	SpreadAuthorID               string `json:"spreadAuthorId"`
	InterpretationAuthorID       string `json:"interpretationAuthorId"`
	InterpretationAuthorUsername string `json:"interpretationAuthorUsername"`
	TextPreview                  string `json:"textPreview"`
}

func (InterpretationCreated) Name() string { return "InterpretationCreated" }
func (InterpretationCreated) Aggregate() string { return AggregateInterpretation }
func (InterpretationCreated) EventType() string { return TypeCreated }
func (e InterpretationCreated) Key() string { return e.SpreadID }
func (e InterpretationCreated) withMeta(m Metadata) Event {
	e.Metadata = m
	return e
}

// SelfAuthored reports whether the interpretation was written by the spread's
// own author.
func (e InterpretationCreated) SelfAuthored() bool {
	return e.SpreadAuthorID == e.InterpretationAuthorID
}

// UserDeleted is published by the user service after the user row is removed.
type UserDeleted struct {
	Metadata `json:"-"`

	UserID string `json:"userId"`
}

func (UserDeleted) Name() string { return "UserDeleted" }
func (UserDeleted) Aggregate() string { return AggregateUser }
func (UserDeleted) EventType() string { return TypeDeleted }
func (e UserDeleted) Key() string { return e.UserID }
func (e UserDeleted) withMeta(m Metadata) Event {
	e.Metadata = m
	return e
}

// Stamp returns a copy of ev carrying the given metadata.
func Stamp(ev Event, id string, ts time.Time) Event {
	return ev.withMeta(Metadata{EventID: id, Timestamp: ts.UTC()})
}

// PreviewLimit is the number of characters of interpretation text carried in
// InterpretationCreated.
const PreviewLimit = 100

// Preview truncates text to PreviewLimit characters.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLimit {
		return text
	}
	return string([]rune(text)[:PreviewLimit])
}
