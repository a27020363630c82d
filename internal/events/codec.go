package events

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Header names set on every record.
const (
	HeaderEventType = "eventType"
	HeaderTimestamp = "timestamp"
)

// Message is an encoded event ready to be appended to a topic.
type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

type envelope struct {
	EventID   string                 `json:"eventId"`
	EventType string                 `json:"eventType"`
	Aggregate string                 `json:"aggregate"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   sonic.NoCopyRawMessage `json:"payload"`
}

type kind struct {
	aggregate string
	eventType string
}

// DecodeError reports a record that cannot be turned into an Event. Records
// failing with a DecodeError are never retried.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode event: %s: %v", e.Reason, e.Err)
	}
	return "decode event: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes ev into a keyed message. The event must already be stamped.
func Encode(ev Event) (Message, error) {
	meta := ev.Meta()
	if meta.EventID == "" {
		return Message{}, fmt.Errorf("encode %s: missing event id", ev.Name())
	}
	if ev.Key() == "" {
		return Message{}, fmt.Errorf("encode %s: missing aggregate id", ev.Name())
	}
	payload, err := sonic.ConfigStd.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", ev.Name(), err)
	}
	ts := meta.Timestamp.UTC()
	value, err := sonic.ConfigStd.Marshal(envelope{
		EventID:   meta.EventID,
		EventType: ev.EventType(),
		Aggregate: ev.Aggregate(),
		Timestamp: ts,
		Payload:   payload,
	})
	if err != nil {
		return Message{}, fmt.Errorf("encode %s envelope: %w", ev.Name(), err)
	}
	return Message{
		Key:   ev.Key(),
		Value: value,
		Headers: map[string]string{
			HeaderEventType: ev.EventType(),
			HeaderTimestamp: ts.Format(time.RFC3339Nano),
		},
	}, nil
}

// Decode parses a record value and its headers. Unknown or malformed records
// yield a *DecodeError.
func Decode(value []byte, headers map[string]string) (Event, error) {
	headerType, ok := headers[HeaderEventType]
	if !ok {
		return nil, &DecodeError{Reason: "missing eventType header"}
	}
	switch headerType {
	case TypeCreated, TypeUpdated, TypeDeleted:
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown eventType header %q", headerType)}
	}

	var env envelope
	if err := sonic.ConfigStd.Unmarshal(value, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if env.EventType != headerType {
		return nil, &DecodeError{Reason: fmt.Sprintf("eventType header %q does not match body %q", headerType, env.EventType)}
	}
	if env.EventID == "" {
		return nil, &DecodeError{Reason: "missing eventId"}
	}

	var (
		ev  Event
		err error
	)
	switch (kind{env.Aggregate, env.EventType}) {
	case kind{AggregateSpread, TypeCreated}:
		var p SpreadCreated
		err = sonic.ConfigStd.Unmarshal(env.Payload, &p)
		ev = p
	case kind{AggregateInterpretation, TypeCreated}:
		var p InterpretationCreated
		err = sonic.ConfigStd.Unmarshal(env.Payload, &p)
		ev = p
	case kind{AggregateUser, TypeDeleted}:
		var p UserDeleted
		err = sonic.ConfigStd.Unmarshal(env.Payload, &p)
		ev = p
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown event %s/%s", env.Aggregate, env.EventType)}
	}
	if err != nil {
		return nil, &DecodeError{Reason: "malformed payload", Err: err}
	}
	if ev.Key() == "" {
		return nil, &DecodeError{Reason: ev.Name() + " without aggregate id"}
	}
	return Stamp(ev, env.EventID, env.Timestamp), nil
}
