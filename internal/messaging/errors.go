package messaging

import (
	"errors"
	"fmt"
)

// errStopped is returned by a partition worker that gave up on a record because
// the consumer is shutting down. The record stays uncommitted.
var errStopped = errors.New("consumer stopped")

// BrokerError is a connect, fetch or commit failure. The supervisor restarts
// the subscription after a backoff.
type BrokerError struct {
	Op    string
	Topic string
	Err   error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s on %s: %v", e.Op, e.Topic, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// PublishError is returned when an event could not be appended before the send
// deadline. It is logged and dropped; publishing is never retried.
type PublishError struct {
	Topic   string
	Key     string
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish event %s to %s (key %s): %v", e.EventID, e.Topic, e.Key, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// HandlerError wraps a business-logic or storage failure for one record.
type HandlerError struct {
	Event   string
	EventID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s %s: %v", e.Event, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
