package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

// MessageWriter appends messages to topics. *kafka.Writer implements it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Topics maps aggregate kinds to topic names.
type Topics struct {
	Spread         string
	Interpretation string
	User           string
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{
		Spread:         "spread-events",
		Interpretation: "interpretation-events",
		User:           "users-events",
	}
}

// For returns the topic an event is published on.
func (t Topics) For(ev events.Event) (string, error) {
	var topic string
	switch ev.Aggregate() {
	case events.AggregateSpread:
		topic = t.Spread
	case events.AggregateInterpretation:
		topic = t.Interpretation
	case events.AggregateUser:
		topic = t.User
	}
	if topic == "" {
		return "", fmt.Errorf("no topic for aggregate %q", ev.Aggregate())
	}
	return topic, nil
}

// NewKafkaWriter builds a writer that waits for all in-sync replicas and does
// not retry on its own.
func NewKafkaWriter(brokers []string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka writer requires at least one broker")
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1,
		AllowAutoTopicCreation: false,
	}, nil
}

// Publisher appends domain events to their topics after the originating write
// has committed.
type Publisher struct {
	writer  MessageWriter
	topics  Topics
	timeout time.Duration
	logger  *log.Logger
	metrics *Metrics

	newID func() string
	now   func() time.Time
}

// NewPublisher creates a Publisher that waits at most timeout for each ack.
func NewPublisher(w MessageWriter, topics Topics, timeout time.Duration, logger *log.Logger, m *Metrics) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		writer:  w,
		topics:  topics,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Publish stamps ev with a new event id and timestamp and blocks until the
// broker acknowledges it or the send deadline passes. A failure is logged and
// returned as *PublishError; the caller must not roll back or retry.
//
// The send is detached from ctx cancellation so a caller that goes away after
// its write committed does not abort the publish; only the deadline applies.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	ev = events.Stamp(ev, p.newID(), p.now())
	meta := ev.Meta()

	topic, err := p.topics.For(ev)
	if err != nil {
		return p.fail(&PublishError{Key: ev.Key(), EventID: meta.EventID, Err: err})
	}
	msg, err := events.Encode(ev)
	if err != nil {
		return p.fail(&PublishError{Topic: topic, Key: ev.Key(), EventID: meta.EventID, Err: err})
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(sendCtx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: kafkaHeaders(msg.Headers),
		Time:    meta.Timestamp,
	})
	if err != nil {
		return p.fail(&PublishError{Topic: topic, Key: msg.Key, EventID: meta.EventID, Err: err})
	}

	p.metrics.Published.WithLabelValues(topic).Inc()
	p.logger.WithFields(log.Fields{
		"topic":   topic,
		"key":     msg.Key,
		"event":   ev.Name(),
		"eventId": meta.EventID,
	}).Debug("event published")
	return nil
}

func (p *Publisher) fail(err *PublishError) error {
	p.metrics.PublishFailures.WithLabelValues(err.Topic).Inc()
	p.logger.WithError(err.Err).WithFields(log.Fields{
		"topic":   err.Topic,
		"key":     err.Key,
		"eventId": err.EventID,
	}).Error("event dropped, publish failed")
	return err
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func kafkaHeaders(h map[string]string) []kafka.Header {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return out
}

func headerMap(hs []kafka.Header) map[string]string {
	out := make(map[string]string, len(hs))
	for _, h := range hs {
		out[h.Key] = string(h.Value)
	}
	return out
}
