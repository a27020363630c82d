package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/butvinm-itmo/highload-sub001/internal/events"
)

const tracerName = "github.com/butvinm-itmo/highload-sub001/internal/messaging"

// Reader is a consumer-group subscription to one topic. *kafka.Reader
// implements it.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a new subscription. It is called again after every
// broker failure.
type ReaderFactory func(ctx context.Context) (Reader, error)

// KafkaReaderFactory returns a factory that checks a broker is reachable and
// then joins groupID on topic. Offsets are committed explicitly.
func KafkaReaderFactory(brokers []string, groupID, topic string, logger *log.Logger) ReaderFactory {
	return func(ctx context.Context) (Reader, error) {
		if len(brokers) == 0 {
			return nil, errors.New("kafka reader requires at least one broker")
		}
		var dialErr error
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err != nil {
				dialErr = err
				continue
			}
			_ = conn.Close()
			dialErr = nil
			break
		}
		if dialErr != nil {
			return nil, dialErr
		}
		entry := logger.WithField("topic", topic)
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: 0,
			StartOffset:    kafka.FirstOffset,
			ErrorLogger:    kafka.LoggerFunc(entry.Errorf),
		}), nil
	}
}

// Handler applies one decoded event. A returned error is handled according to
// the consumer's Policy.
type Handler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev events.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev events.Event) error { return f(ctx, ev) }

// Policy decides what happens to a record whose handler failed.
type Policy int

const (
	// PolicySkip logs the failure, dead-letters the record and commits past it.
	PolicySkip Policy = iota
	// PolicyRetry retries the record in place with backoff and never commits
	// it until the handler succeeds. Later records of the same partition wait.
	PolicyRetry
)

func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyRetry:
		return "retry"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Topic   string
	GroupID string
	Policy  Policy

	RetryInitial  time.Duration
	RetryMax      time.Duration
	CommitTimeout time.Duration
	// PartitionBuffer is the backlog a partition worker may build up before a
	// warning is logged. The backlog itself is unbounded.
	PartitionBuffer int
}

func (c *ConsumerConfig) defaults() {
	if c.RetryInitial <= 0 {
		c.RetryInitial = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = time.Minute
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 10 * time.Second
	}
	if c.PartitionBuffer <= 0 {
		c.PartitionBuffer = 64
	}
}

// Consumer decodes records of one topic and hands them to a Handler. Records of
// a partition are processed strictly in order by a dedicated worker; different
// partitions run concurrently. An offset is committed only after its record was
// handled or deliberately skipped.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler
	dlq     DeadLetterSink
	logger  *log.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewConsumer creates a Consumer. dlq may be nil.
func NewConsumer(cfg ConsumerConfig, h Handler, dlq DeadLetterSink, logger *log.Logger, m *Metrics) *Consumer {
	cfg.defaults()
	return &Consumer{
		cfg:     cfg,
		handler: h,
		dlq:     dlq,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

// Topic returns the subscribed topic.
func (c *Consumer) Topic() string { return c.cfg.Topic }

// consume runs one subscription session until ctx is done (returns nil) or the
// broker fails (returns *BrokerError). onFetch is called after every
// successful fetch.
func (c *Consumer) consume(ctx context.Context, r Reader, onFetch func()) error {
	sess, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	workers := make(map[int]*partitionQueue)
	defer func() {
		for _, q := range workers {
			q.close()
		}
		wg.Wait()
	}()

	for {
		msg, err := r.FetchMessage(sess)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if sess.Err() != nil {
				return context.Cause(sess)
			}
			return &BrokerError{Op: "fetch", Topic: c.cfg.Topic, Err: err}
		}
		if onFetch != nil {
			onFetch()
		}

		q, ok := workers[msg.Partition]
		if !ok {
			q = newPartitionQueue(c.cfg.PartitionBuffer)
			workers[msg.Partition] = q
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.worker(sess, cancel, r, q)
			}()
		}
		if n := q.push(msg); n == c.cfg.PartitionBuffer {
			c.logger.WithFields(log.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"backlog":   n,
			}).Warn("partition worker is falling behind")
		}
	}
}

// worker processes one partition. Once the session ends, remaining records are
// drained without processing and stay uncommitted for redelivery.
func (c *Consumer) worker(sess context.Context, cancel context.CancelCauseFunc, r Reader, q *partitionQueue) {
	work := context.WithoutCancel(sess)
	for {
		msg, ok := q.pop()
		if !ok {
			return
		}
		if sess.Err() != nil {
			continue
		}
		if err := c.process(work, sess, r, msg); err != nil && !errors.Is(err, errStopped) {
			cancel(err)
		}
	}
}

// process handles one record. Handler work runs on ctx, which is not cancelled
// at shutdown; sess only interrupts retry waits.
func (c *Consumer) process(ctx, sess context.Context, r Reader, msg kafka.Message) error {
	ctx, span := c.tracer.Start(ctx, "messaging.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		))
	defer span.End()

	entry := c.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	ev, err := events.Decode(msg.Value, headerMap(msg.Headers))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		entry.WithError(err).Warn("skipping undecodable record")
		c.metrics.Consumed.WithLabelValues(msg.Topic, outcomeDecodeError).Inc()
		c.deadLetter(ctx, msg, ReasonDecode, err)
		return c.commit(ctx, r, msg)
	}

	span.SetAttributes(
		attribute.String("event.name", ev.Name()),
		attribute.String("event.id", ev.Meta().EventID),
	)
	entry = entry.WithFields(log.Fields{"event": ev.Name(), "eventId": ev.Meta().EventID})

	if err := c.handle(ctx, sess, entry, ev, msg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return c.commit(ctx, r, msg)
}

func (c *Consumer) handle(ctx, sess context.Context, entry *log.Entry, ev events.Event, msg kafka.Message) error {
	var backoff *Backoff
	for {
		err := c.invoke(ctx, ev, msg.Topic)
		if err == nil {
			c.metrics.Consumed.WithLabelValues(msg.Topic, outcomeHandled).Inc()
			entry.Debug("event handled")
			return nil
		}
		herr := &HandlerError{Event: ev.Name(), EventID: ev.Meta().EventID, Err: err}
		trace.SpanFromContext(ctx).RecordError(herr)

		if c.cfg.Policy == PolicySkip || errors.Is(err, events.ErrUnhandled) {
			entry.WithError(err).Error("handler failed, skipping record")
			c.metrics.Consumed.WithLabelValues(msg.Topic, outcomeSkipped).Inc()
			c.deadLetter(ctx, msg, ReasonHandler, herr)
			return nil
		}

		if backoff == nil {
			backoff = NewBackoff(c.cfg.RetryInitial, c.cfg.RetryMax)
		}
		delay := backoff.Next()
		attempt, _ := backoff.State()
		c.metrics.Consumed.WithLabelValues(msg.Topic, outcomeRetried).Inc()
		entry.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"retryIn": delay.String(),
		}).Warn("handler failed, retrying record")
		if !sleepCtx(sess, delay) {
			entry.Info("consumer stopping, record left uncommitted")
			return errStopped
		}
	}
}

func (c *Consumer) invoke(ctx context.Context, ev events.Event, topic string) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.HandleDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return c.handler.Handle(ctx, ev)
}

func (c *Consumer) commit(ctx context.Context, r Reader, msg kafka.Message) error {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CommitTimeout)
	defer cancel()
	if err := r.CommitMessages(cctx, msg); err != nil {
		return &BrokerError{Op: "commit", Topic: msg.Topic, Err: err}
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, reason string, cause error) {
	c.metrics.DeadLetters.WithLabelValues(msg.Topic, reason).Inc()
	if c.dlq == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, c.cfg.CommitTimeout)
	defer cancel()
	if err := c.dlq.Send(sctx, newDeadLetter(msg, reason, cause)); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":  msg.Topic,
			"offset": msg.Offset,
			"reason": reason,
		}).Error("failed to write dead letter")
	}
}
