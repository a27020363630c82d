package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// SupervisorState is a snapshot of a subscription's health.
type SupervisorState struct {
	Topic    string
	Failures int
	Backoff  time.Duration
}

// Healthy reports whether the subscription is currently connected.
func (s SupervisorState) Healthy() bool { return s.Failures == 0 }

// Supervisor keeps a Consumer subscribed for the lifetime of the process. Any
// broker failure tears the session down and, after an exponential backoff,
// opens a new one. It never gives up on its own.
type Supervisor struct {
	consumer *Consumer
	factory  ReaderFactory
	backoff  *Backoff
	logger   *log.Logger
	metrics  *Metrics
}

// NewSupervisor wraps c. Reconnect delays start at initial, double on each
// consecutive failure and are capped at max.
func NewSupervisor(c *Consumer, factory ReaderFactory, initial, max time.Duration, logger *log.Logger, m *Metrics) *Supervisor {
	return &Supervisor{
		consumer: c,
		factory:  factory,
		backoff:  NewBackoff(initial, max),
		logger:   logger,
		metrics:  m,
	}
}

// Run blocks until ctx is done. It returns nil on shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	topic := s.consumer.Topic()
	entry := s.logger.WithField("topic", topic)
	entry.Info("consumer starting")
	s.metrics.Backoff.WithLabelValues(topic).Set(0)

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			entry.Info("consumer stopped")
			return nil
		}
		if err == nil {
			err = &BrokerError{Op: "fetch", Topic: topic, Err: errors.New("session ended")}
		}

		delay := s.backoff.Next()
		attempt, _ := s.backoff.State()
		s.metrics.Restarts.WithLabelValues(topic).Inc()
		s.metrics.Backoff.WithLabelValues(topic).Set(delay.Seconds())
		entry.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"retryIn": delay.String(),
		}).Error("subscription failed, restarting")

		if !sleepCtx(ctx, delay) {
			entry.Info("consumer stopped")
			return nil
		}
	}
}

func (s *Supervisor) session(ctx context.Context) error {
	topic := s.consumer.Topic()
	r, err := s.factory(ctx)
	if err != nil {
		var be *BrokerError
		if errors.As(err, &be) {
			return err
		}
		return &BrokerError{Op: "connect", Topic: topic, Err: err}
	}
	defer func() {
		if err := r.Close(); err != nil {
			s.logger.WithError(err).WithField("topic", topic).Warn("failed to close reader")
		}
	}()
	return s.consumer.consume(ctx, r, s.recovered)
}

func (s *Supervisor) recovered() {
	if s.backoff.Reset() {
		s.metrics.Backoff.WithLabelValues(s.consumer.Topic()).Set(0)
		s.logger.WithField("topic", s.consumer.Topic()).Info("subscription recovered")
	}
}

// State returns the current failure streak and reconnect delay.
func (s *Supervisor) State() SupervisorState {
	failures, delay := s.backoff.State()
	return SupervisorState{Topic: s.consumer.Topic(), Failures: failures, Backoff: delay}
}

// Healthy returns a health check failing while any of subs is disconnected.
func Healthy(subs ...*Supervisor) func(context.Context) error {
	return func(context.Context) error {
		var errs []error
		for _, s := range subs {
			if st := s.State(); !st.Healthy() {
				errs = append(errs, fmt.Errorf("%s: %d consecutive failures, retrying in %s", st.Topic, st.Failures, st.Backoff))
			}
		}
		return errors.Join(errs...)
	}
}
