package stream

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/messaging"
)

type relayMessage struct {
	UserID  string                 `json:"userId"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}

// RedisRelay fans broadcasts out to every instance through a Redis channel.
// Each instance runs Subscribe to deliver them to its local Registry.
type RedisRelay struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger
	metrics *Metrics
}

// NewRedisRelay creates a relay publishing on channel.
func NewRedisRelay(rc *redis.Client, channel string, logger *log.Logger, m *Metrics) *RedisRelay {
	return &RedisRelay{rc: rc, channel: channel, logger: logger, metrics: m}
}

// Broadcast publishes msg for userID. Failures are logged and dropped.
func (r *RedisRelay) Broadcast(ctx context.Context, userID string, msg any) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		r.logger.WithError(err).WithField("userId", userID).Error("failed to encode broadcast")
		return
	}
	data, err := sonic.Marshal(relayMessage{UserID: userID, Payload: payload})
	if err != nil {
		r.logger.WithError(err).WithField("userId", userID).Error("failed to encode relay message")
		return
	}
	if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
		r.metrics.RelayErrors.Inc()
		r.logger.WithError(err).WithFields(log.Fields{
			"userId":  userID,
			"channel": r.channel,
		}).Warn("unable to publish notification to relay")
	}
}

// Subscribe delivers relayed messages to reg until ctx is done, resubscribing
// with backoff whenever the Redis connection drops.
func Subscribe(ctx context.Context, rc *redis.Client, channel string, reg *Registry, logger *log.Logger, m *Metrics) {
	backoff := messaging.NewBackoff(time.Second, 30*time.Second)
	entry := logger.WithField("channel", channel)
	for {
		sub := rc.Subscribe(ctx, channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			m.RelayErrors.Inc()
			delay := backoff.Next()
			entry.WithError(err).WithField("retryIn", delay.String()).Error("relay subscribe failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		if backoff.Reset() {
			entry.Info("relay subscription recovered")
		}

		relay(ctx, sub.Channel(), reg, entry, m)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		entry.Error("relay channel closed, resubscribing")
	}
}

func relay(ctx context.Context, ch <-chan *redis.Message, reg *Registry, entry *log.Entry, m *Metrics) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm relayMessage
			if err := sonic.UnmarshalString(msg.Payload, &rm); err != nil || rm.UserID == "" {
				m.RelayErrors.Inc()
				entry.WithError(err).Error("unable to parse relay message")
				continue
			}
			reg.Deliver(rm.UserID, []byte(rm.Payload))
		}
	}
}
