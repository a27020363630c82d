package messaging

import (
	"testing"
	"time"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

func TestTopicsFromOverridesDefaults(t *testing.T) {
	topics := TopicsFrom(config.KafkaConfig{UserTopic: "users-v2"})
	if topics.Spread != "spread-events" || topics.Interpretation != "interpretation-events" {
		t.Fatalf("defaults lost: %+v", topics)
	}
	if topics.User != "users-v2" {
		t.Fatalf("override ignored: %+v", topics)
	}
}

func TestSubscribeAppliesServiceSettings(t *testing.T) {
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "divination-service"},
		Consumer: config.ConsumerConfig{
			BackoffInitial:  2 * time.Second,
			BackoffMax:      time.Minute,
			RetryInitial:    3 * time.Second,
			RetryMax:        30 * time.Second,
			PartitionBuffer: 8,
		},
	}
	logger, _ := newTestLogger()
	s := Subscribe(cfg, "users-events", PolicyRetry, HandlerFunc(nil), nil, logger, newTestMetrics())

	c := s.consumer.cfg
	if c.Topic != "users-events" || c.GroupID != "divination-service" || c.Policy != PolicyRetry {
		t.Fatalf("unexpected consumer config %+v", c)
	}
	if c.RetryInitial != 3*time.Second || c.RetryMax != 30*time.Second || c.PartitionBuffer != 8 {
		t.Fatalf("retry settings not applied: %+v", c)
	}
	if d := s.backoff.Next(); d != 2*time.Second {
		t.Fatalf("expected first reconnect delay 2s, got %v", d)
	}
}
