package messaging

import (
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

// Subscribe builds the supervised consumer a service runs for topic, using the
// service's Kafka and consumer settings.
func Subscribe(cfg *config.Config, topic string, policy Policy, h Handler, dlq DeadLetterSink, logger *log.Logger, m *Metrics) *Supervisor {
	c := NewConsumer(ConsumerConfig{
		Topic:           topic,
		GroupID:         cfg.Kafka.GroupID,
		Policy:          policy,
		RetryInitial:    cfg.Consumer.RetryInitial,
		RetryMax:        cfg.Consumer.RetryMax,
		PartitionBuffer: cfg.Consumer.PartitionBuffer,
	}, h, dlq, logger, m)
	factory := KafkaReaderFactory(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topic, logger)
	return NewSupervisor(c, factory, cfg.Consumer.BackoffInitial, cfg.Consumer.BackoffMax, logger, m)
}

// TopicsFrom returns the topic routing configured in cfg.
func TopicsFrom(cfg config.KafkaConfig) Topics {
	t := DefaultTopics()
	if cfg.SpreadTopic != "" {
		t.Spread = cfg.SpreadTopic
	}
	if cfg.InterpTopic != "" {
		t.Interpretation = cfg.InterpTopic
	}
	if cfg.UserTopic != "" {
		t.User = cfg.UserTopic
	}
	return t
}
