package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
	"github.com/butvinm-itmo/highload-sub001/internal/messaging"
)

// topicConfigs lists the event topics and, when dead letters go to Kafka,
// their dead-letter twins.
func topicConfigs(cfg *config.Config) []kafka.TopicConfig {
	t := messaging.TopicsFrom(cfg.Kafka)
	names := []string{t.Spread, t.Interpretation, t.User}
	if cfg.DeadLetter.Sink == config.SinkKafka {
		suffix := cfg.DeadLetter.TopicSuffix
		if suffix == "" {
			suffix = ".dlq"
		}
		for _, n := range []string{t.Spread, t.Interpretation, t.User} {
			names = append(names, n+suffix)
		}
	}
	partitions := max(cfg.Kafka.Partitions, 1)
	replication := max(cfg.Kafka.Replication, 1)
	out := make([]kafka.TopicConfig, 0, len(names))
	for _, n := range names {
		out = append(out, kafka.TopicConfig{Topic: n, NumPartitions: partitions, ReplicationFactor: replication})
	}
	return out
}

// TopicCreator is the subset of *kafka.Conn used to create topics.
type TopicCreator interface {
	CreateTopics(topics ...kafka.TopicConfig) error
}

func createTopics(c TopicCreator, topics []kafka.TopicConfig) error {
	if err := c.CreateTopics(topics...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topics: %w", err)
	}
	return nil
}

// dialController connects to the cluster controller, which is the only broker
// that accepts topic creation.
func dialController(ctx context.Context, brokers []string) (*kafka.Conn, error) {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		controller, err := conn.Controller()
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
		return kafka.DialContext(ctx, "tcp", addr)
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, fmt.Errorf("dial kafka controller: %w", lastErr)
}

func runMigrations(ctx context.Context, db *gorm.DB, migrations map[string]func(context.Context, *gorm.DB) error, logger *log.Logger) error {
	for name, m := range migrations {
		if err := m(ctx, db); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		logger.WithField("schema", name).Info("schema migrated")
	}
	return nil
}

// TableCreator is the subset of *aztables.Client used to create a table.
type TableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

// QueueCreator is the subset of *azqueue.QueueClient used to create a queue.
type QueueCreator interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

func createTable(ctx context.Context, c TableCreator) error {
	if _, err := c.CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

func createQueue(ctx context.Context, c QueueCreator) error {
	if _, err := c.Create(ctx, nil); err != nil && !alreadyExists(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

func createDeadLetterStorage(ctx context.Context, cfg config.DeadLetterConfig) error {
	switch cfg.Sink {
	case config.SinkTable:
		svc, err := aztables.NewServiceClientFromConnectionString(cfg.StorageConnectionString, nil)
		if err != nil {
			return err
		}
		return createTable(ctx, svc.NewClient(cfg.Table))
	case config.SinkQueue:
		q, err := azqueue.NewQueueClientFromConnectionString(cfg.StorageConnectionString, cfg.Queue, nil)
		if err != nil {
			return err
		}
		return createQueue(ctx, q)
	}
	return nil
}
