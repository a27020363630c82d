package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

func TestTopicConfigsIncludeDeadLetterTopics(t *testing.T) {
	cfg := &config.Config{
		Kafka:      config.KafkaConfig{UserTopic: "users", Partitions: 6},
		DeadLetter: config.DeadLetterConfig{Sink: config.SinkKafka, TopicSuffix: ".dead"},
	}
	got := topicConfigs(cfg)
	if len(got) != 6 {
		t.Fatalf("expected 6 topics, got %d", len(got))
	}
	names := map[string]bool{}
	for _, tc := range got {
		names[tc.Topic] = true
		if tc.NumPartitions != 6 || tc.ReplicationFactor != 1 {
			t.Fatalf("unexpected sizing %+v", tc)
		}
	}
	if !names["users"] || !names["users.dead"] {
		t.Fatalf("missing user topics in %v", names)
	}

	cfg.DeadLetter.Sink = config.SinkLog
	if got := topicConfigs(cfg); len(got) != 3 {
		t.Fatalf("expected 3 topics without kafka dead letters, got %d", len(got))
	}
}

type fakeCreator struct {
	got []kafka.TopicConfig
	err error
}

func (f *fakeCreator) CreateTopics(topics ...kafka.TopicConfig) error {
	f.got = append(f.got, topics...)
	return f.err
}

func TestCreateTopicsToleratesExisting(t *testing.T) {
	topics := []kafka.TopicConfig{{Topic: "a"}}
	if err := createTopics(&fakeCreator{err: kafka.TopicAlreadyExists}, topics); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := createTopics(&fakeCreator{err: kafka.InvalidReplicationFactor}, topics); err == nil {
		t.Fatalf("expected error")
	}
}

type fakeTable struct{ err error }

func (f fakeTable) CreateTable(context.Context, *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.err
}

type fakeQueue struct{ err error }

func (f fakeQueue) Create(context.Context, *azqueue.CreateOptions) (azqueue.CreateResponse, error) {
	return azqueue.CreateResponse{}, f.err
}

func TestAzureCreateIgnoresConflict(t *testing.T) {
	ctx := context.Background()
	exists := &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: string(aztables.TableAlreadyExists)}
	if err := createTable(ctx, fakeTable{err: exists}); err != nil {
		t.Fatalf("table: %v", err)
	}
	qExists := &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: "QueueAlreadyExists"}
	if err := createQueue(ctx, fakeQueue{err: qExists}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := createQueue(ctx, fakeQueue{err: errors.New("forbidden")}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunMigrationsStopsOnError(t *testing.T) {
	logger := log.New()
	calls := 0
	err := runMigrations(context.Background(), nil, map[string]func(context.Context, *gorm.DB) error{
		"broken": func(context.Context, *gorm.DB) error { calls++; return errors.New("boom") },
	}, logger)
	if err == nil || calls != 1 {
		t.Fatalf("expected failure after one call, got %v (%d calls)", err, calls)
	}
}
