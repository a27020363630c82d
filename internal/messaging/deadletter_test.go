package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

type fakeTable struct {
	entities map[string]map[string]any
}

func (f *fakeTable) UpsertEntity(_ context.Context, entity []byte, _ *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	var m map[string]any
	if err := sonic.Unmarshal(entity, &m); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	if f.entities == nil {
		f.entities = map[string]map[string]any{}
	}
	f.entities[m["PartitionKey"].(string)+"/"+m["RowKey"].(string)] = m
	return aztables.UpsertEntityResponse{}, nil
}

type fakeQueue struct{ messages []string }

func (f *fakeQueue) EnqueueMessage(_ context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func sampleDeadLetter() DeadLetter {
	return newDeadLetter(kafka.Message{
		Topic:     "spread-events",
		Partition: 2,
		Offset:    41,
		Key:       []byte("s1"),
		Value:     []byte("{bad"),
		Headers:   []kafka.Header{{Key: "eventType", Value: []byte("CREATED")}},
	}, ReasonDecode, errors.New("malformed body"))
}

func TestTableSinkUpsertsByTopicAndOffset(t *testing.T) {
	table := &fakeTable{}
	sink := TableSink{Table: table}
	dl := sampleDeadLetter()
	if err := sink.Send(context.Background(), dl); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Send(context.Background(), dl); err != nil {
		t.Fatalf("send again: %v", err)
	}
	if len(table.entities) != 1 {
		t.Fatalf("redelivered failure should overwrite, got %d rows", len(table.entities))
	}
	row, ok := table.entities["spread-events/"+deadLetterRowKey(2, 41)]
	if !ok {
		t.Fatalf("row not found: %v", table.entities)
	}
	if row["Reason"] != ReasonDecode || row["Value"] != "{bad" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestQueueSinkEnqueuesJSON(t *testing.T) {
	q := &fakeQueue{}
	if err := (QueueSink{Queue: q}).Send(context.Background(), sampleDeadLetter()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(q.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.messages))
	}
	var got DeadLetter
	if err := sonic.UnmarshalString(q.messages[0], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Topic != "spread-events" || got.Offset != 41 || got.Error != "malformed body" {
		t.Fatalf("unexpected dead letter %+v", got)
	}
}

func TestKafkaSinkWritesToSuffixedTopic(t *testing.T) {
	w := &fakeWriter{}
	if err := (KafkaSink{Writer: w}).Send(context.Background(), sampleDeadLetter()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "spread-events.dlq" || string(w.msgs[0].Key) != "s1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
}

func TestLogSinkNeverFails(t *testing.T) {
	logger, hook := newTestLogger()
	if err := (LogSink{Logger: logger}).Send(context.Background(), sampleDeadLetter()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Data["offset"] != int64(41) {
		t.Fatalf("expected dead letter to be logged")
	}
}

func TestNewDeadLetterSinkSelectsKind(t *testing.T) {
	logger, _ := newTestLogger()
	sink, err := NewDeadLetterSink(config.DeadLetterConfig{Sink: config.SinkKafka, TopicSuffix: ".dead"}, &fakeWriter{}, logger)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if ks, ok := sink.(KafkaSink); !ok || ks.Suffix != ".dead" {
		t.Fatalf("unexpected sink %#v", sink)
	}
	if _, ok := mustSink(t, config.DeadLetterConfig{}).(LogSink); !ok {
		t.Fatalf("expected log sink by default")
	}
	if _, err := NewDeadLetterSink(config.DeadLetterConfig{Sink: "s3"}, nil, logger); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
}

func mustSink(t *testing.T, cfg config.DeadLetterConfig) DeadLetterSink {
	t.Helper()
	logger, _ := newTestLogger()
	sink, err := NewDeadLetterSink(cfg, nil, logger)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	return sink
}
