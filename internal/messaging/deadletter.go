package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

// Dead-letter reasons.
const (
	ReasonDecode  = "decode"
	ReasonHandler = "handler"
)

// DeadLetter is a record the consumer gave up on, kept for forensics.
type DeadLetter struct {
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
	Reason    string            `json:"reason"`
	Error     string            `json:"error"`
	FailedAt  time.Time         `json:"failedAt"`
}

func newDeadLetter(msg kafka.Message, reason string, err error) DeadLetter {
	return DeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     string(msg.Value),
		Headers:   headerMap(msg.Headers),
		Reason:    reason,
		Error:     err.Error(),
		FailedAt:  time.Now().UTC(),
	}
}

// DeadLetterSink stores records that were skipped.
type DeadLetterSink interface {
	Send(ctx context.Context, dl DeadLetter) error
}

// LogSink writes dead letters to the log only.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Send(_ context.Context, dl DeadLetter) error {
	s.Logger.WithFields(log.Fields{
		"topic":     dl.Topic,
		"partition": dl.Partition,
		"offset":    dl.Offset,
		"key":       dl.Key,
		"reason":    dl.Reason,
		"value":     dl.Value,
	}).Warn("dead letter: " + dl.Error)
	return nil
}

// KafkaSink republishes dead letters to "<topic><suffix>", keyed like the
// original record.
type KafkaSink struct {
	Writer MessageWriter
	Suffix string
}

func (s KafkaSink) Send(ctx context.Context, dl DeadLetter) error {
	data, err := sonic.ConfigStd.Marshal(dl)
	if err != nil {
		return err
	}
	suffix := s.Suffix
	if suffix == "" {
		suffix = ".dlq"
	}
	return s.Writer.WriteMessages(ctx, kafka.Message{
		Topic: dl.Topic + suffix,
		Key:   []byte(dl.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(dl.Reason)},
		},
	})
}

// TableUpserter is the subset of *aztables.Client used by TableSink.
type TableUpserter interface {
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// TableSink stores dead letters in an Azure table partitioned by topic. The row
// key is derived from partition and offset so redelivered failures overwrite
// the same row.
type TableSink struct {
	Table TableUpserter
}

type deadLetterEntity struct {
	aztables.Entity
	Partition  int    `json:"Partition"`
	Offset     int64  `json:"Offset,string"`
	OffsetType string `json:"Offset@odata.type"`
	Key        string `json:"Key"`
	Value      string `json:"Value"`
	Headers    string `json:"Headers"`
	Reason     string `json:"Reason"`
	Error      string `json:"Error"`
	FailedAt   string `json:"FailedAt"`
}

func (s TableSink) Send(ctx context.Context, dl DeadLetter) error {
	headers, err := sonic.ConfigStd.MarshalToString(dl.Headers)
	if err != nil {
		return err
	}
	ent := deadLetterEntity{
		Entity: aztables.Entity{
			PartitionKey: dl.Topic,
			RowKey:       deadLetterRowKey(dl.Partition, dl.Offset),
		},
		Partition:  dl.Partition,
		Offset:     dl.Offset,
		OffsetType: "Edm.Int64",
		Key:        dl.Key,
		Value:      dl.Value,
		Headers:    headers,
		Reason:     dl.Reason,
		Error:      dl.Error,
		FailedAt:   dl.FailedAt.Format(time.RFC3339Nano),
	}
	payload, err := sonic.ConfigStd.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.Table.UpsertEntity(ctx, payload, nil)
	return err
}

func deadLetterRowKey(partition int, offset int64) string {
	return fmt.Sprintf("%05d-%020d", partition, offset)
}

// QueueEnqueuer is the subset of *azqueue.QueueClient used by QueueSink.
type QueueEnqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueSink pushes dead letters onto an Azure storage queue for replay tooling.
type QueueSink struct {
	Queue QueueEnqueuer
}

func (s QueueSink) Send(ctx context.Context, dl DeadLetter) error {
	data, err := sonic.ConfigStd.MarshalToString(dl)
	if err != nil {
		return err
	}
	_, err = s.Queue.EnqueueMessage(ctx, data, nil)
	return err
}

// NewDeadLetterSink builds the sink selected by cfg. writer is only used by the
// kafka sink.
func NewDeadLetterSink(cfg config.DeadLetterConfig, writer MessageWriter, logger *log.Logger) (DeadLetterSink, error) {
	switch cfg.Sink {
	case "", config.SinkLog:
		return LogSink{Logger: logger}, nil
	case config.SinkKafka:
		if writer == nil {
			return nil, fmt.Errorf("kafka dead-letter sink requires a writer")
		}
		return KafkaSink{Writer: writer, Suffix: cfg.TopicSuffix}, nil
	case config.SinkTable:
		svc, err := aztables.NewServiceClientFromConnectionString(cfg.StorageConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("table service: %w", err)
		}
		return TableSink{Table: svc.NewClient(cfg.Table)}, nil
	case config.SinkQueue:
		q, err := azqueue.NewQueueClientFromConnectionString(cfg.StorageConnectionString, cfg.Queue, nil)
		if err != nil {
			return nil, fmt.Errorf("queue client: %w", err)
		}
		return QueueSink{Queue: q}, nil
	}
	return nil, fmt.Errorf("unknown dead-letter sink %q", cfg.Sink)
}
