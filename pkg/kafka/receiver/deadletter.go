package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	_rabbitmq "kafka-receiver-go/pkg/rabbitmq"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/twmb/franz-go/pkg/kgo"
)

// DeadLetterSink receives offsets whose commit was abandoned after
// exhausting retries, or that a non-retriable error surrendered outright
// (§4.3). The default Receiver carries no sink: abandoned offsets are
// restored into the batch and, when no per-commit emitter rides along, the
// error terminates the downstream sink. A DeadLetterSink additionally keeps
// a durable, operator-visible record of the abandoned offsets.
type DeadLetterSink interface {
	Forward(ctx context.Context, offsets map[TopicPartition]int64, cause error)
}

// NoopDeadLetter discards everything. It is not wired by default (with no
// sink configured the Receiver skips forwarding); callers may pass it to
// WithDeadLetter explicitly.
type NoopDeadLetter struct{}

func (NoopDeadLetter) Forward(context.Context, map[TopicPartition]int64, error) {}

type deadLetterRecord struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
	Cause     string `json:"cause"`
}

// RabbitMQDeadLetter forwards abandoned offsets to a RabbitMQ exchange,
// grounded on pkg/rabbitmq/producer.go's Publish contract.
type RabbitMQDeadLetter struct {
	producer   *_rabbitmq.Producer
	exchange   string
	routingKey string
}

// NewRabbitMQDeadLetter builds a DeadLetterSink backed by an already
// connected RabbitMQ producer.
func NewRabbitMQDeadLetter(producer *_rabbitmq.Producer, exchange, routingKey string) *RabbitMQDeadLetter {
	return &RabbitMQDeadLetter{producer: producer, exchange: exchange, routingKey: routingKey}
}

func (d *RabbitMQDeadLetter) Forward(ctx context.Context, offsets map[TopicPartition]int64, cause error) {
	cfg := _rabbitmq.DefaultPublishConfig()
	cfg.Exchange = d.exchange
	cfg.RoutingKey = d.routingKey
	cfg.ContentType = "application/json"
	cfg.DeliveryMode = amqp.Persistent

	for tp, offset := range offsets {
		body, err := json.Marshal(deadLetterRecord{
			Topic:     tp.Topic,
			Partition: tp.Partition,
			Offset:    offset,
			Cause:     causeString(cause),
		})
		if err != nil {
			continue
		}
		_, _ = d.producer.PublishWithID(ctx, body, cfg, uuid.New().String())
	}
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}

// KafkaDeadLetter forwards abandoned offsets to a Kafka topic via a raw
// franz-go producer client, grounded on pkg/kafka/producer.go's
// ProduceWithID shape. Unlike the RabbitMQ sink this one is useful when the
// same broker cluster the receiver reads from should also carry its own
// dead-letter topic.
type KafkaDeadLetter struct {
	client *kgo.Client
	topic  string
}

// NewKafkaDeadLetter wraps an already-connected *kgo.Client dedicated to
// producing (a receiver's own consuming client must never double as its
// producer, since Produce would then compete with Poll for the same
// connection).
func NewKafkaDeadLetter(client *kgo.Client, topic string) *KafkaDeadLetter {
	return &KafkaDeadLetter{client: client, topic: topic}
}

func (d *KafkaDeadLetter) Forward(ctx context.Context, offsets map[TopicPartition]int64, cause error) {
	for tp, offset := range offsets {
		body, err := json.Marshal(deadLetterRecord{
			Topic:     tp.Topic,
			Partition: tp.Partition,
			Offset:    offset,
			Cause:     causeString(cause),
		})
		if err != nil {
			continue
		}

		record := &kgo.Record{
			Topic:     d.topic,
			Value:     body,
			Timestamp: time.Now(),
			Headers: []kgo.RecordHeader{
				{Key: "message_id", Value: []byte(uuid.New().String())},
				{Key: "source_topic", Value: []byte(tp.Topic)},
			},
		}
		d.client.Produce(ctx, record, nil)
	}
}
