package events

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"

	sharedBus "github.com/davicafu/orchestrix/internal/shared/infra/platform/bus"
)

// ErrNoTopic is returned when neither the event nor the publisher names a topic.
var ErrNoTopic = errors.New("kafka publisher: no destination topic")

// KafkaPublisher writes events to Kafka. The writer must not have a fixed Topic:
// each message is routed through bus.Router, falling back to defaultTopic.
type KafkaPublisher struct {
	writer       *kafka.Writer
	defaultTopic string
	log          *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, defaultTopic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, defaultTopic: defaultTopic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var key []byte
	if keyer, ok := event.(sharedBus.Keyer); ok {
		key = []byte(keyer.PartitionKey())
	}

	topic := p.defaultTopic
	if router, ok := event.(sharedBus.Router); ok && router.TopicName() != "" {
		topic = router.TopicName()
	}
	if topic == "" {
		return ErrNoTopic
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.String("topic", topic), zap.Error(err))
		return err
	}

	p.log.Debug("Event published", zap.String("topic", topic), zap.ByteString("key", key))
	return nil
}

var _ sharedBus.EventBus = (*KafkaPublisher)(nil)
