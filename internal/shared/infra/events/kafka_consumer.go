package events

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler lo implementa cada consumidor de eventos entrantes.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte)
}

// MessageReader es la parte de *kafka.Reader que necesita el adaptador.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
}

var _ MessageReader = (*kafka.Reader)(nil)

// ConsumerAdapter lee un consumer group y entrega cada mensaje a un MessageHandler.
// El offset se confirma cuando el handler termina: entrega al menos una vez.
type ConsumerAdapter struct {
	reader     MessageReader
	handler    MessageHandler
	errBackoff time.Duration
	log        *zap.Logger
}

func NewConsumerAdapter(reader MessageReader, handler MessageHandler, log *zap.Logger) *ConsumerAdapter {
	cfg := reader.Config()
	topics := cfg.GroupTopics
	if cfg.Topic != "" {
		topics = []string{cfg.Topic}
	}
	return &ConsumerAdapter{
		reader:     reader,
		handler:    handler,
		errBackoff: time.Second,
		log: log.With(
			zap.String("topics", strings.Join(topics, ",")),
			zap.String("group_id", cfg.GroupID),
		),
	}
}

// Run bloquea hasta que se cancela ctx o se cierra el reader.
func (c *ConsumerAdapter) Run(ctx context.Context) {
	c.log.Info("Kafka consumer started")
	defer c.log.Info("Kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.log.Error("Error fetching Kafka message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.errBackoff):
			}
			continue
		}

		c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("Error committing Kafka offset",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}
