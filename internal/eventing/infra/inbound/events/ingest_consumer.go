package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/orchestrix/internal/eventing/application"
	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
)

// Publisher es la parte de EventService que necesita la ingesta.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}, meta eventDomain.PublishMetadata) (*application.PublishResult, error)
}

// IngestEnvelope es el formato de mensaje del topic de ingesta.
type IngestEnvelope struct {
	EventType string                      `json:"eventType"`
	Data      map[string]interface{}      `json:"data"`
	Metadata  eventDomain.PublishMetadata `json:"metadata"`
}

// IngestConsumer publica los eventos que llegan por el broker en lugar de por HTTP.
type IngestConsumer struct {
	publisher Publisher
	timeout   time.Duration
	log       *zap.Logger
}

func NewIngestConsumer(publisher Publisher, timeout time.Duration, log *zap.Logger) *IngestConsumer {
	return &IngestConsumer{publisher: publisher, timeout: timeout, log: log}
}

// HandleMessage publica un sobre. Si no trae correlation id se usa la clave del mensaje.
func (c *IngestConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	var env IngestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.Warn("Failed to unmarshal ingest envelope", zap.String("key", key), zap.Error(err))
		return
	}
	if env.Metadata.CorrelationID == "" {
		env.Metadata.CorrelationID = key
	}
	if env.Metadata.Source == "" {
		env.Metadata.Source = "kafka"
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.publisher.Publish(pubCtx, env.EventType, env.Data, env.Metadata)
	if err != nil {
		c.log.Warn("Ingested event rejected",
			zap.String("event_type", env.EventType),
			zap.String("key", key),
			zap.Error(err))
		return
	}
	c.log.Debug("Ingested event published",
		zap.String("event_id", res.EventID),
		zap.String("event_type", env.EventType),
		zap.String("correlation_id", res.CorrelationID))
}
