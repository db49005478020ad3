package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent representa un evento pendiente de publicar en el broker.
type OutboxEvent struct {
	ID            uuid.UUID   `json:"id"`
	AggregateType string      `json:"aggregate_type"` // e.g. "event", "saga"
	AggregateID   string      `json:"aggregate_id"`
	EventType     string      `json:"event_type"` // e.g. "order.created"
	Payload       interface{} `json:"payload"`    // JSON serializable
	CreatedAt     time.Time   `json:"created_at"`
	Processed     bool        `json:"processed"` // already relayed
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
}

// OutboxRepository define el contrato para acceder a la tabla outbox.
// SaveOutboxEvent lo usan los productores; los otros dos, sólo el relayer.
type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, evt OutboxEvent) error
	FetchPendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error
}

// OutboxPurger lo implementan los almacenes que pueden borrar filas ya publicadas.
type OutboxPurger interface {
	PurgeProcessedOutbox(ctx context.Context, before time.Time) (int64, error)
}
