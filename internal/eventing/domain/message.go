package domain

import (
	"time"

	sharedBus "github.com/davicafu/orchestrix/internal/shared/infra/platform/bus"
)

type MessageMetadata struct {
	TraceID string `json:"traceId"`
	SpanID  string `json:"spanId"`
	UserID  string `json:"userId,omitempty"`
}

// EventMessage es un evento publicado. No se modifica tras crearse.
type EventMessage struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"eventType"`
	Version       string                 `json:"version"`
	Timestamp     time.Time              `json:"timestamp"`
	Source        string                 `json:"source"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	CausationID   string                 `json:"causationId,omitempty"`
	Data          map[string]interface{} `json:"data"`
	Metadata      MessageMetadata        `json:"metadata"`
}

// PublishMetadata is the optional caller-supplied context of a publish.
type PublishMetadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	CausationID   string `json:"causationId,omitempty"`
	Source        string `json:"source,omitempty"`
	TraceID       string `json:"traceId,omitempty"`
	SpanID        string `json:"spanId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// PartitionKey mantiene una misma correlación en una misma partición.
func (m EventMessage) PartitionKey() string {
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	return m.ID
}

// fields expone el mensaje como árbol para evaluar filtros.
func (m EventMessage) fields() map[string]interface{} {
	return map[string]interface{}{
		"id":            m.ID,
		"eventType":     m.EventType,
		"version":       m.Version,
		"timestamp":     m.Timestamp.UTC().Format(time.RFC3339Nano),
		"source":        m.Source,
		"correlationId": m.CorrelationID,
		"causationId":   m.CausationID,
		"data":          m.Data,
		"metadata": map[string]interface{}{
			"traceId": m.Metadata.TraceID,
			"spanId":  m.Metadata.SpanID,
			"userId":  m.Metadata.UserID,
		},
	}
}

var _ sharedBus.Keyer = EventMessage{}
