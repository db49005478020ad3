package events

import (
	"encoding/json"
	"reflect"
	"time"
)

// Base de todos los eventos de integración
type IntegrationEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"` // event specific content

	// Pistas de enrutado para los adaptadores del bus, nunca se serializan.
	Key         string `json:"-"`
	Destination string `json:"-"`
}

// PartitionKey implements bus.Keyer.
func (e IntegrationEvent) PartitionKey() string {
	return e.Key
}

// TopicName implements bus.Router.
func (e IntegrationEvent) TopicName() string {
	return e.Destination
}

// EventMetadata le dice al relayer cómo decodificar un payload del outbox y adónde enviarlo.
type EventMetadata struct {
	Type  reflect.Type
	Topic string
}
