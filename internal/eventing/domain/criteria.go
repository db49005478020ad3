package domain

import (
	"time"

	shared "github.com/davicafu/orchestrix/internal/shared/domain"
)

// Campos que entienden las implementaciones de EventStore.
const (
	FieldEventType     = "eventType"
	FieldCorrelationID = "correlationId"
	FieldTimestamp     = "timestamp"
)

// EventTypeCriteria selecciona un tipo de evento. Vacío acepta todos.
type EventTypeCriteria struct {
	EventType string
}

func (c EventTypeCriteria) ToConditions() []shared.Criterion {
	if c.EventType == "" {
		return nil
	}
	return []shared.Criterion{{Field: FieldEventType, Op: shared.OpEq, Value: c.EventType}}
}

// CorrelationCriteria selecciona los eventos de una misma transacción de negocio.
type CorrelationCriteria struct {
	CorrelationID string
}

func (c CorrelationCriteria) ToConditions() []shared.Criterion {
	if c.CorrelationID == "" {
		return nil
	}
	return []shared.Criterion{{Field: FieldCorrelationID, Op: shared.OpEq, Value: c.CorrelationID}}
}

// TimeWindowCriteria es una ventana cerrada. Un límite nil queda abierto.
type TimeWindowCriteria struct {
	From *time.Time
	To   *time.Time
}

func (c TimeWindowCriteria) ToConditions() []shared.Criterion {
	var conds []shared.Criterion
	if c.From != nil {
		conds = append(conds, shared.Criterion{Field: FieldTimestamp, Op: shared.OpGte, Value: *c.From})
	}
	if c.To != nil {
		conds = append(conds, shared.Criterion{Field: FieldTimestamp, Op: shared.OpLte, Value: *c.To})
	}
	return conds
}
