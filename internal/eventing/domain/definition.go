package domain

import (
	"fmt"
	"sort"
	"time"
)

// Schema lista los campos que debe traer un payload. Sólo se comprueba su presencia.
type Schema struct {
	Version  string   `json:"version"`
	Required []string `json:"required"`
}

// Routing names where relayed events go and who is expected to consume them.
type Routing struct {
	Exchange   string   `json:"exchange"`
	RoutingKey string   `json:"routingKey"`
	Consumers  []string `json:"consumers"`
}

// RetentionPolicy limita el almacén en memoria de un tipo de evento.
// El valor cero significa sin límite.
type RetentionPolicy struct {
	MaxAgeMs  int64 `json:"maxAgeMs"`
	MaxEvents int   `json:"maxEvents"`
}

func (p RetentionPolicy) MaxAge() time.Duration {
	return time.Duration(p.MaxAgeMs) * time.Millisecond
}

type DeadLetterPolicy struct {
	Enabled      bool `json:"enabled"`
	MaxRetries   int  `json:"maxRetries"`
	RetryDelayMs int  `json:"retryDelayMs"`
}

// EventDefinition describe un tipo de evento. Inmutable una vez registrado.
type EventDefinition struct {
	EventType  string           `json:"eventType"`
	Schema     Schema           `json:"schema"`
	Routing    Routing          `json:"routing"`
	Retention  RetentionPolicy  `json:"retention"`
	DeadLetter DeadLetterPolicy `json:"deadLetter"`
}

// MissingFields devuelve los campos obligatorios ausentes en data, en orden del esquema.
func (d EventDefinition) MissingFields(data map[string]interface{}) []string {
	var missing []string
	for _, field := range d.Schema.Required {
		if _, ok := data[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// DefinitionRegistry is the read-only catalogue of event types.
type DefinitionRegistry struct {
	defs  map[string]EventDefinition
	order []string
}

// NewDefinitionRegistry falla con un tipo de evento vacío o duplicado.
func NewDefinitionRegistry(defs ...EventDefinition) (*DefinitionRegistry, error) {
	r := &DefinitionRegistry{defs: make(map[string]EventDefinition, len(defs))}
	for _, d := range defs {
		if d.EventType == "" {
			return nil, fmt.Errorf("event definition without type")
		}
		if _, dup := r.defs[d.EventType]; dup {
			return nil, fmt.Errorf("duplicate event definition %q", d.EventType)
		}
		d.Schema.Required = append([]string(nil), d.Schema.Required...)
		d.Routing.Consumers = append([]string(nil), d.Routing.Consumers...)
		r.defs[d.EventType] = d
		r.order = append(r.order, d.EventType)
	}
	return r, nil
}

func (r *DefinitionRegistry) Get(eventType string) (EventDefinition, bool) {
	d, ok := r.defs[eventType]
	return d, ok
}

// All returns the definitions in registration order.
func (r *DefinitionRegistry) All() []EventDefinition {
	out := make([]EventDefinition, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.defs[t])
	}
	return out
}

// Types returns the registered event types sorted by name.
func (r *DefinitionRegistry) Types() []string {
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

func (r *DefinitionRegistry) Len() int {
	return len(r.order)
}

// Validate comprueba que eventType existe y que data trae todos los campos obligatorios.
func (r *DefinitionRegistry) Validate(eventType string, data map[string]interface{}) (EventDefinition, error) {
	def, ok := r.defs[eventType]
	if !ok {
		return EventDefinition{}, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	if missing := def.MissingFields(data); len(missing) > 0 {
		return def, &ValidationError{EventType: eventType, Missing: missing}
	}
	return def, nil
}
