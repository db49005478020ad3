package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBatchSize         = 1
	DefaultTimeoutMs         = 30000
	DefaultMaxRetries        = 3
	DefaultBackoffMultiplier = 2
	DefaultMaxBackoffMs      = 30000
)

// RetryPolicy controla los reintentos de entrega de una suscripción.
// MaxRetries = 0 significa un único intento.
type RetryPolicy struct {
	MaxRetries        int     `json:"maxRetries"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	MaxBackoffMs      int     `json:"maxBackoffMs"`
}

func (p RetryPolicy) MaxBackoff() time.Duration {
	return time.Duration(p.MaxBackoffMs) * time.Millisecond
}

// DefaultRetryPolicy es la política aplicada cuando el alta no trae retryPolicy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxBackoffMs:      DefaultMaxBackoffMs,
	}
}

// Subscription es el registro de un webhook para uno o varios tipos de evento.
// RetryPolicy es nil sólo hasta ApplyDefaults.
type Subscription struct {
	ID              string       `json:"id"`
	ServiceName     string       `json:"serviceName"`
	EventTypes      []string     `json:"eventTypes"`
	Endpoint        string       `json:"endpoint"`
	Filter          string       `json:"filter,omitempty"`
	BatchSize       int          `json:"batchSize"`
	TimeoutMs       int          `json:"timeoutMs"`
	RetryPolicy     *RetryPolicy `json:"retryPolicy,omitempty"`
	DeadLetterQueue string       `json:"deadLetterQueue"`
	Active          bool         `json:"active"`
	CreatedAt       time.Time    `json:"createdAt"`
}

func (s Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Policy devuelve la política efectiva (la de por defecto si no hay ninguna).
func (s Subscription) Policy() RetryPolicy {
	if s.RetryPolicy == nil {
		return DefaultRetryPolicy()
	}
	return *s.RetryPolicy
}

// Wants indica si la suscripción está activa y escucha eventType.
func (s Subscription) Wants(eventType string) bool {
	if !s.Active {
		return false
	}
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// ApplyDefaults rellena los parámetros sin valor. Sin retryPolicy se usa la
// política completa por defecto; con una política explícita se respeta
// maxRetries (incluido 0) y sólo se completan multiplicador y tope.
func (s *Subscription) ApplyDefaults() {
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = DefaultTimeoutMs
	}
	p := DefaultRetryPolicy()
	if s.RetryPolicy != nil {
		p = *s.RetryPolicy
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if p.MaxBackoffMs <= 0 {
		p.MaxBackoffMs = DefaultMaxBackoffMs
	}
	s.RetryPolicy = &p
	if s.DeadLetterQueue == "" {
		s.DeadLetterQueue = s.ServiceName + ".dlq"
	}
}

// Validate comprueba el registro contra el catálogo de eventos.
func (s Subscription) Validate(defs *DefinitionRegistry) error {
	if strings.TrimSpace(s.ServiceName) == "" {
		return fmt.Errorf("%w: serviceName is required", ErrInvalidSubscription)
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute http(s) URL", ErrInvalidSubscription)
	}
	if len(s.EventTypes) == 0 {
		return fmt.Errorf("%w: eventTypes must not be empty", ErrInvalidSubscription)
	}
	for _, t := range s.EventTypes {
		if _, ok := defs.Get(t); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEventType, t)
		}
	}
	if s.Filter != "" {
		if _, err := ParseFilter(s.Filter); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
		}
	}
	return nil
}
