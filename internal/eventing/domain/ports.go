package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

// ---------------- Errores ----------------

var (
	ErrUnknownEventType     = errors.New("unknown event type")
	ErrValidation           = errors.New("validation failed")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidSubscription  = errors.New("invalid subscription")
	ErrAnalyticsDisabled    = errors.New("event analytics not configured")
)

// ValidationError lista los campos obligatorios que le faltan a un payload.
type ValidationError struct {
	EventType string
	Missing   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: missing required fields: %s", e.EventType, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ---------------- Puertos de salida ----------------

// EventStore guarda los eventos recientes de cada tipo.
type EventStore interface {
	// Append guarda msg y recorta su tipo según la retención, empezando por el más antiguo.
	Append(ctx context.Context, msg EventMessage, retention RetentionPolicy) error
	// Find devuelve los eventos que cumplen, el más antiguo primero; a igual timestamp, orden de llegada.
	Find(ctx context.Context, criteria sharedDomain.Criteria) ([]EventMessage, error)
	// Counts devuelve cuántos eventos hay guardados por tipo.
	Counts(ctx context.Context) (map[string]int, error)
}

type SubscriptionRepository interface {
	Save(ctx context.Context, sub Subscription) error
	GetByID(ctx context.Context, id string) (Subscription, error)
	// List returns every subscription in registration order.
	List(ctx context.Context) ([]Subscription, error)
}

type DeadLetterRepository interface {
	Save(ctx context.Context, dl DeadLetter) error
	// List returns dead letters newest first. An empty subscriptionID lists all.
	List(ctx context.Context, subscriptionID string, page sharedQuery.OffsetPagination) ([]DeadLetter, error)
}

// Deliverer hace un intento de entrega a un suscriptor.
type Deliverer interface {
	Deliver(ctx context.Context, sub Subscription, msg EventMessage) error
}

// ---------------- Analítica ----------------

// DailyEventCount is one row of the analytics trend.
type DailyEventCount struct {
	Day       time.Time `json:"day"`
	EventType string    `json:"eventType"`
	Count     int       `json:"count"`
}

type EventAnalyticsRepository interface {
	LogBatch(ctx context.Context, events []EventMessage) error
	GetDailyCounts(ctx context.Context, start, end time.Time) ([]DailyEventCount, error)
}
