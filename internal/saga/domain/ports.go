package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

var (
	ErrSagaDefinitionNotFound = errors.New("saga definition not found")
	ErrSagaInstanceNotFound   = errors.New("saga instance not found")
	ErrQueueFull              = errors.New("saga queue full")
	ErrInvalidDefinition      = errors.New("invalid saga definition")
	ErrUnknownService         = errors.New("unknown service")
)

// SagaRepository guarda instantáneas de instancias. List devuelve la más reciente primero.
type SagaRepository interface {
	Create(ctx context.Context, inst *Instance) error
	Update(ctx context.Context, inst *Instance) error
	GetByID(ctx context.Context, id string) (*Instance, error)
	List(ctx context.Context, criteria sharedDomain.Criteria, page sharedQuery.OffsetPagination) ([]*Instance, error)
}

// StepRequest es el cuerpo que se envía por POST al servicio de un paso.
type StepRequest struct {
	Action         string                     `json:"action"`
	SagaInstanceID string                     `json:"sagaInstanceId"`
	SagaName       string                     `json:"sagaName"`
	Step           string                     `json:"step"`
	CorrelationID  string                     `json:"correlationId"`
	Input          map[string]interface{}     `json:"input"`
	Results        map[string]json.RawMessage `json:"results,omitempty"`
}

// StepClient calls one step action. A non-nil result is the service's JSON reply.
type StepClient interface {
	Invoke(ctx context.Context, service string, req StepRequest, timeout time.Duration) (json.RawMessage, error)
}

// ServiceResolver traduce un nombre lógico de servicio a su URL base.
type ServiceResolver interface {
	Resolve(service string) (string, error)
}

func SagaCacheKeyByID(id string) string {
	return fmt.Sprintf("saga:id:%s", id)
}
