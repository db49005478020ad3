package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SagaStatus string

const (
	SagaRunning      SagaStatus = "running"
	SagaCompensating SagaStatus = "compensating"
	SagaCompleted    SagaStatus = "completed"
	SagaCompensated  SagaStatus = "compensated"
	SagaFailed       SagaStatus = "failed"
)

// Terminal indica si el runner ya terminó con una instancia en este estado.
func (s SagaStatus) Terminal() bool {
	return s == SagaCompleted || s == SagaCompensated || s == SagaFailed
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepState es el progreso de un paso dentro de una instancia.
type StepState struct {
	Name              string          `json:"name"`
	Service           string          `json:"service"`
	Status            StepStatus      `json:"status"`
	Attempts          int             `json:"attempts"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	Error             string          `json:"error,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	CompensatedAt     *time.Time      `json:"compensatedAt,omitempty"`
	CompensationError string          `json:"compensationError,omitempty"`
}

// Instance es una ejecución de una definición de saga.
type Instance struct {
	ID            string                 `json:"id"`
	SagaName      string                 `json:"sagaName"`
	SagaVersion   string                 `json:"sagaVersion"`
	Status        SagaStatus             `json:"status"`
	CurrentStep   int                    `json:"currentStep"`
	Input         map[string]interface{} `json:"input"`
	CorrelationID string                 `json:"correlationId"`
	StartedAt     time.Time              `json:"startedAt"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Steps         []StepState            `json:"steps"`
}

// NewInstance crea una instancia en curso con todos los pasos pendientes.
func NewInstance(def Definition, input map[string]interface{}, correlationID string, now time.Time) *Instance {
	if input == nil {
		input = map[string]interface{}{}
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	steps := make([]StepState, len(def.Steps))
	for i, s := range def.Steps {
		steps[i] = StepState{Name: s.Name, Service: s.Service, Status: StepPending}
	}

	return &Instance{
		ID:            uuid.NewString(),
		SagaName:      def.Name,
		SagaVersion:   def.Version,
		Status:        SagaRunning,
		Input:         input,
		CorrelationID: correlationID,
		StartedAt:     now,
		Steps:         steps,
	}
}

// Results maps each completed step to its recorded result.
func (i *Instance) Results() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for _, s := range i.Steps {
		if s.Status == StepCompleted && len(s.Result) > 0 {
			out[s.Name] = s.Result
		}
	}
	return out
}

// Finish lleva la instancia a un estado terminal.
func (i *Instance) Finish(status SagaStatus, now time.Time) {
	i.Status = status
	i.CompletedAt = &now
}

// Clone devuelve una instantánea que no comparte estado mutable con i.
func (i *Instance) Clone() *Instance {
	c := *i
	c.Input = make(map[string]interface{}, len(i.Input))
	for k, v := range i.Input {
		c.Input[k] = v
	}
	c.CompletedAt = cloneTime(i.CompletedAt)
	c.Steps = make([]StepState, len(i.Steps))
	for n, s := range i.Steps {
		s.StartedAt = cloneTime(s.StartedAt)
		s.CompletedAt = cloneTime(s.CompletedAt)
		s.CompensatedAt = cloneTime(s.CompensatedAt)
		if s.Result != nil {
			s.Result = append(json.RawMessage(nil), s.Result...)
		}
		c.Steps[n] = s
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
