package domain

import (
	shared "github.com/davicafu/orchestrix/internal/shared/domain"
)

// Campos que entienden las implementaciones de SagaRepository.
const (
	FieldStatus   = "status"
	FieldSagaName = "sagaName"
)

// StatusCriteria selecciona instancias en un estado. Vacío acepta todos.
type StatusCriteria struct {
	Status SagaStatus
}

func (c StatusCriteria) ToConditions() []shared.Criterion {
	if c.Status == "" {
		return nil
	}
	return []shared.Criterion{{Field: FieldStatus, Op: shared.OpEq, Value: string(c.Status)}}
}

// NameCriteria selects instances of one saga.
type NameCriteria struct {
	Name string
}

func (c NameCriteria) ToConditions() []shared.Criterion {
	if c.Name == "" {
		return nil
	}
	return []shared.Criterion{{Field: FieldSagaName, Op: shared.OpEq, Value: c.Name}}
}
