package domain

import (
	"fmt"
	"time"
)

// StepDefinition es una acción remota de la saga y su deshacer.
// Retries cuenta los reintentos tras el primer intento.
type StepDefinition struct {
	Name         string `json:"name"`
	Service      string `json:"service"`
	Action       string `json:"action"`
	Compensation string `json:"compensation,omitempty"`
	TimeoutMs    int    `json:"timeoutMs"`
	Retries      int    `json:"retries"`
}

func (s StepDefinition) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Definition es una lista ordenada de pasos con nombre.
type Definition struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Steps   []StepDefinition `json:"steps"`
	// CompensationOrder lista nombres de pasos. Vacío significa orden inverso.
	CompensationOrder []string `json:"compensationOrder,omitempty"`
}

func (d Definition) stepIndex(name string) int {
	for i, s := range d.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Validate comprueba nombres, límites de cada paso y el orden de compensación.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: saga name is required", ErrInvalidDefinition)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Name == "" || s.Service == "" || s.Action == "" {
			return fmt.Errorf("%w: %s: step needs name, service and action", ErrInvalidDefinition, d.Name)
		}
		if s.Retries < 0 || s.TimeoutMs < 0 {
			return fmt.Errorf("%w: %s: step %s has negative retries or timeoutMs", ErrInvalidDefinition, d.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s: duplicate step %s", ErrInvalidDefinition, d.Name, s.Name)
		}
		seen[s.Name] = true
	}
	for _, name := range d.CompensationOrder {
		if d.stepIndex(name) < 0 {
			return fmt.Errorf("%w: %s: compensation order names unknown step %s", ErrInvalidDefinition, d.Name, name)
		}
	}
	return nil
}

// CompensationPlan devuelve los índices de los pasos anteriores a failedIndex en el
// orden en que se ejecutan sus compensaciones.
func (d Definition) CompensationPlan(failedIndex int) []int {
	var plan []int
	if len(d.CompensationOrder) == 0 {
		for i := failedIndex - 1; i >= 0; i-- {
			plan = append(plan, i)
		}
		return plan
	}
	for _, name := range d.CompensationOrder {
		if i := d.stepIndex(name); i >= 0 && i < failedIndex {
			plan = append(plan, i)
		}
	}
	return plan
}
