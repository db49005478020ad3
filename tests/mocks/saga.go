package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
)

// MockStepClient mocks sagaDomain.StepClient.
type MockStepClient struct {
	mock.Mock
}

var _ sagaDomain.StepClient = (*MockStepClient)(nil)

func (m *MockStepClient) Invoke(ctx context.Context, service string, req sagaDomain.StepRequest, timeout time.Duration) (json.RawMessage, error) {
	args := m.Called(ctx, service, req, timeout)
	res, _ := args.Get(0).(json.RawMessage)
	return res, args.Error(1)
}

// StepCall es una invocación vista por ScriptedStepClient.
type StepCall struct {
	Service string
	Step    string
	Action  string
	Results map[string]json.RawMessage
}

var ErrScriptedFailure = errors.New("scripted step failure")

// ScriptedStepClient responde a los pasos según un guion indexado por "step:action".
// FailTimes hace fallar las primeras n llamadas y AlwaysFail todas. Results es
// la respuesta en caso de éxito. Block, si está definido, retiene cada llamada
// hasta que se cierra o termina el contexto.
type ScriptedStepClient struct {
	mu         sync.Mutex
	Calls      []StepCall
	FailTimes  map[string]int
	AlwaysFail map[string]bool
	Results    map[string]json.RawMessage
	Block      chan struct{}
}

var _ sagaDomain.StepClient = (*ScriptedStepClient)(nil)

func NewScriptedStepClient() *ScriptedStepClient {
	return &ScriptedStepClient{
		FailTimes:  make(map[string]int),
		AlwaysFail: make(map[string]bool),
		Results:    make(map[string]json.RawMessage),
	}
}

func StepKey(step, action string) string {
	return step + ":" + action
}

func (c *ScriptedStepClient) Invoke(ctx context.Context, service string, req sagaDomain.StepRequest, timeout time.Duration) (json.RawMessage, error) {
	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, StepCall{Service: service, Step: req.Step, Action: req.Action, Results: req.Results})
	key := StepKey(req.Step, req.Action)
	if c.AlwaysFail[key] {
		return nil, ErrScriptedFailure
	}
	if c.FailTimes[key] > 0 {
		c.FailTimes[key]--
		return nil, ErrScriptedFailure
	}
	return c.Results[key], nil
}

// Snapshot devuelve una copia de las llamadas registradas.
func (c *ScriptedStepClient) Snapshot() []StepCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]StepCall(nil), c.Calls...)
}

// Actions returns the "step:action" keys called so far, in order.
func (c *ScriptedStepClient) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Calls))
	for _, call := range c.Calls {
		out = append(out, StepKey(call.Step, call.Action))
	}
	return out
}

// FailingSagaRepo envuelve un repositorio y hace fallar Update una vez armado.
type FailingSagaRepo struct {
	sagaDomain.SagaRepository
	mu        sync.Mutex
	failAfter int
	updates   int
}

// NewFailingSagaRepo falla cada Update después de los n primeros.
func NewFailingSagaRepo(inner sagaDomain.SagaRepository, n int) *FailingSagaRepo {
	return &FailingSagaRepo{SagaRepository: inner, failAfter: n}
}

var ErrRepoDown = errors.New("repository down")

func (r *FailingSagaRepo) Update(ctx context.Context, inst *sagaDomain.Instance) error {
	r.mu.Lock()
	r.updates++
	fail := r.updates > r.failAfter
	r.mu.Unlock()
	if fail {
		return ErrRepoDown
	}
	return r.SagaRepository.Update(ctx, inst)
}
