package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	"github.com/davicafu/orchestrix/internal/saga/infra/outbound/memory"
	"github.com/davicafu/orchestrix/pkg/metrics"
	"github.com/davicafu/orchestrix/tests/mocks"
)

func orderDefinition(t *testing.T) sagaDomain.Definition {
	t.Helper()
	reg, err := sagaDomain.NewDefinitionRegistry(sagaDomain.DefaultDefinitions()...)
	require.NoError(t, err)
	def, ok := reg.Get(sagaDomain.OrderFulfillment)
	require.True(t, ok)
	return def
}

type runnerFixture struct {
	runner *Runner
	repo   *memory.SagaRepo
	client *mocks.ScriptedStepClient
	cache  *mocks.DummyCache
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		repo:   memory.NewSagaRepo(),
		client: mocks.NewScriptedStepClient(),
		cache:  mocks.NewDummyCache(),
	}
	f.runner = NewRunner(f.repo, f.client, f.cache, time.Millisecond, metrics.New(), zap.NewNop())
	return f
}

func (f *runnerFixture) start(t *testing.T, def sagaDomain.Definition) *sagaDomain.Instance {
	t.Helper()
	inst := sagaDomain.NewInstance(def, map[string]interface{}{"orderId": "O1"}, "corr-1", time.Now().UTC())
	require.NoError(t, f.repo.Create(context.Background(), inst))
	return inst
}

func (f *runnerFixture) stored(t *testing.T, id string) *sagaDomain.Instance {
	t.Helper()
	inst, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return inst
}

func TestRunner_AllStepsSucceed(t *testing.T) {
	// ARRANGE
	f := newRunnerFixture()
	def := orderDefinition(t)
	inst := f.start(t, def)

	// ACT
	f.runner.Execute(context.Background(), def, inst)

	// ASSERT
	got := f.stored(t, inst.ID)
	assert.Equal(t, sagaDomain.SagaCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, len(def.Steps)-1, got.CurrentStep)
	for _, s := range got.Steps {
		assert.Equal(t, sagaDomain.StepCompleted, s.Status, s.Name)
		assert.Equal(t, 1, s.Attempts, s.Name)
	}
	assert.Equal(t, []string{
		"reserve-inventory:reserve", "process-payment:charge", "create-shipment:create", "notify-customer:send",
	}, f.client.Actions())
	assert.True(t, f.cache.Has(sagaDomain.SagaCacheKeyByID(inst.ID)))
}

func TestRunner_TransientFailureIsRetried(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	f.client.FailTimes[mocks.StepKey("process-payment", "charge")] = 3 // retries = 3, so the 4th attempt wins
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	got := f.stored(t, inst.ID)
	assert.Equal(t, sagaDomain.SagaCompleted, got.Status)
	assert.Equal(t, sagaDomain.StepCompleted, got.Steps[1].Status)
	assert.Equal(t, 4, got.Steps[1].Attempts)
}

func TestRunner_FailureCompensatesCompletedStepsInReverse(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	f.client.AlwaysFail[mocks.StepKey("create-shipment", "create")] = true
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	got := f.stored(t, inst.ID)
	assert.Equal(t, sagaDomain.SagaCompensated, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Equal(t, sagaDomain.StepCompleted, got.Steps[0].Status)
	assert.Equal(t, sagaDomain.StepCompleted, got.Steps[1].Status)
	assert.Equal(t, sagaDomain.StepFailed, got.Steps[2].Status)
	assert.Equal(t, 4, got.Steps[2].Attempts)
	assert.NotEmpty(t, got.Steps[2].Error)
	assert.Equal(t, sagaDomain.StepPending, got.Steps[3].Status)
	assert.NotNil(t, got.Steps[0].CompensatedAt)
	assert.NotNil(t, got.Steps[1].CompensatedAt)
	assert.Nil(t, got.Steps[2].CompensatedAt)

	actions := f.client.Actions()
	assert.Equal(t, []string{"process-payment:refund", "reserve-inventory:release"}, actions[len(actions)-2:])
}

func TestRunner_FirstStepFailureHasNothingToCompensate(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	f.client.AlwaysFail[mocks.StepKey("reserve-inventory", "reserve")] = true
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	got := f.stored(t, inst.ID)
	assert.Equal(t, sagaDomain.SagaCompensated, got.Status)
	assert.Len(t, f.client.Actions(), 4)
}

func TestRunner_CompensationErrorDoesNotStopTheWalk(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	f.client.AlwaysFail[mocks.StepKey("notify-customer", "send")] = true
	f.client.AlwaysFail[mocks.StepKey("create-shipment", "cancel")] = true
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	got := f.stored(t, inst.ID)
	assert.Equal(t, sagaDomain.SagaCompensated, got.Status)
	assert.NotEmpty(t, got.Steps[2].CompensationError)
	assert.Nil(t, got.Steps[2].CompensatedAt)
	assert.NotNil(t, got.Steps[1].CompensatedAt)
	assert.NotNil(t, got.Steps[0].CompensatedAt)

	actions := f.client.Actions()
	assert.Equal(t, []string{"create-shipment:cancel", "process-payment:refund", "reserve-inventory:release"}, actions[len(actions)-3:])
}

func TestRunner_StepsWithoutCompensationAreSkipped(t *testing.T) {
	f := newRunnerFixture()
	reg, err := sagaDomain.NewDefinitionRegistry(sagaDomain.DefaultDefinitions()...)
	require.NoError(t, err)
	def, _ := reg.Get(sagaDomain.VendorOnboarding)
	f.client.AlwaysFail[mocks.StepKey("setup-payouts", "setup")] = true
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	actions := f.client.Actions()
	assert.Equal(t, []string{"create-store:delete"}, actions[len(actions)-1:])
	assert.Equal(t, sagaDomain.SagaCompensated, f.stored(t, inst.ID).Status)
}

func TestRunner_ExplicitCompensationOrder(t *testing.T) {
	f := newRunnerFixture()
	def := sagaDomain.Definition{
		Name:    "custom",
		Version: "1",
		Steps: []sagaDomain.StepDefinition{
			{Name: "a", Service: "sa", Action: "do", Compensation: "undo"},
			{Name: "b", Service: "sb", Action: "do", Compensation: "undo"},
			{Name: "c", Service: "sc", Action: "do"},
		},
		CompensationOrder: []string{"a", "b", "c"},
	}
	f.client.AlwaysFail[mocks.StepKey("c", "do")] = true
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	actions := f.client.Actions()
	assert.Equal(t, []string{"a:undo", "b:undo"}, actions[len(actions)-2:])
}

func TestRunner_InvokesServiceWithStepTimeout(t *testing.T) {
	// ARRANGE
	repo := memory.NewSagaRepo()
	client := new(mocks.MockStepClient)
	runner := NewRunner(repo, client, mocks.NewDummyCache(), time.Millisecond, nil, zap.NewNop())
	def := sagaDomain.Definition{
		Name:    "single",
		Version: "1",
		Steps: []sagaDomain.StepDefinition{
			{Name: "reserve", Service: "inventory-service", Action: "reserve", Compensation: "release", TimeoutMs: 500},
		},
	}
	inst := sagaDomain.NewInstance(def, map[string]interface{}{"sku": "A"}, "corr-9", time.Now().UTC())
	require.NoError(t, repo.Create(context.Background(), inst))

	client.On("Invoke", mock.Anything, "inventory-service", mock.MatchedBy(func(req sagaDomain.StepRequest) bool {
		return req.Action == "reserve" && req.SagaInstanceID == inst.ID && req.CorrelationID == "corr-9"
	}), 500*time.Millisecond).Return(json.RawMessage(`{"held":1}`), nil).Once()

	// ACT
	runner.Execute(context.Background(), def, inst)

	// ASSERT
	client.AssertExpectations(t)
	got, err := repo.GetByID(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, sagaDomain.SagaCompleted, got.Status)
	assert.JSONEq(t, `{"held":1}`, string(got.Steps[0].Result))
}

func TestRunner_CacheWriteFailureDoesNotAffectTheSaga(t *testing.T) {
	f := newRunnerFixture()
	f.cache.SetErr = errors.New("cache unreachable")
	def := orderDefinition(t)
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	assert.Equal(t, sagaDomain.SagaCompleted, f.stored(t, inst.ID).Status)
	assert.False(t, f.cache.Has(sagaDomain.SagaCacheKeyByID(inst.ID)))
}

func TestRunner_FailedCacheWriteEvictsStaleSnapshot(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	inst := f.start(t, def)
	key := sagaDomain.SagaCacheKeyByID(inst.ID)
	require.NoError(t, f.cache.Set(context.Background(), key, inst, 600))
	f.cache.SetErr = errors.New("cache unreachable")

	f.runner.Execute(context.Background(), def, inst)

	assert.Equal(t, sagaDomain.SagaCompleted, f.stored(t, inst.ID).Status)
	assert.False(t, f.cache.Has(key), "the running snapshot must not outlive the failed write")
}

func TestRunner_ResultsFlowToLaterSteps(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	f.client.Results[mocks.StepKey("reserve-inventory", "reserve")] = json.RawMessage(`{"reservationId":"R1"}`)
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	got := f.stored(t, inst.ID)
	assert.JSONEq(t, `{"reservationId":"R1"}`, string(got.Steps[0].Result))
	calls := f.client.Snapshot()
	require.Len(t, calls, 4)
	assert.JSONEq(t, `{"reservationId":"R1"}`, string(calls[1].Results["reserve-inventory"]))
}

func TestRunner_PersistenceFailureFailsTheSaga(t *testing.T) {
	f := newRunnerFixture()
	repo := mocks.NewFailingSagaRepo(f.repo, 1)
	f.runner = NewRunner(repo, f.client, f.cache, time.Millisecond, nil, zap.NewNop())
	def := orderDefinition(t)
	inst := f.start(t, def)

	f.runner.Execute(context.Background(), def, inst)

	assert.Equal(t, sagaDomain.SagaFailed, inst.Status)
	assert.Contains(t, inst.Error, "persist")

	// the cache still shows the terminal state
	var cached sagaDomain.Instance
	hit, err := f.cache.Get(context.Background(), sagaDomain.SagaCacheKeyByID(inst.ID), &cached)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sagaDomain.SagaFailed, cached.Status)
}

func TestRunner_CancelledContextFailsTheSaga(t *testing.T) {
	f := newRunnerFixture()
	def := orderDefinition(t)
	f.client.Block = make(chan struct{})
	inst := f.start(t, def)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.runner.Execute(ctx, def, inst)

	got := f.stored(t, inst.ID)
	assert.Equal(t, sagaDomain.SagaFailed, got.Status)
	assert.Contains(t, got.Error, "interrupted")
}
