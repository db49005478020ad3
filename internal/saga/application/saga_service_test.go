package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	"github.com/davicafu/orchestrix/internal/saga/infra/outbound/memory"
	"github.com/davicafu/orchestrix/tests/mocks"
)

type serviceFixture struct {
	svc    *SagaService
	worker *Worker
	repo   *memory.SagaRepo
	client *mocks.ScriptedStepClient
	cache  *mocks.DummyCache
}

func newServiceFixture(t *testing.T, queueSize int) *serviceFixture {
	t.Helper()
	reg, err := sagaDomain.NewDefinitionRegistry(sagaDomain.DefaultDefinitions()...)
	require.NoError(t, err)

	f := &serviceFixture{
		repo:   memory.NewSagaRepo(),
		client: mocks.NewScriptedStepClient(),
		cache:  mocks.NewDummyCache(),
	}
	runner := NewRunner(f.repo, f.client, f.cache, time.Millisecond, nil, zap.NewNop())
	f.worker = NewWorker(runner, queueSize, 2, nil, zap.NewNop())
	f.svc = NewSagaService(reg, f.repo, f.worker, f.cache, nil, zap.NewNop())
	return f
}

func (f *serviceFixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = f.worker.Shutdown(shutdownCtx)
	})
}

func TestStartSaga_UnknownSaga(t *testing.T) {
	f := newServiceFixture(t, 4)

	_, err := f.svc.StartSaga(context.Background(), "nope", nil, "")

	assert.ErrorIs(t, err, sagaDomain.ErrSagaDefinitionNotFound)
}

func TestStartSaga_ReturnsAtOnceAndCompletesInBackground(t *testing.T) {
	// ARRANGE
	f := newServiceFixture(t, 4)
	f.run(t)
	ctx := context.Background()

	// ACT
	res, err := f.svc.StartSaga(ctx, sagaDomain.OrderFulfillment, map[string]interface{}{"orderId": "O1"}, "corr-9")

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "started", res.Status)
	assert.Equal(t, "corr-9", res.CorrelationID)
	require.NotEmpty(t, res.SagaInstanceID)

	assert.Eventually(t, func() bool {
		inst, err := f.svc.GetSagaStatus(ctx, res.SagaInstanceID)
		return err == nil && inst.Status == sagaDomain.SagaCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartSaga_FullQueueFailsTheInstance(t *testing.T) {
	f := newServiceFixture(t, 1) // worker never started, so the queue never drains
	ctx := context.Background()

	_, err := f.svc.StartSaga(ctx, sagaDomain.OrderFulfillment, nil, "")
	require.NoError(t, err)

	_, err = f.svc.StartSaga(ctx, sagaDomain.OrderFulfillment, nil, "")
	assert.ErrorIs(t, err, sagaDomain.ErrQueueFull)

	failed, err := f.svc.ListSagas(ctx, ListParams{Status: sagaDomain.SagaFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "queue full", failed[0].Error)
}

func TestGetSagaStatus_NotFound(t *testing.T) {
	f := newServiceFixture(t, 1)

	_, err := f.svc.GetSagaStatus(context.Background(), "missing")

	assert.ErrorIs(t, err, sagaDomain.ErrSagaInstanceNotFound)
}

func TestGetSagaStatus_ReadsCacheFirst(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()
	cached := &sagaDomain.Instance{ID: "only-in-cache", SagaName: sagaDomain.OrderFulfillment, Status: sagaDomain.SagaCompleted}
	require.NoError(t, f.cache.Set(ctx, sagaDomain.SagaCacheKeyByID(cached.ID), cached, 0))

	inst, err := f.svc.GetSagaStatus(ctx, cached.ID)

	require.NoError(t, err)
	assert.Equal(t, sagaDomain.SagaCompleted, inst.Status)
}

func TestGetSagaStatus_CacheErrorFallsBackToRepository(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()
	def := sagaDomain.DefaultDefinitions()[0]
	inst := sagaDomain.NewInstance(def, nil, "corr-2", time.Now().UTC())
	require.NoError(t, f.repo.Create(ctx, inst))
	f.cache.GetErr = errors.New("cache unreachable")

	got, err := f.svc.GetSagaStatus(ctx, inst.ID)

	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)
	gets, _ := f.cache.Calls()
	assert.Equal(t, 1, gets)
}

func TestGetSagaStatus_UnreadableCacheEntryIsEvicted(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()
	def := sagaDomain.DefaultDefinitions()[0]
	inst := sagaDomain.NewInstance(def, nil, "corr-3", time.Now().UTC())
	require.NoError(t, f.repo.Create(ctx, inst))
	key := sagaDomain.SagaCacheKeyByID(inst.ID)
	require.NoError(t, f.cache.Set(ctx, key, []string{"not", "an", "instance"}, 600))

	got, err := f.svc.GetSagaStatus(ctx, inst.ID)

	require.NoError(t, err)
	assert.Equal(t, inst.ID, got.ID)
	assert.Eventually(t, func() bool { return !f.cache.Has(key) }, time.Second, time.Millisecond)
}

func TestGetSagaStatus_BackfillsCacheForTerminalInstances(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()
	def := sagaDomain.DefaultDefinitions()[0]
	inst := sagaDomain.NewInstance(def, nil, "", time.Now().UTC())
	inst.Finish(sagaDomain.SagaCompensated, time.Now().UTC())
	require.NoError(t, f.repo.Create(ctx, inst))

	got, err := f.svc.GetSagaStatus(ctx, inst.ID)

	require.NoError(t, err)
	assert.Equal(t, sagaDomain.SagaCompensated, got.Status)
	assert.Eventually(t, func() bool { return f.cache.Has(sagaDomain.SagaCacheKeyByID(inst.ID)) }, time.Second, 5*time.Millisecond)
}

func TestListDefinitions(t *testing.T) {
	f := newServiceFixture(t, 1)

	defs := f.svc.ListDefinitions()

	require.Len(t, defs, 2)
	assert.Equal(t, sagaDomain.OrderFulfillment, defs[0].Name)
	assert.Equal(t, sagaDomain.VendorOnboarding, defs[1].Name)
}

func TestWorkerShutdown_FailsQueuedSagas(t *testing.T) {
	f := newServiceFixture(t, 4)
	ctx := context.Background()
	res, err := f.svc.StartSaga(ctx, sagaDomain.VendorOnboarding, nil, "")
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.worker.Shutdown(shutdownCtx))

	inst, err := f.repo.GetByID(ctx, res.SagaInstanceID)
	require.NoError(t, err)
	assert.Equal(t, sagaDomain.SagaFailed, inst.Status)
	assert.Equal(t, "shutdown before start", inst.Error)
}

func TestWorkerShutdown_AbortsInFlightAfterDeadline(t *testing.T) {
	f := newServiceFixture(t, 4)
	f.client.Block = make(chan struct{})
	ctx, stop := context.WithCancel(context.Background())
	f.worker.Start(ctx)

	res, err := f.svc.StartSaga(context.Background(), sagaDomain.OrderFulfillment, nil, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		inst, err := f.repo.GetByID(context.Background(), res.SagaInstanceID)
		return err == nil && inst.Steps[0].Status == sagaDomain.StepRunning
	}, time.Second, 5*time.Millisecond)

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.worker.Shutdown(shutdownCtx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	inst, getErr := f.repo.GetByID(context.Background(), res.SagaInstanceID)
	require.NoError(t, getErr)
	assert.Equal(t, sagaDomain.SagaFailed, inst.Status)
}
