package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	sharedCache "github.com/davicafu/orchestrix/internal/shared/infra/platform/cache"
	sharedUtils "github.com/davicafu/orchestrix/internal/shared/infra/utils"
	"github.com/davicafu/orchestrix/pkg/metrics"
)

const (
	DefaultBackoffUnit = time.Second
	snapshotTTL        = 600 // seconds
)

// Runner ejecuta las instancias paso a paso y compensa si algo falla.
// Cada transición se persiste y se escribe también en caché.
type Runner struct {
	repo        sagaDomain.SagaRepository
	client      sagaDomain.StepClient
	cache       sharedCache.Cache
	backoffUnit time.Duration
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

func NewRunner(repo sagaDomain.SagaRepository, client sagaDomain.StepClient, cache sharedCache.Cache, backoffUnit time.Duration, m *metrics.Metrics, log *zap.Logger) *Runner {
	if backoffUnit <= 0 {
		backoffUnit = DefaultBackoffUnit
	}
	return &Runner{
		repo:        repo,
		client:      client,
		cache:       cache,
		backoffUnit: backoffUnit,
		metrics:     m,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs the pending steps of inst in order. It returns when the
// instance reaches a terminal status.
func (r *Runner) Execute(ctx context.Context, def sagaDomain.Definition, inst *sagaDomain.Instance) {
	log := r.log.With(zap.String("saga_id", inst.ID), zap.String("saga_name", inst.SagaName))

	for i := inst.CurrentStep; i < len(def.Steps); i++ {
		stepDef := def.Steps[i]
		step := &inst.Steps[i]

		started := r.now()
		inst.CurrentStep = i
		step.Status = sagaDomain.StepRunning
		step.StartedAt = &started
		if !r.persist(ctx, inst, log) {
			return
		}

		result, err := r.runStep(ctx, inst, stepDef, step, log)
		if err != nil {
			if ctx.Err() != nil {
				r.Fail(ctx, inst, fmt.Sprintf("step %s interrupted: %v", stepDef.Name, ctx.Err()))
				return
			}
			failed := r.now()
			step.Status = sagaDomain.StepFailed
			step.CompletedAt = &failed
			step.Error = err.Error()
			inst.Error = fmt.Sprintf("step %s failed: %v", stepDef.Name, err)
			log.Warn("Saga step failed, compensating",
				zap.String("step", stepDef.Name),
				zap.Int("attempt", step.Attempts),
				zap.Error(err))
			if !r.persist(ctx, inst, log) {
				return
			}
			r.compensate(ctx, def, inst, i, log)
			return
		}

		done := r.now()
		step.Status = sagaDomain.StepCompleted
		step.CompletedAt = &done
		step.Result = result
		if !r.persist(ctx, inst, log) {
			return
		}
	}

	inst.Finish(sagaDomain.SagaCompleted, r.now())
	if r.persist(ctx, inst, log) {
		r.metrics.IncSagaFinished(inst.SagaName, string(inst.Status))
		log.Info("Saga completed")
	}
}

func (r *Runner) runStep(ctx context.Context, inst *sagaDomain.Instance, stepDef sagaDomain.StepDefinition, step *sagaDomain.StepState, log *zap.Logger) (json.RawMessage, error) {
	req := sagaDomain.StepRequest{
		Action:         stepDef.Action,
		SagaInstanceID: inst.ID,
		SagaName:       inst.SagaName,
		Step:           stepDef.Name,
		CorrelationID:  inst.CorrelationID,
		Input:          inst.Input,
		Results:        inst.Results(),
	}

	var result json.RawMessage
	err := sharedUtils.RetryWithBackoff(ctx, stepDef.Retries+1, sharedUtils.LinearBackoff(r.backoffUnit), func() error {
		step.Attempts++
		res, err := r.client.Invoke(ctx, stepDef.Service, req, stepDef.Timeout())
		if err != nil {
			r.metrics.IncStepAttempt(inst.SagaName, stepDef.Name, "failure")
			log.Info("Saga step attempt failed",
				zap.String("step", stepDef.Name),
				zap.Int("attempt", step.Attempts),
				zap.Error(err))
			return err
		}
		r.metrics.IncStepAttempt(inst.SagaName, stepDef.Name, "success")
		result = res
		return nil
	})
	return result, err
}

// ---------------- Compensación ----------------

// compensate deshace los pasos completados antes de failedIndex. Los errores
// se anotan en el paso y nunca detienen el recorrido.
func (r *Runner) compensate(ctx context.Context, def sagaDomain.Definition, inst *sagaDomain.Instance, failedIndex int, log *zap.Logger) {
	inst.Status = sagaDomain.SagaCompensating
	if !r.persist(ctx, inst, log) {
		return
	}

	// las compensaciones siguen aunque el worker se esté parando
	compCtx := context.WithoutCancel(ctx)
	for _, idx := range def.CompensationPlan(failedIndex) {
		stepDef := def.Steps[idx]
		step := &inst.Steps[idx]
		if step.Status != sagaDomain.StepCompleted || stepDef.Compensation == "" {
			continue
		}

		req := sagaDomain.StepRequest{
			Action:         stepDef.Compensation,
			SagaInstanceID: inst.ID,
			SagaName:       inst.SagaName,
			Step:           stepDef.Name,
			CorrelationID:  inst.CorrelationID,
			Input:          inst.Input,
			Results:        inst.Results(),
		}
		if _, err := r.client.Invoke(compCtx, stepDef.Service, req, stepDef.Timeout()); err != nil {
			step.CompensationError = err.Error()
			log.Error("Compensation failed",
				zap.String("step", stepDef.Name),
				zap.String("action", stepDef.Compensation),
				zap.Error(err))
		} else {
			at := r.now()
			step.CompensatedAt = &at
		}
		if !r.persist(compCtx, inst, log) {
			return
		}
	}

	inst.Finish(sagaDomain.SagaCompensated, r.now())
	if r.persist(compCtx, inst, log) {
		r.metrics.IncSagaFinished(inst.SagaName, string(inst.Status))
		log.Info("Saga compensated", zap.String("error", inst.Error))
	}
}

// ---------------- Persistencia ----------------

// Fail termina una instancia con la que el runner no puede seguir.
func (r *Runner) Fail(ctx context.Context, inst *sagaDomain.Instance, reason string) {
	inst.Error = reason
	inst.Finish(sagaDomain.SagaFailed, r.now())
	r.metrics.IncSagaFinished(inst.SagaName, string(inst.Status))

	writeCtx := context.WithoutCancel(ctx)
	if err := r.repo.Update(writeCtx, inst.Clone()); err != nil {
		r.log.Error("Failed to persist failed saga",
			zap.String("saga_id", inst.ID),
			zap.Error(err))
	}
	sharedCache.SyncCacheSet(writeCtx, r.cache, sagaDomain.SagaCacheKeyByID(inst.ID), inst.Clone(), snapshotTTL, r.log)
	r.log.Warn("Saga failed", zap.String("saga_id", inst.ID), zap.String("error", reason))
}

// persist guarda una instantánea. Un error del repositorio hace fallar la instancia.
func (r *Runner) persist(ctx context.Context, inst *sagaDomain.Instance, log *zap.Logger) bool {
	writeCtx := context.WithoutCancel(ctx)
	snapshot := inst.Clone()
	if err := r.repo.Update(writeCtx, snapshot); err != nil {
		log.Error("Failed to persist saga state", zap.Error(err))
		r.Fail(ctx, inst, fmt.Sprintf("persist saga state: %v", err))
		return false
	}
	sharedCache.SyncCacheSet(writeCtx, r.cache, sagaDomain.SagaCacheKeyByID(inst.ID), snapshot, snapshotTTL, log)
	return true
}
