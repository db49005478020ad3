package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedCache "github.com/davicafu/orchestrix/internal/shared/infra/platform/cache"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
	sharedUtils "github.com/davicafu/orchestrix/internal/shared/infra/utils"
	"github.com/davicafu/orchestrix/pkg/metrics"
)

// StartResult se devuelve en cuanto la instancia queda encolada.
type StartResult struct {
	SagaInstanceID string `json:"sagaInstanceId"`
	CorrelationID  string `json:"correlationId"`
	Status         string `json:"status"`
}

// ListParams filters GET /sagas.
type ListParams struct {
	Status   sagaDomain.SagaStatus
	SagaName string
	Limit    int
	Offset   int
}

// SagaService agrupa los casos de uso de sagas.
type SagaService struct {
	registry *sagaDomain.DefinitionRegistry
	repo     sagaDomain.SagaRepository
	worker   *Worker
	cache    sharedCache.Cache
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewSagaService(registry *sagaDomain.DefinitionRegistry, repo sagaDomain.SagaRepository, worker *Worker, cache sharedCache.Cache, m *metrics.Metrics, log *zap.Logger) *SagaService {
	return &SagaService{
		registry: registry,
		repo:     repo,
		worker:   worker,
		cache:    cache,
		metrics:  m,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSaga crea y persiste una instancia y la encola para ejecutarla.
func (s *SagaService) StartSaga(ctx context.Context, sagaName string, input map[string]interface{}, correlationID string) (*StartResult, error) {
	def, ok := s.registry.Get(sagaName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sagaDomain.ErrSagaDefinitionNotFound, sagaName)
	}

	inst := sagaDomain.NewInstance(def, input, correlationID, s.now())
	if err := s.repo.Create(ctx, inst.Clone()); err != nil {
		s.log.Error("Failed to create saga instance", zap.String("saga_name", sagaName), zap.Error(err))
		return nil, err
	}
	sharedCache.SyncCacheSet(ctx, s.cache, sagaDomain.SagaCacheKeyByID(inst.ID), inst.Clone(), snapshotTTL, s.log)

	result := &StartResult{SagaInstanceID: inst.ID, CorrelationID: inst.CorrelationID, Status: "started"}
	if err := s.worker.Enqueue(ctx, def, inst); err != nil {
		return nil, err
	}

	s.metrics.IncSagaStarted(sagaName)
	s.log.Info("Saga started",
		zap.String("saga_id", inst.ID),
		zap.String("saga_name", sagaName),
		zap.String("correlation_id", inst.CorrelationID))
	return result, nil
}

// GetSagaStatus lee primero de caché y luego del repositorio.
func (s *SagaService) GetSagaStatus(ctx context.Context, id string) (*sagaDomain.Instance, error) {
	key := sagaDomain.SagaCacheKeyByID(id)
	if s.cache != nil {
		var inst sagaDomain.Instance
		hit, err := s.cache.Get(ctx, key, &inst)
		if err != nil {
			// una entrada ilegible se descarta y se lee del repositorio
			s.log.Warn("Saga cache read failed", zap.String("saga_id", id), zap.Error(err))
			sharedCache.AsyncCacheDelete(ctx, s.cache, key, s.log)
		} else if hit {
			return &inst, nil
		}
	}

	var inst *sagaDomain.Instance
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		inst, errRetry = s.repo.GetByID(ctx, id)
		if errors.Is(errRetry, sagaDomain.ErrSagaInstanceNotFound) {
			return nil
		}
		return errRetry
	})
	if err != nil {
		s.log.Error("Failed to fetch saga instance", zap.String("saga_id", id), zap.Error(err))
		return nil, err
	}
	if inst == nil {
		return nil, sagaDomain.ErrSagaInstanceNotFound
	}

	// las instancias en curso las escribe el runner en cada transición
	if inst.Status.Terminal() {
		sharedCache.AsyncCacheSet(ctx, s.cache, key, inst, snapshotTTL, s.log)
	}
	return inst, nil
}

// ListSagas devuelve las instancias de la más reciente a la más antigua.
func (s *SagaService) ListSagas(ctx context.Context, p ListParams) ([]*sagaDomain.Instance, error) {
	criteria := sharedDomain.And(
		sagaDomain.StatusCriteria{Status: p.Status},
		sagaDomain.NameCriteria{Name: p.SagaName},
	)
	return s.repo.List(ctx, criteria, sharedQuery.OffsetPagination{Limit: p.Limit, Offset: p.Offset}.Normalize())
}

func (s *SagaService) ListDefinitions() []sagaDomain.Definition {
	return s.registry.All()
}
