package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

// SagaRepo guarda instantáneas en memoria del proceso. Se pierden al reiniciar.
type SagaRepo struct {
	mu        sync.RWMutex
	instances map[string]*sagaDomain.Instance
}

func NewSagaRepo() *SagaRepo {
	return &SagaRepo{instances: make(map[string]*sagaDomain.Instance)}
}

func (r *SagaRepo) Create(ctx context.Context, inst *sagaDomain.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[inst.ID]; ok {
		return fmt.Errorf("saga instance %s already exists", inst.ID)
	}
	r.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *SagaRepo) Update(ctx context.Context, inst *sagaDomain.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[inst.ID]; !ok {
		return sagaDomain.ErrSagaInstanceNotFound
	}
	r.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *SagaRepo) GetByID(ctx context.Context, id string) (*sagaDomain.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, sagaDomain.ErrSagaInstanceNotFound
	}
	return inst.Clone(), nil
}

func (r *SagaRepo) List(ctx context.Context, criteria sharedDomain.Criteria, page sharedQuery.OffsetPagination) ([]*sagaDomain.Instance, error) {
	var conds []sharedDomain.Criterion
	if criteria != nil {
		conds = criteria.ToConditions()
	}

	r.mu.RLock()
	out := make([]*sagaDomain.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if matches(inst, conds) {
			out = append(out, inst.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	start, end := page.Normalize().Window(len(out))
	return out[start:end], nil
}

func matches(inst *sagaDomain.Instance, conds []sharedDomain.Criterion) bool {
	for _, c := range conds {
		v, _ := c.Value.(string)
		switch c.Field {
		case sagaDomain.FieldStatus:
			if string(inst.Status) != v {
				return false
			}
		case sagaDomain.FieldSagaName:
			if inst.SagaName != v {
				return false
			}
		}
	}
	return true
}

var _ sagaDomain.SagaRepository = (*SagaRepo)(nil)
