package mocks

import (
	"context"
	"sync"
	"time"

	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedBus "github.com/davicafu/orchestrix/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOutboxRepository mocks sharedDomain.OutboxRepository.
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) SaveOutboxEvent(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sharedDomain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPublisher mocks bus.EventBus.
type MockPublisher struct {
	mock.Mock
}

var _ sharedBus.EventBus = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, event interface{}) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// InMemoryOutbox es un OutboxRepository falso y seguro entre goroutines.
type InMemoryOutbox struct {
	mu     sync.Mutex
	Events []sharedDomain.OutboxEvent
	Err    error // returned by SaveOutboxEvent when set
}

var _ sharedDomain.OutboxRepository = (*InMemoryOutbox)(nil)

func NewInMemoryOutbox() *InMemoryOutbox {
	return &InMemoryOutbox{}
}

func (o *InMemoryOutbox) SaveOutboxEvent(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.Events = append(o.Events, evt)
	return nil
}

func (o *InMemoryOutbox) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []sharedDomain.OutboxEvent
	for _, e := range o.Events {
		if !e.Processed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *InMemoryOutbox) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.Events {
		if o.Events[i].ID == id {
			now := time.Now().UTC()
			o.Events[i].Processed = true
			o.Events[i].ProcessedAt = &now
		}
	}
	return nil
}

func (o *InMemoryOutbox) PurgeProcessedOutbox(ctx context.Context, before time.Time) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.Events[:0]
	var purged int64
	for _, e := range o.Events {
		if e.Processed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	o.Events = kept
	return purged, nil
}

// Len devuelve el número de filas guardadas.
func (o *InMemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Events)
}
