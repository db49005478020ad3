package memory

import (
	"context"
	"sync"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
)

// SubscriptionRegistry guarda las suscripciones en orden de registro.
type SubscriptionRegistry struct {
	mu    sync.RWMutex
	subs  []eventDomain.Subscription
	index map[string]int
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{index: make(map[string]int)}
}

// Save añade una suscripción nueva o reemplaza una existente en su sitio.
func (r *SubscriptionRegistry) Save(ctx context.Context, sub eventDomain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub.EventTypes = append([]string(nil), sub.EventTypes...)
	if sub.RetryPolicy != nil {
		p := *sub.RetryPolicy
		sub.RetryPolicy = &p
	}
	if i, ok := r.index[sub.ID]; ok {
		r.subs[i] = sub
		return nil
	}
	r.index[sub.ID] = len(r.subs)
	r.subs = append(r.subs, sub)
	return nil
}

func (r *SubscriptionRegistry) GetByID(ctx context.Context, id string) (eventDomain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return eventDomain.Subscription{}, eventDomain.ErrSubscriptionNotFound
	}
	return r.subs[i], nil
}

func (r *SubscriptionRegistry) List(ctx context.Context) ([]eventDomain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]eventDomain.Subscription(nil), r.subs...), nil
}

var _ eventDomain.SubscriptionRepository = (*SubscriptionRegistry)(nil)
