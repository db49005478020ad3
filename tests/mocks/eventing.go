package mocks

import (
	"context"
	"sync"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	"github.com/stretchr/testify/mock"
)

// MockDeliverer mocks eventDomain.Deliverer.
type MockDeliverer struct {
	mock.Mock
}

var _ eventDomain.Deliverer = (*MockDeliverer)(nil)

func (m *MockDeliverer) Deliver(ctx context.Context, sub eventDomain.Subscription, msg eventDomain.EventMessage) error {
	args := m.Called(ctx, sub, msg)
	return args.Error(0)
}

// Delivery is one call recorded by RecordingDeliverer.
type Delivery struct {
	SubscriptionID string
	EventID        string
}

// RecordingDeliverer registra las llamadas y falla para las suscripciones de Fail.
type RecordingDeliverer struct {
	mu    sync.Mutex
	Calls []Delivery
	Fail  map[string]error
}

var _ eventDomain.Deliverer = (*RecordingDeliverer)(nil)

func NewRecordingDeliverer() *RecordingDeliverer {
	return &RecordingDeliverer{Fail: make(map[string]error)}
}

func (d *RecordingDeliverer) Deliver(ctx context.Context, sub eventDomain.Subscription, msg eventDomain.EventMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Delivery{SubscriptionID: sub.ID, EventID: msg.ID})
	return d.Fail[sub.ID]
}

// CallsFor devuelve, en orden, las llamadas registradas para una suscripción.
func (d *RecordingDeliverer) CallsFor(subscriptionID string) []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Delivery
	for _, c := range d.Calls {
		if c.SubscriptionID == subscriptionID {
			out = append(out, c)
		}
	}
	return out
}
