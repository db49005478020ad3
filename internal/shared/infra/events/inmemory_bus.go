package events

import (
	"context"
	"encoding/json"
	"sync"

	sharedBus "github.com/davicafu/orchestrix/internal/shared/infra/platform/bus"
)

// Delivery es lo que reciben los suscriptores en memoria: pistas de enrutado y el cuerpo JSON.
type Delivery struct {
	Topic   string
	Key     string
	Payload []byte
}

// InMemoryEventBus reparte eventos a canales con buffer. Se usa cuando Kafka está desactivado.
// Un suscriptor lento pierde mensajes en lugar de bloquear al publicador.
type InMemoryEventBus struct {
	subscribers []chan Delivery
	mu          sync.RWMutex
	closeOnce   sync.Once
	closed      bool
}

var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{subscribers: make([]chan Delivery, 0)}
}

func (b *InMemoryEventBus) Publish(ctx context.Context, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	d := Delivery{Payload: payload}
	if keyer, ok := event.(sharedBus.Keyer); ok {
		d.Key = keyer.PartitionKey()
	}
	if router, ok := event.(sharedBus.Router); ok {
		d.Topic = router.TopicName()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, sub := range b.subscribers {
		select {
		case sub <- d:
		default:
		}
	}
	return nil
}

// Subscribe registra un nuevo oyente con el buffer indicado.
func (b *InMemoryEventBus) Subscribe(bufferSize int) <-chan Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Delivery, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Close cierra todos los canales. Lo que se publique después se descarta.
func (b *InMemoryEventBus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.closed = true
		for _, ch := range b.subscribers {
			close(ch)
		}
	})
}

// Pump feeds every delivery of ch into handler until ctx ends or ch is closed.
func Pump(ctx context.Context, ch <-chan Delivery, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			handler.HandleMessage(ctx, d.Key, d.Payload)
		}
	}
}
