package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedUtils "github.com/davicafu/orchestrix/internal/shared/infra/utils"
	"github.com/davicafu/orchestrix/pkg/metrics"
)

// Dispatcher entrega eventos a los suscriptores, reintenta según su política
// y manda a dead letter lo que sigue fallando.
type Dispatcher struct {
	deliverer   eventDomain.Deliverer
	deadLetters eventDomain.DeadLetterRepository
	baseBackoff time.Duration
	metrics     *metrics.Metrics
	log         *zap.Logger

	// filtros compilados por id de suscripción
	filtersMu sync.RWMutex
	filters   map[string]compiledFilter
}

type compiledFilter struct {
	expr   string
	filter eventDomain.Filter
	err    error
}

func NewDispatcher(deliverer eventDomain.Deliverer, deadLetters eventDomain.DeadLetterRepository, baseBackoff time.Duration, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		deliverer:   deliverer,
		deadLetters: deadLetters,
		baseBackoff: baseBackoff,
		metrics:     m,
		log:         log,
		filters:     make(map[string]compiledFilter),
	}
}

// DispatchResult resume un reparto.
type DispatchResult struct {
	Delivered int
	Failed    int
	Skipped   int
}

// Dispatch entrega msg a cada suscripción interesada, de una en una y en el orden recibido.
func (d *Dispatcher) Dispatch(ctx context.Context, msg eventDomain.EventMessage, subs []eventDomain.Subscription) DispatchResult {
	var res DispatchResult
	for _, sub := range subs {
		if !sub.Wants(msg.EventType) {
			continue
		}
		if sub.Filter != "" {
			filter, err := d.filterFor(sub)
			if err != nil {
				d.log.Warn("Skipping subscription with invalid filter",
					zap.String("subscription_id", sub.ID), zap.Error(err))
				res.Skipped++
				continue
			}
			if !filter.Match(msg) {
				res.Skipped++
				continue
			}
		}

		if err := d.Deliver(ctx, sub, msg); err != nil {
			res.Failed++
		} else {
			res.Delivered++
		}
	}
	return res
}

// filterFor compila el filtro de sub una sola vez. Si la expresión cambia
// para el mismo id se vuelve a compilar.
func (d *Dispatcher) filterFor(sub eventDomain.Subscription) (eventDomain.Filter, error) {
	d.filtersMu.RLock()
	c, ok := d.filters[sub.ID]
	d.filtersMu.RUnlock()
	if ok && c.expr == sub.Filter {
		return c.filter, c.err
	}

	f, err := eventDomain.ParseFilter(sub.Filter)
	d.filtersMu.Lock()
	d.filters[sub.ID] = compiledFilter{expr: sub.Filter, filter: f, err: err}
	d.filtersMu.Unlock()
	return f, err
}

// WorstCaseDelivery es lo máximo que puede tardar Deliver contra un suscriptor
// que no responde: todos los intentos agotan el timeout y se esperan todos los backoffs.
// Publish reparte en serie, así que esto se suma por cada suscriptor caído.
func (d *Dispatcher) WorstCaseDelivery(sub eventDomain.Subscription) time.Duration {
	policy := sub.Policy()
	attempts := 1 + max(policy.MaxRetries, 0)
	backoff := sharedUtils.ExponentialBackoff(d.baseBackoff, max(policy.BackoffMultiplier, 1), policy.MaxBackoff())

	total := time.Duration(attempts) * sub.Timeout()
	for n := 1; n < attempts; n++ {
		total += backoff(n)
	}
	return total
}

// Deliver envía msg a una suscripción con reintentos. Tras el último intento
// fallido se escribe un único dead letter y se devuelve el error.
func (d *Dispatcher) Deliver(ctx context.Context, sub eventDomain.Subscription, msg eventDomain.EventMessage) error {
	policy := sub.Policy()
	attempts := 1 + max(policy.MaxRetries, 0)
	backoff := sharedUtils.ExponentialBackoff(d.baseBackoff, max(policy.BackoffMultiplier, 1), policy.MaxBackoff())

	attempt := 0
	err := sharedUtils.RetryWithBackoff(ctx, attempts, backoff, func() error {
		attempt++
		start := time.Now()
		err := d.deliverer.Deliver(ctx, sub, msg)
		if err != nil {
			d.metrics.ObserveDelivery(msg.EventType, "failure", time.Since(start))
			d.log.Warn("Delivery attempt failed",
				zap.String("event_id", msg.ID),
				zap.String("subscription_id", sub.ID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		d.metrics.ObserveDelivery(msg.EventType, "success", time.Since(start))
		return nil
	})
	if err == nil {
		return nil
	}

	d.recordDeadLetter(ctx, sub, msg, err, attempt-1)
	return err
}

func (d *Dispatcher) recordDeadLetter(ctx context.Context, sub eventDomain.Subscription, msg eventDomain.EventMessage, cause error, retries int) {
	dl := eventDomain.DeadLetter{
		ID:             uuid.NewString(),
		EventID:        msg.ID,
		SubscriptionID: sub.ID,
		EventType:      msg.EventType,
		Error:          cause.Error(),
		RetryCount:     retries,
		Event:          &msg,
		CreatedAt:      time.Now().UTC(),
	}
	d.metrics.IncDeadLetter(msg.EventType)

	// el contexto del llamante puede estar cancelado; el registro debe guardarse igual
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.deadLetters.Save(saveCtx, dl); err != nil {
		d.log.Error("Failed to store dead letter",
			zap.String("event_id", msg.ID),
			zap.String("subscription_id", sub.ID),
			zap.Error(err))
		return
	}
	d.log.Info("Delivery dead-lettered",
		zap.String("event_id", msg.ID),
		zap.String("subscription_id", sub.ID),
		zap.String("dead_letter_queue", sub.DeadLetterQueue),
		zap.Int("retry_count", retries))
}
