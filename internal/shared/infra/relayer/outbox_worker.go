package relayer

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedDomainEvents "github.com/davicafu/orchestrix/internal/shared/domain/events"
	sharedBus "github.com/davicafu/orchestrix/internal/shared/infra/platform/bus"
	"go.uber.org/zap"
)

// Worker publica en el bus las filas pendientes del outbox.
type Worker struct {
	repo          sharedDomain.OutboxRepository
	publisher     sharedBus.EventBus
	eventRegistry map[string]sharedDomainEvents.EventMetadata
	interval      time.Duration
	batchSize     int
	log           *zap.Logger

	retention  time.Duration
	purgeEvery time.Duration
	now        func() time.Time
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.EventBus,
	registry map[string]sharedDomainEvents.EventMetadata,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:          repo,
		publisher:     publisher,
		eventRegistry: registry,
		interval:      interval,
		batchSize:     batchSize,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithRetention drops relayed rows older than retention, checked every purgeEvery.
// It has no effect when the repository cannot purge.
func (w *Worker) WithRetention(retention, purgeEvery time.Duration) *Worker {
	w.retention = retention
	w.purgeEvery = purgeEvery
	return w
}

// Start consulta el outbox periódicamente hasta que se cancela ctx.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var purgeC <-chan time.Time
	if _, ok := w.repo.(sharedDomain.OutboxPurger); ok && w.retention > 0 && w.purgeEvery > 0 {
		purgeTicker := time.NewTicker(w.purgeEvery)
		defer purgeTicker.Stop()
		purgeC = purgeTicker.C
	}

	w.log.Info("Outbox worker started", zap.Duration("interval", w.interval), zap.Duration("retention", w.retention))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		case <-purgeC:
			w.Purge(ctx)
		}
	}
}

// Purge removes relayed rows processed more than the retention ago.
func (w *Worker) Purge(ctx context.Context) {
	purger, ok := w.repo.(sharedDomain.OutboxPurger)
	if !ok || w.retention <= 0 {
		return
	}
	n, err := purger.PurgeProcessedOutbox(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.log.Warn("Failed to purge relayed outbox events", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("Purged relayed outbox events", zap.Int64("count", n))
	}
}

func (w *Worker) ProcessBatch(ctx context.Context) {
	events, err := w.repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("Failed to fetch pending outbox events", zap.Error(err))
		return
	}
	if len(events) > 0 {
		w.log.Debug("Relaying outbox events", zap.Int("count", len(events)))
	}

	for _, evt := range events {
		w.publishAndMark(ctx, evt)
	}
}

func (w *Worker) publishAndMark(ctx context.Context, evt sharedDomain.OutboxEvent) {
	metadata, ok := w.eventRegistry[evt.EventType]
	if !ok {
		// Se deja pendiente: un despliegue posterior puede registrar el tipo.
		w.log.Error("Unknown event type in relay registry", zap.String("event_type", evt.EventType))
		return
	}

	// Ida y vuelta por el tipo registrado: sólo salen del outbox payloads bien formados.
	typed := reflect.New(metadata.Type).Interface()
	raw, err := json.Marshal(evt.Payload)
	if err != nil {
		w.log.Error("Failed to encode outbox payload", zap.String("outbox_id", evt.ID.String()), zap.Error(err))
		return
	}
	if err := json.Unmarshal(raw, typed); err != nil {
		w.log.Error("Failed to decode outbox payload", zap.String("outbox_id", evt.ID.String()), zap.Error(err))
		return
	}
	data, err := json.Marshal(typed)
	if err != nil {
		w.log.Error("Failed to encode relayed event", zap.String("outbox_id", evt.ID.String()), zap.Error(err))
		return
	}

	key := evt.AggregateID
	if keyer, ok := typed.(sharedBus.Keyer); ok && keyer.PartitionKey() != "" {
		key = keyer.PartitionKey()
	}

	integration := sharedDomainEvents.IntegrationEvent{
		Type:        evt.EventType,
		Timestamp:   evt.CreatedAt,
		Data:        data,
		Key:         key,
		Destination: metadata.Topic,
	}

	if err := w.publisher.Publish(ctx, integration); err != nil {
		w.log.Warn("Failed to publish outbox event",
			zap.String("outbox_id", evt.ID.String()),
			zap.String("event_type", evt.EventType),
			zap.Error(err),
		)
		return
	}

	if err := w.repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
		w.log.Warn("Failed to mark outbox event processed",
			zap.String("outbox_id", evt.ID.String()),
			zap.Error(err),
		)
		return
	}
	w.log.Debug("Outbox event relayed", zap.String("outbox_id", evt.ID.String()), zap.String("topic", metadata.Topic))
}
