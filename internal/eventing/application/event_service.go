package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
	sharedUtils "github.com/davicafu/orchestrix/internal/shared/infra/utils"
	"github.com/davicafu/orchestrix/pkg/metrics"
)

const (
	defaultSource     = "unknown"
	outboxWriteBudget = 200 * time.Millisecond
)

// PublishResult se devuelve para un evento aceptado.
type PublishResult struct {
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
}

type QueryParams struct {
	EventType     string
	CorrelationID string
	Limit         int
	Offset        int
}

type QueryResult struct {
	Events []eventDomain.EventMessage `json:"events"`
	Total  int                        `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

type ReplayRequest struct {
	EventType          string
	From               time.Time
	To                 time.Time
	TargetSubscription string
}

type ReplayResult struct {
	Replayed  int `json:"replayed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type HealthReport struct {
	Status              string    `json:"status"`
	Timestamp           time.Time `json:"timestamp"`
	EventTypes          int       `json:"eventTypes"`
	Subscriptions       int       `json:"subscriptions"`
	ActiveSubscriptions int       `json:"activeSubscriptions"`
	StoredEvents        int       `json:"storedEvents"`
}

// EventService agrupa los casos de uso de publicación, suscripción, consulta y replay.
type EventService struct {
	registry    *eventDomain.DefinitionRegistry
	store       eventDomain.EventStore
	subs        eventDomain.SubscriptionRepository
	dispatcher  *Dispatcher
	outbox      sharedDomain.OutboxRepository
	deadLetters eventDomain.DeadLetterRepository
	analytics   eventDomain.EventAnalyticsRepository
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

func NewEventService(
	registry *eventDomain.DefinitionRegistry,
	store eventDomain.EventStore,
	subs eventDomain.SubscriptionRepository,
	dispatcher *Dispatcher,
	log *zap.Logger,
) *EventService {
	return &EventService{
		registry:   registry,
		store:      store,
		subs:       subs,
		dispatcher: dispatcher,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithOutbox activa el log durable de eventos.
func (s *EventService) WithOutbox(repo sharedDomain.OutboxRepository) *EventService {
	s.outbox = repo
	return s
}

func (s *EventService) WithDeadLetters(repo eventDomain.DeadLetterRepository) *EventService {
	s.deadLetters = repo
	return s
}

func (s *EventService) WithAnalytics(repo eventDomain.EventAnalyticsRepository) *EventService {
	s.analytics = repo
	return s
}

func (s *EventService) WithMetrics(m *metrics.Metrics) *EventService {
	s.metrics = m
	return s
}

// ---------------- Publicación ----------------

// Publish valida, guarda y reparte un evento. Un fallo de entrega nunca hace fallar la publicación.
func (s *EventService) Publish(ctx context.Context, eventType string, data map[string]interface{}, meta eventDomain.PublishMetadata) (*PublishResult, error) {
	def, err := s.registry.Validate(eventType, data)
	if err != nil {
		s.metrics.IncEventRejected(sharedUtils.Ternary(errors.Is(err, eventDomain.ErrUnknownEventType), "unknown_type", "missing_fields"))
		s.log.Info("Publish rejected", zap.String("event_type", eventType), zap.Error(err))
		return nil, err
	}

	msg := eventDomain.EventMessage{
		ID:            uuid.NewString(),
		EventType:     eventType,
		Version:       def.Schema.Version,
		Timestamp:     s.now(),
		Source:        sharedUtils.FirstNonEmpty(meta.Source, defaultSource),
		CorrelationID: sharedUtils.FirstNonEmpty(meta.CorrelationID, uuid.NewString()),
		CausationID:   meta.CausationID,
		Data:          data,
		Metadata: eventDomain.MessageMetadata{
			TraceID: sharedUtils.FirstNonEmpty(meta.TraceID, uuid.NewString()),
			SpanID:  sharedUtils.FirstNonEmpty(meta.SpanID, uuid.NewString()),
			UserID:  meta.UserID,
		},
	}

	if err := s.store.Append(ctx, msg, def.Retention); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	s.metrics.IncEventPublished(eventType)
	s.refreshStoredGauge(ctx, eventType)

	s.writeOutboxAsync(ctx, msg)

	subs, err := s.subs.List(ctx)
	if err != nil {
		s.log.Error("Failed to list subscriptions, event stored but not dispatched",
			zap.String("event_id", msg.ID), zap.Error(err))
	} else {
		// las entregas sobreviven a un llamante que se desconecta
		res := s.dispatcher.Dispatch(context.WithoutCancel(ctx), msg, subs)
		s.log.Info("Event published",
			zap.String("event_id", msg.ID),
			zap.String("event_type", eventType),
			zap.String("correlation_id", msg.CorrelationID),
			zap.Int("delivered", res.Delivered),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped))
	}

	return &PublishResult{EventID: msg.ID, CorrelationID: msg.CorrelationID, Timestamp: msg.Timestamp}, nil
}

func (s *EventService) writeOutboxAsync(ctx context.Context, msg eventDomain.EventMessage) {
	if s.outbox == nil {
		return
	}
	evt := sharedDomain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "event",
		AggregateID:   msg.ID,
		EventType:     msg.EventType,
		Payload:       msg,
		CreatedAt:     msg.Timestamp,
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outboxWriteBudget)
		defer cancel()
		if err := s.outbox.SaveOutboxEvent(writeCtx, evt); err != nil {
			s.metrics.IncOutboxWriteFailure()
			s.log.Warn("Durable event log write failed",
				zap.String("event_id", msg.ID),
				zap.String("event_type", msg.EventType),
				zap.Error(err))
		}
	}()
}

func (s *EventService) refreshStoredGauge(ctx context.Context, eventType string) {
	if s.metrics == nil {
		return
	}
	if counts, err := s.store.Counts(ctx); err == nil {
		s.metrics.SetStoredEvents(eventType, counts[eventType])
	}
}

// ---------------- Suscripciones ----------------

// Subscribe valida y registra una suscripción, rellenando valores por defecto.
func (s *EventService) Subscribe(ctx context.Context, sub eventDomain.Subscription) (*eventDomain.Subscription, error) {
	if err := sub.Validate(s.registry); err != nil {
		return nil, err
	}
	sub.ID = uuid.NewString()
	sub.Active = true
	sub.CreatedAt = s.now()
	sub.ApplyDefaults()

	if err := s.subs.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	s.log.Info("Subscription registered",
		zap.String("subscription_id", sub.ID),
		zap.String("service", sub.ServiceName),
		zap.Strings("event_types", sub.EventTypes),
		zap.Duration("worst_case_delivery", s.dispatcher.WorstCaseDelivery(sub)))
	return &sub, nil
}

func (s *EventService) ListSubscriptions(ctx context.Context) ([]eventDomain.Subscription, error) {
	return s.subs.List(ctx)
}

func (s *EventService) ListDefinitions() []eventDomain.EventDefinition {
	return s.registry.All()
}

// ---------------- Consulta y replay ----------------

// Query lee el almacén en memoria, del más reciente al más antiguo.
func (s *EventService) Query(ctx context.Context, p QueryParams) (*QueryResult, error) {
	page := sharedQuery.OffsetPagination{Limit: p.Limit, Offset: p.Offset}.Normalize()

	events, err := s.store.Find(ctx, sharedDomain.And(
		eventDomain.EventTypeCriteria{EventType: p.EventType},
		eventDomain.CorrelationCriteria{CorrelationID: p.CorrelationID},
	))
	if err != nil {
		return nil, err
	}

	// Find devuelve el más antiguo primero, con desempate por llegada
	slices.Reverse(events)
	start, end := page.Window(len(events))

	return &QueryResult{
		Events: append([]eventDomain.EventMessage{}, events[start:end]...),
		Total:  len(events),
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

// Replay reenvía a una suscripción los eventos guardados de un tipo en [From, To], del más antiguo al más reciente.
func (s *EventService) Replay(ctx context.Context, req ReplayRequest) (*ReplayResult, error) {
	if req.EventType == "" {
		return nil, fmt.Errorf("%w: eventType is required", eventDomain.ErrValidation)
	}
	if !req.To.IsZero() && req.From.After(req.To) {
		return nil, fmt.Errorf("%w: fromTimestamp is after toTimestamp", eventDomain.ErrValidation)
	}
	sub, err := s.subs.GetByID(ctx, req.TargetSubscription)
	if err != nil {
		return nil, err
	}

	window := eventDomain.TimeWindowCriteria{}
	if !req.From.IsZero() {
		window.From = &req.From
	}
	if !req.To.IsZero() {
		window.To = &req.To
	}
	events, err := s.store.Find(ctx, sharedDomain.And(eventDomain.EventTypeCriteria{EventType: req.EventType}, window))
	if err != nil {
		return nil, err
	}

	res := &ReplayResult{Replayed: len(events)}
	for _, msg := range events {
		if err := s.dispatcher.Deliver(ctx, sub, msg); err != nil {
			res.Failed++
			continue
		}
		res.Succeeded++
	}
	s.log.Info("Replay finished",
		zap.String("event_type", req.EventType),
		zap.String("subscription_id", sub.ID),
		zap.Int("replayed", res.Replayed),
		zap.Int("succeeded", res.Succeeded))
	return res, nil
}

// ---------------- Salud y estadísticas ----------------

func (s *EventService) Health(ctx context.Context) (*HealthReport, error) {
	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Status:        "healthy",
		Timestamp:     s.now(),
		EventTypes:    s.registry.Len(),
		Subscriptions: len(subs),
	}
	for _, sub := range subs {
		if sub.Active {
			report.ActiveSubscriptions++
		}
	}
	for _, n := range counts {
		report.StoredEvents += n
	}
	return report, nil
}

func (s *EventService) DeadLetters(ctx context.Context, subscriptionID string, page sharedQuery.OffsetPagination) ([]eventDomain.DeadLetter, error) {
	if s.deadLetters == nil {
		return []eventDomain.DeadLetter{}, nil
	}
	return s.deadLetters.List(ctx, subscriptionID, page.Normalize())
}

// Stats devuelve los conteos diarios por tipo desde analítica.
func (s *EventService) Stats(ctx context.Context, from, to time.Time) ([]eventDomain.DailyEventCount, error) {
	if s.analytics == nil {
		return nil, eventDomain.ErrAnalyticsDisabled
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	return s.analytics.GetDailyCounts(ctx, from, to)
}
