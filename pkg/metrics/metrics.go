package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors of the orchestration service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	eventsPublished  *prometheus.CounterVec
	eventsRejected   *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryLatency  prometheus.Histogram
	deadLetters      *prometheus.CounterVec
	sagasStarted     *prometheus.CounterVec
	sagasFinished    *prometheus.CounterVec
	stepAttempts     *prometheus.CounterVec
	sagaQueueDepth   prometheus.Gauge
	storedEvents     *prometheus.GaugeVec
	outboxWriteFails prometheus.Counter
}

// New creates a registry and registers every collector.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_events_published_total",
		Help: "Total number of accepted events.",
	}, []string{"event_type"})

	eventsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_events_rejected_total",
		Help: "Total number of rejected publish requests.",
	}, []string{"reason"})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_deliveries_total",
		Help: "Total number of delivery attempts by outcome.",
	}, []string{"event_type", "outcome"})

	deliveryLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrix_delivery_latency_seconds",
		Help:    "Latency of subscriber webhook calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	deadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_dead_letters_total",
		Help: "Total number of dead-letter records written.",
	}, []string{"event_type"})

	sagasStarted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_sagas_started_total",
		Help: "Total number of started saga instances.",
	}, []string{"saga"})

	sagasFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_sagas_finished_total",
		Help: "Total number of saga instances reaching a terminal status.",
	}, []string{"saga", "status"})

	stepAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrix_saga_step_attempts_total",
		Help: "Total number of saga step invocations by outcome.",
	}, []string{"saga", "step", "outcome"})

	sagaQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrix_saga_queue_depth",
		Help: "Saga instances waiting for a worker.",
	})

	storedEvents := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orchestrix_stored_events",
		Help: "Events currently retained in memory per type.",
	}, []string{"event_type"})

	outboxWriteFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orchestrix_outbox_write_failures_total",
		Help: "Total number of failed durable log writes.",
	})

	registry.MustRegister(eventsPublished, eventsRejected, deliveries, deliveryLatency, deadLetters,
		sagasStarted, sagasFinished, stepAttempts, sagaQueueDepth, storedEvents, outboxWriteFails)

	return &Metrics{
		registry:         registry,
		eventsPublished:  eventsPublished,
		eventsRejected:   eventsRejected,
		deliveries:       deliveries,
		deliveryLatency:  deliveryLatency,
		deadLetters:      deadLetters,
		sagasStarted:     sagasStarted,
		sagasFinished:    sagasFinished,
		stepAttempts:     stepAttempts,
		sagaQueueDepth:   sagaQueueDepth,
		storedEvents:     storedEvents,
		outboxWriteFails: outboxWriteFails,
	}
}

// Handler exposes the registry via HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncEventRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(reason).Inc()
}

// ObserveDelivery records one webhook attempt. outcome is "success" or "failure".
func (m *Metrics) ObserveDelivery(eventType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, outcome).Inc()
	m.deliveryLatency.Observe(d.Seconds())
}

func (m *Metrics) IncDeadLetter(eventType string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncSagaStarted(saga string) {
	if m == nil {
		return
	}
	m.sagasStarted.WithLabelValues(saga).Inc()
}

func (m *Metrics) IncSagaFinished(saga, status string) {
	if m == nil {
		return
	}
	m.sagasFinished.WithLabelValues(saga, status).Inc()
}

func (m *Metrics) IncStepAttempt(saga, step, outcome string) {
	if m == nil {
		return
	}
	m.stepAttempts.WithLabelValues(saga, step, outcome).Inc()
}

func (m *Metrics) SetSagaQueueDepth(n int) {
	if m == nil {
		return
	}
	m.sagaQueueDepth.Set(float64(n))
}

func (m *Metrics) SetStoredEvents(eventType string, n int) {
	if m == nil {
		return
	}
	m.storedEvents.WithLabelValues(eventType).Set(float64(n))
}

func (m *Metrics) IncOutboxWriteFailure() {
	if m == nil {
		return
	}
	m.outboxWriteFails.Inc()
}
