package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
)

// EventStore guarda en memoria los eventos recientes de cada tipo.
type EventStore struct {
	mu     sync.RWMutex
	byType map[string][]storedEvent
	order  []string // tipos en orden de primera aparición
	seq    uint64
}

// storedEvent lleva el orden de llegada para desempatar timestamps iguales.
type storedEvent struct {
	seq uint64
	msg eventDomain.EventMessage
}

func NewEventStore() *EventStore {
	return &EventStore{
		byType: make(map[string][]storedEvent),
	}
}

// Append mide la antigüedad contra el timestamp del evento añadido.
func (s *EventStore) Append(ctx context.Context, msg eventDomain.EventMessage, retention eventDomain.RetentionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, seen := s.byType[msg.EventType]
	if !seen {
		s.order = append(s.order, msg.EventType)
	}
	s.seq++
	events = append(events, storedEvent{seq: s.seq, msg: msg})

	drop := 0
	if maxAge := retention.MaxAge(); maxAge > 0 {
		cutoff := msg.Timestamp.Add(-maxAge)
		for drop < len(events) && events[drop].msg.Timestamp.Before(cutoff) {
			drop++
		}
	}
	if retention.MaxEvents > 0 && len(events)-drop > retention.MaxEvents {
		drop = len(events) - retention.MaxEvents
	}
	if drop > 0 {
		// copia para que el prefijo descartado pueda liberarse
		events = append([]storedEvent(nil), events[drop:]...)
	}

	s.byType[msg.EventType] = events
	return nil
}

func (s *EventStore) Find(ctx context.Context, criteria sharedDomain.Criteria) ([]eventDomain.EventMessage, error) {
	var conds []sharedDomain.Criterion
	if criteria != nil {
		conds = criteria.ToConditions()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	types := s.order
	for _, c := range conds {
		if c.Field == eventDomain.FieldEventType && c.Op == sharedDomain.OpEq {
			t, _ := c.Value.(string)
			types = []string{t}
			break
		}
	}

	var hits []storedEvent
	for _, t := range types {
		for _, e := range s.byType[t] {
			ok, err := matches(e.msg, conds)
			if err != nil {
				return nil, err
			}
			if ok {
				hits = append(hits, e)
			}
		}
	}

	// más antiguo primero entre tipos; a igual timestamp, orden de llegada
	sortOldestFirst(hits)
	out := make([]eventDomain.EventMessage, len(hits))
	for i, e := range hits {
		out[i] = e.msg
	}
	return out, nil
}

func (s *EventStore) Counts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.byType))
	for t, events := range s.byType {
		counts[t] = len(events)
	}
	return counts, nil
}

func matches(msg eventDomain.EventMessage, conds []sharedDomain.Criterion) (bool, error) {
	for _, c := range conds {
		switch c.Field {
		case eventDomain.FieldEventType:
			if msg.EventType != c.Value {
				return false, nil
			}
		case eventDomain.FieldCorrelationID:
			if msg.CorrelationID != c.Value {
				return false, nil
			}
		case eventDomain.FieldTimestamp:
			bound, ok := c.Value.(time.Time)
			if !ok {
				return false, fmt.Errorf("timestamp criterion needs time.Time, got %T", c.Value)
			}
			switch c.Op {
			case sharedDomain.OpGte:
				if msg.Timestamp.Before(bound) {
					return false, nil
				}
			case sharedDomain.OpLte:
				if msg.Timestamp.After(bound) {
					return false, nil
				}
			case sharedDomain.OpGt:
				if !msg.Timestamp.After(bound) {
					return false, nil
				}
			case sharedDomain.OpLt:
				if !msg.Timestamp.Before(bound) {
					return false, nil
				}
			default:
				if !msg.Timestamp.Equal(bound) {
					return false, nil
				}
			}
		default:
			return false, fmt.Errorf("unsupported event field %q", c.Field)
		}
	}
	return true, nil
}

func sortOldestFirst(events []storedEvent) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.msg.Timestamp.Equal(b.msg.Timestamp) {
			return a.msg.Timestamp.Before(b.msg.Timestamp)
		}
		return a.seq < b.seq
	})
}

var _ eventDomain.EventStore = (*EventStore)(nil)
