package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	"github.com/davicafu/orchestrix/internal/eventing/infra/outbound/memory"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
	"github.com/davicafu/orchestrix/tests/mocks"
)

func activeSub(id string, retries int, types ...string) eventDomain.Subscription {
	return eventDomain.Subscription{
		ID:          id,
		ServiceName: id,
		EventTypes:  types,
		Endpoint:    "http://" + id + ".local/hook",
		Active:      true,
		RetryPolicy: &eventDomain.RetryPolicy{MaxRetries: retries, BackoffMultiplier: 2, MaxBackoffMs: 5},
	}
}

func TestDispatcher_RetriesThenDeadLettersOnce(t *testing.T) {
	// ARRANGE
	deliverer := new(mocks.MockDeliverer)
	dlq := memory.NewDeadLetterRepo()
	d := NewDispatcher(deliverer, dlq, time.Millisecond, nil, zap.NewNop())

	sub := activeSub("billing", 2, eventDomain.OrderCreated)
	msg := eventDomain.EventMessage{ID: "e1", EventType: eventDomain.OrderCreated}
	deliverer.On("Deliver", mock.Anything, sub, msg).Return(errors.New("connection refused")).Times(3)

	// ACT
	err := d.Deliver(context.Background(), sub, msg)

	// ASSERT
	require.Error(t, err)
	deliverer.AssertNumberOfCalls(t, "Deliver", 3)
	letters, _ := dlq.List(context.Background(), "", sharedQuery.OffsetPagination{})
	require.Len(t, letters, 1)
	assert.Equal(t, "e1", letters[0].EventID)
	assert.Equal(t, "billing", letters[0].SubscriptionID)
	assert.Equal(t, 2, letters[0].RetryCount)
	assert.Equal(t, "connection refused", letters[0].Error)
}

func TestDispatcher_SucceedsOnRetry(t *testing.T) {
	deliverer := new(mocks.MockDeliverer)
	dlq := memory.NewDeadLetterRepo()
	d := NewDispatcher(deliverer, dlq, time.Millisecond, nil, zap.NewNop())

	sub := activeSub("billing", 3, eventDomain.OrderCreated)
	msg := eventDomain.EventMessage{ID: "e1", EventType: eventDomain.OrderCreated}
	deliverer.On("Deliver", mock.Anything, sub, msg).Return(errors.New("503")).Once()
	deliverer.On("Deliver", mock.Anything, sub, msg).Return(nil).Once()

	require.NoError(t, d.Deliver(context.Background(), sub, msg))
	deliverer.AssertNumberOfCalls(t, "Deliver", 2)
	letters, _ := dlq.List(context.Background(), "", sharedQuery.OffsetPagination{})
	assert.Empty(t, letters)
}

func TestDispatcher_ZeroRetriesIsSingleAttempt(t *testing.T) {
	deliverer := mocks.NewRecordingDeliverer()
	deliverer.Fail["flaky"] = errors.New("timeout")
	dlq := memory.NewDeadLetterRepo()
	d := NewDispatcher(deliverer, dlq, time.Millisecond, nil, zap.NewNop())

	res := d.Dispatch(context.Background(), eventDomain.EventMessage{ID: "e1", EventType: eventDomain.OrderCreated},
		[]eventDomain.Subscription{activeSub("flaky", 0, eventDomain.OrderCreated)})

	assert.Equal(t, 1, res.Failed)
	assert.Len(t, deliverer.Calls, 1)
	letters, _ := dlq.List(context.Background(), "flaky", sharedQuery.OffsetPagination{})
	require.Len(t, letters, 1)
	assert.Equal(t, 0, letters[0].RetryCount)
}

func TestDispatcher_OrderFilterAndActivity(t *testing.T) {
	deliverer := mocks.NewRecordingDeliverer()
	d := NewDispatcher(deliverer, memory.NewDeadLetterRepo(), time.Millisecond, nil, zap.NewNop())

	inactive := activeSub("inactive", 0, eventDomain.OrderCreated)
	inactive.Active = false
	filtered := activeSub("big-orders", 0, eventDomain.OrderCreated)
	filtered.Filter = "data.totalAmount >= 1000"
	subs := []eventDomain.Subscription{
		activeSub("first", 0, eventDomain.OrderCreated),
		activeSub("payments", 0, eventDomain.PaymentProcessed),
		inactive,
		filtered,
		activeSub("second", 0, eventDomain.OrderCreated, eventDomain.PaymentProcessed),
	}
	msg := eventDomain.EventMessage{ID: "e1", EventType: eventDomain.OrderCreated, Data: map[string]interface{}{"totalAmount": 100}}

	res := d.Dispatch(context.Background(), msg, subs)

	assert.Equal(t, DispatchResult{Delivered: 2, Skipped: 1}, res)
	require.Len(t, deliverer.Calls, 2)
	assert.Equal(t, "first", deliverer.Calls[0].SubscriptionID)
	assert.Equal(t, "second", deliverer.Calls[1].SubscriptionID)
}

func TestDispatcher_CompilesFilterOncePerSubscription(t *testing.T) {
	deliverer := mocks.NewRecordingDeliverer()
	d := NewDispatcher(deliverer, memory.NewDeadLetterRepo(), time.Millisecond, nil, zap.NewNop())

	sub := activeSub("big-orders", 0, eventDomain.OrderCreated)
	sub.Filter = "data.totalAmount >= 1000"
	small := eventDomain.EventMessage{ID: "e1", EventType: eventDomain.OrderCreated, Data: map[string]interface{}{"totalAmount": 100}}
	big := eventDomain.EventMessage{ID: "e2", EventType: eventDomain.OrderCreated, Data: map[string]interface{}{"totalAmount": 5000}}

	assert.Equal(t, DispatchResult{Skipped: 1}, d.Dispatch(context.Background(), small, []eventDomain.Subscription{sub}))
	first := d.filters[sub.ID]
	assert.Equal(t, DispatchResult{Delivered: 1}, d.Dispatch(context.Background(), big, []eventDomain.Subscription{sub}))

	require.Len(t, d.filters, 1)
	assert.Equal(t, first, d.filters[sub.ID], "the compiled filter is reused")
	require.Len(t, deliverer.Calls, 1)
	assert.Equal(t, "e2", deliverer.Calls[0].EventID)

	// una expresión nueva para el mismo id se recompila
	sub.Filter = "data.totalAmount < 1000"
	assert.Equal(t, DispatchResult{Delivered: 1}, d.Dispatch(context.Background(), small, []eventDomain.Subscription{sub}))
	assert.Equal(t, "data.totalAmount < 1000", d.filters[sub.ID].expr)
}

func TestDispatcher_DefaultPolicyWhenSubscriptionHasNone(t *testing.T) {
	deliverer := new(mocks.MockDeliverer)
	dlq := memory.NewDeadLetterRepo()
	d := NewDispatcher(deliverer, dlq, time.Millisecond, nil, zap.NewNop())

	sub := activeSub("billing", 0, eventDomain.OrderCreated)
	sub.RetryPolicy = nil
	msg := eventDomain.EventMessage{ID: "e1", EventType: eventDomain.OrderCreated}
	deliverer.On("Deliver", mock.Anything, sub, msg).Return(errors.New("503")).Times(3)
	deliverer.On("Deliver", mock.Anything, sub, msg).Return(nil).Once()

	require.NoError(t, d.Deliver(context.Background(), sub, msg))
	deliverer.AssertNumberOfCalls(t, "Deliver", 1+eventDomain.DefaultMaxRetries)
}

func TestDispatcher_WorstCaseDeliveryWithDefaults(t *testing.T) {
	d := NewDispatcher(mocks.NewRecordingDeliverer(), memory.NewDeadLetterRepo(), time.Second, nil, zap.NewNop())
	sub := eventDomain.Subscription{ServiceName: "billing"}
	sub.ApplyDefaults()

	// 4 intentos de 30 s más esperas de 1, 2 y 4 s
	assert.Equal(t, 127*time.Second, d.WorstCaseDelivery(sub))

	sub.RetryPolicy = &eventDomain.RetryPolicy{MaxRetries: 0, BackoffMultiplier: 2, MaxBackoffMs: 30000}
	assert.Equal(t, 30*time.Second, d.WorstCaseDelivery(sub))
}

func TestDispatcher_WorstCaseDeliveryRespectsBackoffCap(t *testing.T) {
	d := NewDispatcher(mocks.NewRecordingDeliverer(), memory.NewDeadLetterRepo(), time.Second, nil, zap.NewNop())
	sub := eventDomain.Subscription{
		TimeoutMs:   100,
		RetryPolicy: &eventDomain.RetryPolicy{MaxRetries: 5, BackoffMultiplier: 10, MaxBackoffMs: 2000},
	}

	// esperas 1 s y luego el tope de 2 s cuatro veces
	assert.Equal(t, 600*time.Millisecond+9*time.Second, d.WorstCaseDelivery(sub))
}
