package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/orchestrix/internal/eventing/application"
	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedEvents "github.com/davicafu/orchestrix/internal/shared/domain/events"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}, meta eventDomain.PublishMetadata) (*application.PublishResult, error) {
	args := m.Called(ctx, eventType, data, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.PublishResult), args.Error(1)
}

type fakeAnalytics struct {
	mu      sync.Mutex
	batches [][]eventDomain.EventMessage
	err     error
}

func (f *fakeAnalytics) LogBatch(ctx context.Context, events []eventDomain.EventMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	return f.err
}

func (f *fakeAnalytics) GetDailyCounts(ctx context.Context, start, end time.Time) ([]eventDomain.DailyEventCount, error) {
	return nil, nil
}

func (f *fakeAnalytics) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestIngestConsumer_PublishesEnvelope(t *testing.T) {
	pub := new(mockPublisher)
	c := NewIngestConsumer(pub, time.Second, zap.NewNop())

	payload := []byte(`{"eventType":"vendor.registered","data":{"vendorId":"V1","storeName":"Shop","email":"a@b.c"},"metadata":{"source":"crm"}}`)
	pub.On("Publish", mock.Anything, eventDomain.VendorRegistered,
		map[string]interface{}{"vendorId": "V1", "storeName": "Shop", "email": "a@b.c"},
		eventDomain.PublishMetadata{Source: "crm", CorrelationID: "key-1"},
	).Return(&application.PublishResult{EventID: "e1", CorrelationID: "key-1"}, nil).Once()

	c.HandleMessage(context.Background(), "key-1", payload)

	pub.AssertExpectations(t)
}

func TestIngestConsumer_IgnoresBadPayloadAndRejections(t *testing.T) {
	pub := new(mockPublisher)
	c := NewIngestConsumer(pub, time.Second, zap.NewNop())

	c.HandleMessage(context.Background(), "", []byte("not json"))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	pub.On("Publish", mock.Anything, "nope", mock.Anything, mock.Anything).Return(nil, eventDomain.ErrUnknownEventType).Once()
	assert.NotPanics(t, func() {
		c.HandleMessage(context.Background(), "", []byte(`{"eventType":"nope","data":{}}`))
	})
	pub.AssertExpectations(t)
}

func relayed(t *testing.T, id string) []byte {
	t.Helper()
	data, err := json.Marshal(eventDomain.EventMessage{ID: id, EventType: eventDomain.OrderCreated})
	require.NoError(t, err)
	raw, err := json.Marshal(sharedEvents.IntegrationEvent{Type: eventDomain.OrderCreated, Timestamp: time.Now(), Data: data})
	require.NoError(t, err)
	return raw
}

func TestAnalyticsConsumer_FlushesOnBatchSize(t *testing.T) {
	repo := &fakeAnalytics{}
	c := NewAnalyticsConsumer(repo, 2, time.Hour, zap.NewNop())

	c.HandleMessage(context.Background(), "", relayed(t, "e1"))
	assert.Equal(t, 0, repo.count())
	c.HandleMessage(context.Background(), "", relayed(t, "e2"))

	require.Equal(t, 1, repo.count())
	assert.Equal(t, "e2", repo.batches[0][1].ID)
}

func TestAnalyticsConsumer_RunFlushesOnShutdown(t *testing.T) {
	repo := &fakeAnalytics{err: errors.New("ignored")}
	c := NewAnalyticsConsumer(repo, 10, time.Hour, zap.NewNop())
	c.HandleMessage(context.Background(), "", relayed(t, "e1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 1, repo.count())
}
