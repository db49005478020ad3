package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// scriptedReader returns its queued results in order, then io.EOF.
type scriptedReader struct {
	mu        sync.Mutex
	results   []fetchResult
	committed []int64
	commitErr error
}

type fetchResult struct {
	msg kafka.Message
	err error
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return kafka.Message{}, io.EOF
	}
	next := r.results[0]
	r.results = r.results[1:]
	return next.msg, next.err
}

func (r *scriptedReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return r.commitErr
}

func (r *scriptedReader) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: "orchestrix.ingest", GroupID: "orchestrix"}
}

type collectingHandler struct {
	keys     []string
	payloads []string
}

func (h *collectingHandler) HandleMessage(ctx context.Context, key string, payload []byte) {
	h.keys = append(h.keys, key)
	h.payloads = append(h.payloads, string(payload))
}

func TestConsumerAdapter_HandlesThenCommits(t *testing.T) {
	// ARRANGE
	reader := &scriptedReader{results: []fetchResult{
		{msg: kafka.Message{Key: []byte("k1"), Value: []byte(`{"a":1}`), Offset: 10}},
		{msg: kafka.Message{Key: []byte("k2"), Value: []byte(`{"a":2}`), Offset: 11}},
	}}
	handler := &collectingHandler{}
	adapter := NewConsumerAdapter(reader, handler, zap.NewNop())

	// ACT
	adapter.Run(context.Background())

	// ASSERT
	assert.Equal(t, []string{"k1", "k2"}, handler.keys)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, handler.payloads)
	assert.Equal(t, []int64{10, 11}, reader.committed)
}

func TestConsumerAdapter_FetchErrorIsRetried(t *testing.T) {
	reader := &scriptedReader{results: []fetchResult{
		{err: errors.New("broker unavailable")},
		{msg: kafka.Message{Key: []byte("k1"), Offset: 3}},
	}}
	handler := &collectingHandler{}
	adapter := NewConsumerAdapter(reader, handler, zap.NewNop())
	adapter.errBackoff = time.Millisecond

	adapter.Run(context.Background())

	assert.Equal(t, []string{"k1"}, handler.keys)
	assert.Equal(t, []int64{3}, reader.committed)
}

func TestConsumerAdapter_CommitFailureDoesNotStopTheLoop(t *testing.T) {
	reader := &scriptedReader{
		results: []fetchResult{
			{msg: kafka.Message{Key: []byte("k1"), Offset: 1}},
			{msg: kafka.Message{Key: []byte("k2"), Offset: 2}},
		},
		commitErr: errors.New("rebalance in progress"),
	}
	handler := &collectingHandler{}

	NewConsumerAdapter(reader, handler, zap.NewNop()).Run(context.Background())

	assert.Equal(t, []string{"k1", "k2"}, handler.keys)
}

func TestConsumerAdapter_StopsOnCancelledContext(t *testing.T) {
	reader := &scriptedReader{results: []fetchResult{{err: context.Canceled}}}
	handler := &collectingHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewConsumerAdapter(reader, handler, zap.NewNop()).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Empty(t, handler.keys)
}
