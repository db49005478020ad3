package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/davicafu/orchestrix/internal/shared/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// each pooled connection would get its own :memory: database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitOutbox(context.Background(), db))
	return db
}

func TestOutboxRepoSQLite_SaveFetchMark(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOutboxRepoSQLite(db)
	ctx := context.Background()

	first := domain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "event",
		AggregateID:   "evt-1",
		EventType:     "order.created",
		Payload:       map[string]interface{}{"orderId": "o-1"},
		CreatedAt:     time.Now().UTC().Add(-time.Second),
	}
	second := domain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "event",
		AggregateID:   "evt-2",
		EventType:     "payment.processed",
		Payload:       map[string]interface{}{"paymentId": "p-1"},
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.SaveOutboxEvent(ctx, second))
	require.NoError(t, repo.SaveOutboxEvent(ctx, first))

	pending, err := repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "oldest first")
	assert.Equal(t, "order.created", pending[0].EventType)
	assert.Equal(t, "o-1", pending[0].Payload.(map[string]interface{})["orderId"])
	assert.WithinDuration(t, first.CreatedAt, pending[0].CreatedAt, time.Microsecond)

	require.NoError(t, repo.MarkOutboxProcessed(ctx, first.ID))

	pending, err = repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestOutboxRepoSQLite_MarkUnknown(t *testing.T) {
	repo := NewOutboxRepoSQLite(setupTestDB(t))

	err := repo.MarkOutboxProcessed(context.Background(), uuid.New())
	assert.ErrorContains(t, err, "outbox event not found")
}

func TestOutboxRepoSQLite_PurgeProcessed(t *testing.T) {
	repo := NewOutboxRepoSQLite(setupTestDB(t))
	ctx := context.Background()

	relayed := domain.OutboxEvent{ID: uuid.New(), AggregateType: "event", AggregateID: "evt-1", EventType: "order.created", Payload: map[string]interface{}{}}
	pending := domain.OutboxEvent{ID: uuid.New(), AggregateType: "event", AggregateID: "evt-2", EventType: "order.created", Payload: map[string]interface{}{}}
	require.NoError(t, repo.SaveOutboxEvent(ctx, relayed))
	require.NoError(t, repo.SaveOutboxEvent(ctx, pending))
	require.NoError(t, repo.MarkOutboxProcessed(ctx, relayed.ID))

	n, err := repo.PurgeProcessedOutbox(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "recently relayed rows are kept")

	n, err = repo.PurgeProcessedOutbox(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := repo.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)
}
