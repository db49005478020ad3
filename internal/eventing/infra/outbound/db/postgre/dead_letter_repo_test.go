package postgre

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

func TestDeadLetterRepoPostgres_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeadLetterRepoPostgres(db)
	created := time.Now().UTC()
	dl := eventDomain.DeadLetter{
		ID: "5b0c3c9e-8f54-4d47-9a2f-0e0b3a6f1d11", EventID: "e-1", SubscriptionID: "billing",
		EventType: eventDomain.OrderCreated, Error: "HTTP 502", RetryCount: 3, CreatedAt: created,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dead_letters`)).
		WithArgs(dl.ID, "e-1", "billing", eventDomain.OrderCreated, "HTTP 502", 3, nil, created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), dl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterRepoPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeadLetterRepoPostgres(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "event_id", "subscription_id", "event_type", "error", "retry_count", "event", "created_at"}).
		AddRow("dl-1", "e-1", "billing", eventDomain.OrderCreated, "HTTP 500", 3, []byte(`{"id":"e-1","eventType":"order.created"}`), now).
		AddRow("dl-0", "e-0", "billing", eventDomain.OrderCreated, "timeout", 3, nil, now.Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dead_letters`)).
		WithArgs("billing", 100, 0).
		WillReturnRows(rows)

	letters, err := repo.List(context.Background(), "billing", sharedQuery.OffsetPagination{})
	require.NoError(t, err)
	require.Len(t, letters, 2)
	require.NotNil(t, letters[0].Event)
	assert.Equal(t, "e-1", letters[0].Event.ID)
	assert.Nil(t, letters[1].Event)
	assert.NoError(t, mock.ExpectationsWereMet())
}
