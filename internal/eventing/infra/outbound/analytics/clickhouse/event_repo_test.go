package clickhouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
)

func TestEventAnalyticsRepo_LogBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewEventAnalyticsRepoFromDB(db)
	ts := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	events := []eventDomain.EventMessage{
		{ID: "e1", EventType: eventDomain.OrderCreated, Version: "1.0.0", Source: "checkout", CorrelationID: "c1", Timestamp: ts, Data: map[string]interface{}{"orderId": "O1"}},
		{ID: "e2", EventType: eventDomain.PaymentProcessed, Version: "1.0.0", Source: "psp", CorrelationID: "c1", Timestamp: ts, Data: map[string]interface{}{}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO events_log"))
	prep.ExpectExec().WithArgs("e1", eventDomain.OrderCreated, "1.0.0", "checkout", "c1", "", `{"orderId":"O1"}`, ts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("e2", eventDomain.PaymentProcessed, "1.0.0", "psp", "c1", "", `{}`, ts, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.LogBatch(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAnalyticsRepo_LogBatchRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewEventAnalyticsRepoFromDB(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO events_log"))
	prep.ExpectExec().WillReturnError(errors.New("too many parts"))
	mock.ExpectRollback()

	err = repo.LogBatch(context.Background(), []eventDomain.EventMessage{{ID: "e1"}})
	assert.ErrorContains(t, err, "too many parts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventAnalyticsRepo_GetDailyCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewEventAnalyticsRepoFromDB(db)
	day := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	start, end := day, day.Add(24*time.Hour)

	rows := sqlmock.NewRows([]string{"day", "event_type", "total"}).
		AddRow(day, eventDomain.OrderCreated, uint64(12)).
		AddRow(day, eventDomain.PaymentProcessed, uint64(9))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events_log")).WithArgs(start, end).WillReturnRows(rows)

	counts, err := repo.GetDailyCounts(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, eventDomain.DailyEventCount{Day: day, EventType: eventDomain.OrderCreated, Count: 12}, counts[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
