package postgre

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

const deadLetterSchema = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id              UUID PRIMARY KEY,
	event_id        TEXT NOT NULL,
	subscription_id TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	error           TEXT NOT NULL,
	retry_count     INTEGER NOT NULL,
	event           JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_sub ON dead_letters (subscription_id, created_at DESC);`

// DeadLetterRepoPostgres guarda las entregas fallidas en Postgres.
type DeadLetterRepoPostgres struct {
	db *sql.DB
}

func NewDeadLetterRepoPostgres(db *sql.DB) *DeadLetterRepoPostgres {
	return &DeadLetterRepoPostgres{db: db}
}

func InitDeadLetters(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, deadLetterSchema); err != nil {
		return fmt.Errorf("create dead_letters schema: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoPostgres) Save(ctx context.Context, dl eventDomain.DeadLetter) error {
	var event interface{} // NULL when the event is not attached
	if dl.Event != nil {
		raw, err := json.Marshal(dl.Event)
		if err != nil {
			return fmt.Errorf("encode dead letter event: %w", err)
		}
		event = raw
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, event_id, subscription_id, event_type, error, retry_count, event, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		dl.ID, dl.EventID, dl.SubscriptionID, dl.EventType, dl.Error, dl.RetryCount, event, dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoPostgres) List(ctx context.Context, subscriptionID string, page sharedQuery.OffsetPagination) ([]eventDomain.DeadLetter, error) {
	page = page.Normalize()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, subscription_id, event_type, error, retry_count, event, created_at
		 FROM dead_letters
		 WHERE ($1::text = '' OR subscription_id = $1::text)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		subscriptionID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	letters := []eventDomain.DeadLetter{}
	for rows.Next() {
		var dl eventDomain.DeadLetter
		var event []byte
		if err := rows.Scan(&dl.ID, &dl.EventID, &dl.SubscriptionID, &dl.EventType, &dl.Error, &dl.RetryCount, &event, &dl.CreatedAt); err != nil {
			return nil, err
		}
		if len(event) > 0 {
			var msg eventDomain.EventMessage
			if err := json.Unmarshal(event, &msg); err != nil {
				return nil, fmt.Errorf("invalid event JSON in dead letter %s: %w", dl.ID, err)
			}
			dl.Event = &msg
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

var _ eventDomain.DeadLetterRepository = (*DeadLetterRepoPostgres)(nil)
