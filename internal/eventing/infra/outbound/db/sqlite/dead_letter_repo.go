package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

const deadLetterSchema = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id              TEXT PRIMARY KEY,
	event_id        TEXT NOT NULL,
	subscription_id TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	error           TEXT NOT NULL,
	retry_count     INTEGER NOT NULL,
	event           TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_sub ON dead_letters (subscription_id, created_at);`

// DeadLetterRepoSQLite guarda las entregas fallidas en SQLite.
type DeadLetterRepoSQLite struct {
	db *sql.DB
}

func NewDeadLetterRepoSQLite(db *sql.DB) *DeadLetterRepoSQLite {
	return &DeadLetterRepoSQLite{db: db}
}

func InitDeadLetters(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, deadLetterSchema); err != nil {
		return fmt.Errorf("create dead_letters schema: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoSQLite) Save(ctx context.Context, dl eventDomain.DeadLetter) error {
	var event sql.NullString
	if dl.Event != nil {
		raw, err := json.Marshal(dl.Event)
		if err != nil {
			return fmt.Errorf("encode dead letter event: %w", err)
		}
		event = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, event_id, subscription_id, event_type, error, retry_count, event, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dl.ID, dl.EventID, dl.SubscriptionID, dl.EventType, dl.Error, dl.RetryCount, event,
		dl.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoSQLite) List(ctx context.Context, subscriptionID string, page sharedQuery.OffsetPagination) ([]eventDomain.DeadLetter, error) {
	page = page.Normalize()

	query := `SELECT id, event_id, subscription_id, event_type, error, retry_count, event, created_at FROM dead_letters`
	args := []interface{}{}
	if subscriptionID != "" {
		query += ` WHERE subscription_id = ?`
		args = append(args, subscriptionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	letters := []eventDomain.DeadLetter{}
	for rows.Next() {
		var dl eventDomain.DeadLetter
		var event sql.NullString
		var created string
		if err := rows.Scan(&dl.ID, &dl.EventID, &dl.SubscriptionID, &dl.EventType, &dl.Error, &dl.RetryCount, &event, &created); err != nil {
			return nil, err
		}
		if dl.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("invalid created_at in dead letter %s: %w", dl.ID, err)
		}
		if event.Valid {
			var msg eventDomain.EventMessage
			if err := json.Unmarshal([]byte(event.String), &msg); err != nil {
				return nil, fmt.Errorf("invalid event JSON in dead letter %s: %w", dl.ID, err)
			}
			dl.Event = &msg
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

var _ eventDomain.DeadLetterRepository = (*DeadLetterRepoSQLite)(nil)
