package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// EventAnalyticsRepo implements EventAnalyticsRepository on ClickHouse.
type EventAnalyticsRepo struct {
	db *sql.DB
}

// NewEventAnalyticsRepo abre la conexión y hace ping.
func NewEventAnalyticsRepo(addr string, dbName string) (*EventAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &EventAnalyticsRepo{db: conn}, nil
}

// NewEventAnalyticsRepoFromDB wraps an existing handle.
func NewEventAnalyticsRepoFromDB(db *sql.DB) *EventAnalyticsRepo {
	return &EventAnalyticsRepo{db: db}
}

// LogBatch inserta un lote de eventos en una sola transacción.
func (r *EventAnalyticsRepo) LogBatch(ctx context.Context, events []eventDomain.EventMessage) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events_log (id, event_type, version, source, correlation_id, causation_id, data, event_time, logged_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	loggedAt := time.Now().UTC()
	for _, evt := range events {
		data, err := json.Marshal(evt.Data)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode data for event %s: %w", evt.ID, err)
		}
		if _, err := stmt.ExecContext(
			ctx,
			evt.ID,
			evt.EventType,
			evt.Version,
			evt.Source,
			evt.CorrelationID,
			evt.CausationID,
			string(data),
			evt.Timestamp,
			loggedAt,
		); err != nil {
			// una fila errónea deshace todo el lote
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", evt.ID, err)
		}
	}

	return tx.Commit()
}

func (r *EventAnalyticsRepo) GetDailyCounts(ctx context.Context, start, end time.Time) ([]eventDomain.DailyEventCount, error) {
	query := `
		SELECT
			toStartOfDay(event_time) AS day,
			event_type,
			count() AS total
		FROM events_log
		WHERE event_time BETWEEN ? AND ?
		GROUP BY day, event_type
		ORDER BY day, event_type
	`
	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []eventDomain.DailyEventCount{}
	for rows.Next() {
		var c eventDomain.DailyEventCount
		var total uint64
		if err := rows.Scan(&c.Day, &c.EventType, &total); err != nil {
			return nil, err
		}
		c.Count = int(total)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// InitSchema crea la tabla de log si no existe.
func (r *EventAnalyticsRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS events_log (
			id             String,
			event_type     LowCardinality(String),
			version        String,
			source         String,
			correlation_id String,
			causation_id   String,
			data           String,
			event_time     DateTime64(3),
			logged_at      DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (event_type, event_time);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *EventAnalyticsRepo) Close() error {
	return r.db.Close()
}

var _ eventDomain.EventAnalyticsRepository = (*EventAnalyticsRepo)(nil)
