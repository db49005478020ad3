package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
)

// OutboxRepoMongoDB implementa sharedDomain.OutboxRepository sobre una colección.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{outboxColl: client.Database(dbName).Collection("outbox")}
}

// EnsureIndexes crea el índice para buscar pendientes.
func (r *OutboxRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.outboxColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "processed", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create outbox index: %w", err)
	}
	return nil
}

type mongoOutboxEvent struct {
	ID            string    `bson:"_id"`
	AggregateType string    `bson:"aggregateType"`
	AggregateID   string    `bson:"aggregateId"`
	EventType     string    `bson:"eventType"`
	Payload       string    `bson:"payload"` // JSON
	CreatedAt     time.Time `bson:"createdAt"`
	Processed     bool       `bson:"processed"`
	ProcessedAt   *time.Time `bson:"processedAt,omitempty"`
}

func (r *OutboxRepoMongoDB) SaveOutboxEvent(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	doc, err := toMongoOutboxEvent(evt)
	if err != nil {
		return err
	}
	if _, err := r.outboxColl.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox devuelve los eventos sin procesar, el más antiguo primero.
func (r *OutboxRepoMongoDB) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, bson.M{"processed": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []sharedDomain.OutboxEvent
	for cursor.Next(ctx) {
		var mo mongoOutboxEvent
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		evt, err := fromMongoOutboxEvent(&mo)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, cursor.Err()
}

func (r *OutboxRepoMongoDB) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.outboxColl.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{"processed": true, "processedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

func toMongoOutboxEvent(evt sharedDomain.OutboxEvent) (*mongoOutboxEvent, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	return &mongoOutboxEvent{
		ID: evt.ID.String(), AggregateType: evt.AggregateType, AggregateID: evt.AggregateID,
		EventType: evt.EventType, Payload: string(payload), CreatedAt: evt.CreatedAt, Processed: evt.Processed,
		ProcessedAt: evt.ProcessedAt,
	}, nil
}

func fromMongoOutboxEvent(mo *mongoOutboxEvent) (sharedDomain.OutboxEvent, error) {
	evt := sharedDomain.OutboxEvent{
		AggregateType: mo.AggregateType,
		AggregateID:   mo.AggregateID,
		EventType:     mo.EventType,
		CreatedAt:     mo.CreatedAt,
		Processed:     mo.Processed,
		ProcessedAt:   mo.ProcessedAt,
	}
	var err error
	if evt.ID, err = uuid.Parse(mo.ID); err != nil {
		return evt, fmt.Errorf("invalid UUID in outbox document: %w", err)
	}
	if err := json.Unmarshal([]byte(mo.Payload), &evt.Payload); err != nil {
		return evt, fmt.Errorf("invalid JSON payload in outbox document %s: %w", mo.ID, err)
	}
	return evt, nil
}

// PurgeProcessedOutbox deletes relayed documents processed before the cutoff.
func (r *OutboxRepoMongoDB) PurgeProcessedOutbox(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.outboxColl.DeleteMany(ctx, purgeFilter(before))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return res.DeletedCount, nil
}

func purgeFilter(before time.Time) bson.M {
	return bson.M{"processed": true, "processedAt": bson.M{"$lt": before}}
}

var (
	_ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
	_ sharedDomain.OutboxPurger     = (*OutboxRepoMongoDB)(nil)
)
