package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"
)

// DeadLetterRepoMongoDB guarda las entregas fallidas como documentos.
type DeadLetterRepoMongoDB struct {
	coll *mongo.Collection
}

func NewDeadLetterRepoMongoDB(client *mongo.Client, dbName string) *DeadLetterRepoMongoDB {
	return &DeadLetterRepoMongoDB{coll: client.Database(dbName).Collection("dead_letters")}
}

func (r *DeadLetterRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "subscriptionId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create dead letter index: %w", err)
	}
	return nil
}

type mongoDeadLetter struct {
	ID             string    `bson:"_id"`
	EventID        string    `bson:"eventId"`
	SubscriptionID string    `bson:"subscriptionId"`
	EventType      string    `bson:"eventType"`
	Error          string    `bson:"error"`
	RetryCount     int       `bson:"retryCount"`
	Event          string    `bson:"event,omitempty"` // JSON
	CreatedAt      time.Time `bson:"createdAt"`
}

func (r *DeadLetterRepoMongoDB) Save(ctx context.Context, dl eventDomain.DeadLetter) error {
	doc, err := toMongoDeadLetter(dl)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepoMongoDB) List(ctx context.Context, subscriptionID string, page sharedQuery.OffsetPagination) ([]eventDomain.DeadLetter, error) {
	page = page.Normalize()
	filter := bson.M{}
	if subscriptionID != "" {
		filter["subscriptionId"] = subscriptionID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	letters := []eventDomain.DeadLetter{}
	for cursor.Next(ctx) {
		var doc mongoDeadLetter
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		dl, err := fromMongoDeadLetter(&doc)
		if err != nil {
			return nil, err
		}
		letters = append(letters, dl)
	}
	return letters, cursor.Err()
}

func toMongoDeadLetter(dl eventDomain.DeadLetter) (*mongoDeadLetter, error) {
	doc := &mongoDeadLetter{
		ID: dl.ID, EventID: dl.EventID, SubscriptionID: dl.SubscriptionID, EventType: dl.EventType,
		Error: dl.Error, RetryCount: dl.RetryCount, CreatedAt: dl.CreatedAt,
	}
	if dl.Event != nil {
		raw, err := json.Marshal(dl.Event)
		if err != nil {
			return nil, fmt.Errorf("encode dead letter event: %w", err)
		}
		doc.Event = string(raw)
	}
	return doc, nil
}

func fromMongoDeadLetter(doc *mongoDeadLetter) (eventDomain.DeadLetter, error) {
	dl := eventDomain.DeadLetter{
		ID: doc.ID, EventID: doc.EventID, SubscriptionID: doc.SubscriptionID, EventType: doc.EventType,
		Error: doc.Error, RetryCount: doc.RetryCount, CreatedAt: doc.CreatedAt,
	}
	if doc.Event != "" {
		var msg eventDomain.EventMessage
		if err := json.Unmarshal([]byte(doc.Event), &msg); err != nil {
			return dl, fmt.Errorf("invalid event JSON in dead letter %s: %w", doc.ID, err)
		}
		dl.Event = &msg
	}
	return dl, nil
}

var _ eventDomain.DeadLetterRepository = (*DeadLetterRepoMongoDB)(nil)
