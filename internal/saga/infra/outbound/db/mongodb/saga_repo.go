package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedQuery "github.com/davicafu/orchestrix/internal/shared/infra/platform/query"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// SagaRepoMongoDB guarda un documento por instancia de saga.
type SagaRepoMongoDB struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewSagaRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*SagaRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}
	return &SagaRepoMongoDB{
		client: client,
		coll:   client.Database(dbName).Collection("saga_instances"),
	}, nil
}

// EnsureIndexes crea los índices que usa List.
func (r *SagaRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: -1}}},
		{Keys: bson.D{{Key: "sagaName", Value: 1}, {Key: "startedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create saga indexes: %w", err)
	}
	return nil
}

// --- Mapeo BSON, fuera del dominio ---

type mongoStep struct {
	Name              string     `bson:"name"`
	Service           string     `bson:"service"`
	Status            string     `bson:"status"`
	Attempts          int        `bson:"attempts"`
	StartedAt         *time.Time `bson:"startedAt,omitempty"`
	CompletedAt       *time.Time `bson:"completedAt,omitempty"`
	Error             string     `bson:"error,omitempty"`
	Result            string     `bson:"result,omitempty"`
	CompensatedAt     *time.Time `bson:"compensatedAt,omitempty"`
	CompensationError string     `bson:"compensationError,omitempty"`
}

type mongoInstance struct {
	ID            string      `bson:"_id"`
	SagaName      string      `bson:"sagaName"`
	SagaVersion   string      `bson:"sagaVersion"`
	Status        string      `bson:"status"`
	CurrentStep   int         `bson:"currentStep"`
	Input         string      `bson:"input"` // JSON, nested documents would decode as bson.D
	CorrelationID string      `bson:"correlationId"`
	StartedAt     time.Time   `bson:"startedAt"`
	CompletedAt   *time.Time  `bson:"completedAt,omitempty"`
	Error         string      `bson:"error,omitempty"`
	Steps         []mongoStep `bson:"steps"`
}

func (r *SagaRepoMongoDB) Create(ctx context.Context, inst *sagaDomain.Instance) error {
	doc, err := toMongoInstance(inst)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert saga instance: %w", err)
	}
	return nil
}

func (r *SagaRepoMongoDB) Update(ctx context.Context, inst *sagaDomain.Instance) error {
	doc, err := toMongoInstance(inst)
	if err != nil {
		return err
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return fmt.Errorf("replace saga instance: %w", err)
	}
	if res.MatchedCount == 0 {
		return sagaDomain.ErrSagaInstanceNotFound
	}
	return nil
}

func (r *SagaRepoMongoDB) GetByID(ctx context.Context, id string) (*sagaDomain.Instance, error) {
	var doc mongoInstance
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sagaDomain.ErrSagaInstanceNotFound
		}
		return nil, err
	}
	return fromMongoInstance(&doc)
}

func (r *SagaRepoMongoDB) List(ctx context.Context, criteria sharedDomain.Criteria, page sharedQuery.OffsetPagination) ([]*sagaDomain.Instance, error) {
	page = page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cursor, err := r.coll.Find(ctx, criteriaToMongoFilter(criteria), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []*sagaDomain.Instance{}
	for cursor.Next(ctx) {
		var doc mongoInstance
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		inst, err := fromMongoInstance(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, cursor.Err()
}

// --- Helpers de mapeo ---

func toMongoInstance(inst *sagaDomain.Instance) (*mongoInstance, error) {
	input, err := json.Marshal(inst.Input)
	if err != nil {
		return nil, fmt.Errorf("encode saga input: %w", err)
	}
	doc := &mongoInstance{
		ID:            inst.ID,
		SagaName:      inst.SagaName,
		SagaVersion:   inst.SagaVersion,
		Status:        string(inst.Status),
		CurrentStep:   inst.CurrentStep,
		Input:         string(input),
		CorrelationID: inst.CorrelationID,
		StartedAt:     inst.StartedAt,
		CompletedAt:   inst.CompletedAt,
		Error:         inst.Error,
		Steps:         make([]mongoStep, len(inst.Steps)),
	}
	for i, s := range inst.Steps {
		doc.Steps[i] = mongoStep{
			Name: s.Name, Service: s.Service, Status: string(s.Status), Attempts: s.Attempts,
			StartedAt: s.StartedAt, CompletedAt: s.CompletedAt, Error: s.Error, Result: string(s.Result),
			CompensatedAt: s.CompensatedAt, CompensationError: s.CompensationError,
		}
	}
	return doc, nil
}

func fromMongoInstance(doc *mongoInstance) (*sagaDomain.Instance, error) {
	inst := &sagaDomain.Instance{
		ID:            doc.ID,
		SagaName:      doc.SagaName,
		SagaVersion:   doc.SagaVersion,
		Status:        sagaDomain.SagaStatus(doc.Status),
		CurrentStep:   doc.CurrentStep,
		CorrelationID: doc.CorrelationID,
		StartedAt:     doc.StartedAt,
		CompletedAt:   doc.CompletedAt,
		Error:         doc.Error,
		Steps:         make([]sagaDomain.StepState, len(doc.Steps)),
	}
	if doc.Input != "" {
		if err := json.Unmarshal([]byte(doc.Input), &inst.Input); err != nil {
			return nil, fmt.Errorf("decode saga input: %w", err)
		}
	}
	for i, s := range doc.Steps {
		step := sagaDomain.StepState{
			Name: s.Name, Service: s.Service, Status: sagaDomain.StepStatus(s.Status), Attempts: s.Attempts,
			StartedAt: s.StartedAt, CompletedAt: s.CompletedAt, Error: s.Error,
			CompensatedAt: s.CompensatedAt, CompensationError: s.CompensationError,
		}
		if s.Result != "" {
			step.Result = json.RawMessage(s.Result)
		}
		inst.Steps[i] = step
	}
	return inst, nil
}

func criteriaToMongoFilter(criteria sharedDomain.Criteria) bson.D {
	filter := bson.D{}
	if criteria == nil {
		return filter
	}
	for _, c := range criteria.ToConditions() {
		var op string
		switch c.Op {
		case sharedDomain.OpGt:
			op = "$gt"
		case sharedDomain.OpGte:
			op = "$gte"
		case sharedDomain.OpLt:
			op = "$lt"
		case sharedDomain.OpLte:
			op = "$lte"
		default:
			op = "$eq"
		}
		filter = append(filter, bson.E{Key: c.Field, Value: bson.M{op: c.Value}})
	}
	return filter
}

var _ sagaDomain.SagaRepository = (*SagaRepoMongoDB)(nil)
