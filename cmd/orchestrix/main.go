package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davicafu/orchestrix/internal/config"
	eventApp "github.com/davicafu/orchestrix/internal/eventing/application"
	eventDomain "github.com/davicafu/orchestrix/internal/eventing/domain"
	eventConsumers "github.com/davicafu/orchestrix/internal/eventing/infra/inbound/events"
	eventHttp "github.com/davicafu/orchestrix/internal/eventing/infra/inbound/http"
	"github.com/davicafu/orchestrix/internal/eventing/infra/outbound/analytics/clickhouse"
	dlqMongo "github.com/davicafu/orchestrix/internal/eventing/infra/outbound/db/mongodb"
	dlqPostgres "github.com/davicafu/orchestrix/internal/eventing/infra/outbound/db/postgre"
	dlqSQLite "github.com/davicafu/orchestrix/internal/eventing/infra/outbound/db/sqlite"
	"github.com/davicafu/orchestrix/internal/eventing/infra/outbound/delivery"
	eventMemory "github.com/davicafu/orchestrix/internal/eventing/infra/outbound/memory"
	"github.com/davicafu/orchestrix/internal/middleware"
	sagaApp "github.com/davicafu/orchestrix/internal/saga/application"
	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
	sagaHttp "github.com/davicafu/orchestrix/internal/saga/infra/inbound/http"
	sagaMongo "github.com/davicafu/orchestrix/internal/saga/infra/outbound/db/mongodb"
	sagaMemory "github.com/davicafu/orchestrix/internal/saga/infra/outbound/memory"
	"github.com/davicafu/orchestrix/internal/saga/infra/outbound/services"
	sharedDomain "github.com/davicafu/orchestrix/internal/shared/domain"
	sharedEvents "github.com/davicafu/orchestrix/internal/shared/infra/events"
	sharedBus "github.com/davicafu/orchestrix/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/orchestrix/internal/shared/infra/platform/cache"
	outboxMongo "github.com/davicafu/orchestrix/internal/shared/infra/platform/db/mongodb"
	outboxPostgres "github.com/davicafu/orchestrix/internal/shared/infra/platform/db/postgres"
	outboxSQLite "github.com/davicafu/orchestrix/internal/shared/infra/platform/db/sqlite"
	"github.com/davicafu/orchestrix/internal/shared/infra/relayer"
	"github.com/davicafu/orchestrix/pkg/logger"
	"github.com/davicafu/orchestrix/pkg/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultRelayTopic = "orchestrix.events"

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel)
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var background sync.WaitGroup
	goBackground := func(fn func()) {
		background.Add(1)
		go func() {
			defer background.Done()
			fn()
		}()
	}

	// ---------------- Almacenamiento ----------------
	mongoClient := connectMongo(ctx, cfg, log)
	if mongoClient != nil {
		defer mongoClient.Disconnect(context.Background())
	}
	outbox, deadLetters, closeStorage := openStorage(ctx, cfg, mongoClient, log)
	defer closeStorage()

	// ---------------- Cache ----------------
	var cache sharedCache.Cache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		memCache := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		defer memCache.Stop()
		cache = memCache
	} else {
		cache = sharedCache.NewRedisCache(rdb, cfg.CacheTTL, "orchestrix:")
		log.Info("Redis connected, cache enabled")
	}
	defer rdb.Close()

	// ---------------- Eventing ----------------
	definitions, err := eventDomain.NewDefinitionRegistry(eventDomain.DefaultDefinitions()...)
	if err != nil {
		log.Fatal("invalid event definitions", zap.Error(err))
	}
	dispatcher := eventApp.NewDispatcher(delivery.NewHTTPDeliverer(&http.Client{}), deadLetters, cfg.DeliveryBaseBackoff, m, log)
	eventService := eventApp.NewEventService(definitions, eventMemory.NewEventStore(), eventMemory.NewSubscriptionRegistry(), dispatcher, log).
		WithOutbox(outbox).
		WithDeadLetters(deadLetters).
		WithMetrics(m)

	var analytics *eventConsumers.AnalyticsConsumer
	if cfg.ClickHouseAddr != "" {
		repo, err := clickhouse.NewEventAnalyticsRepo(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("ClickHouse unavailable, analytics disabled", zap.Error(err))
		} else if err := repo.InitSchema(ctx); err != nil {
			log.Warn("ClickHouse schema init failed, analytics disabled", zap.Error(err))
			repo.Close()
		} else {
			defer repo.Close()
			eventService.WithAnalytics(repo)
			analytics = eventConsumers.NewAnalyticsConsumer(repo, 100, 5*time.Second, log)
			goBackground(func() { analytics.Run(ctx) })
			log.Info("ClickHouse analytics enabled")
		}
	}

	// ---------------- Bus + relayer ----------------
	var bus sharedBus.EventBus
	if cfg.UseKafka {
		log.Info("Using Kafka as event bus", zap.Strings("brokers", cfg.KafkaBrokers))

		writer := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
		defer writer.Close()
		bus = sharedEvents.NewKafkaPublisher(writer, defaultRelayTopic, log)

		ingestReader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaIngestTopic,
			GroupID:  cfg.KafkaGroupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		})
		defer ingestReader.Close()
		ingest := sharedEvents.NewConsumerAdapter(ingestReader, eventConsumers.NewIngestConsumer(eventService, 5*time.Second, log), log)
		goBackground(func() { ingest.Run(ctx) })

		if analytics != nil {
			analyticsReader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:     cfg.KafkaBrokers,
				GroupTopics: exchanges(definitions),
				GroupID:     cfg.KafkaGroupID + "-analytics",
				MinBytes:    10e3,
				MaxBytes:    10e6,
			})
			defer analyticsReader.Close()
			analyticsIn := sharedEvents.NewConsumerAdapter(analyticsReader, analytics, log)
			goBackground(func() { analyticsIn.Run(ctx) })
		}
	} else {
		log.Info("Using in-memory event bus")
		memBus := sharedEvents.NewInMemoryEventBus()
		defer memBus.Close()
		bus = memBus

		if analytics != nil {
			ch := memBus.Subscribe(256)
			goBackground(func() { sharedEvents.Pump(ctx, ch, analytics) })
		}
	}

	relay := relayer.NewOutboxWorker(outbox, bus, eventDomain.NewEventRegistry(definitions), cfg.OutboxPeriod, cfg.OutboxLimit, log).
		WithRetention(cfg.OutboxRetention, time.Hour)
	goBackground(func() { relay.Start(ctx) })

	// ---------------- Sagas ----------------
	sagaDefinitions, err := sagaDomain.NewDefinitionRegistry(sagaDomain.DefaultDefinitions()...)
	if err != nil {
		log.Fatal("invalid saga definitions", zap.Error(err))
	}
	sagaRepo := openSagaRepo(ctx, cfg, mongoClient, log)
	stepClient := services.NewHTTPStepClient(&http.Client{}, services.NewStaticResolver(cfg.ServiceBaseURL, cfg.ServiceURLs))
	runner := sagaApp.NewRunner(sagaRepo, stepClient, cache, cfg.SagaBackoffUnit, m, log)
	worker := sagaApp.NewWorker(runner, cfg.SagaQueueSize, cfg.SagaWorkers, m, log)
	worker.Start(ctx)
	sagaService := sagaApp.NewSagaService(sagaDefinitions, sagaRepo, worker, cache, m, log)

	// ---------------- HTTP ----------------
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(log), middleware.CORS())

	eventHttp.RegisterEventRoutes(router, eventHttp.NewEventHandler(eventService))
	sagaHttp.RegisterSagaRoutes(router, sagaHttp.NewSagaHandler(sagaService))
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := worker.Shutdown(shutdownCtx); err != nil {
		log.Warn("Saga worker shutdown incomplete", zap.Error(err))
	}
	background.Wait()
	log.Info("Bye")
}

// connectMongo devuelve nil si MONGO_URI no está definida o no responde.
func connectMongo(ctx context.Context, cfg *config.Config, log *zap.Logger) *mongo.Client {
	if cfg.MongoURI == "" {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Warn("MongoDB unavailable", zap.Error(err))
		return nil
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		log.Warn("MongoDB unavailable", zap.Error(err))
		_ = client.Disconnect(context.Background())
		return nil
	}
	return client
}

// openStorage elige el log durable y el almacén de dead letters según STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg *config.Config, mongoClient *mongo.Client, log *zap.Logger) (sharedDomain.OutboxRepository, eventDomain.DeadLetterRepository, func()) {
	switch cfg.StorageDriver {
	case "mongodb":
		if mongoClient == nil {
			log.Fatal("STORAGE_DRIVER=mongodb needs a reachable MONGO_URI")
		}
		outbox := outboxMongo.NewOutboxRepoMongoDB(mongoClient, cfg.MongoDB)
		deadLetters := dlqMongo.NewDeadLetterRepoMongoDB(mongoClient, cfg.MongoDB)
		if err := outbox.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to create outbox index", zap.Error(err))
		}
		if err := deadLetters.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to create dead letter index", zap.Error(err))
		}
		return outbox, deadLetters, func() {}
	case "postgres":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to open Postgres", zap.Error(err))
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping Postgres", zap.Error(err))
		}
		if err := outboxPostgres.InitOutbox(ctx, db); err != nil {
			log.Fatal("failed to initialize outbox", zap.Error(err))
		}
		if err := dlqPostgres.InitDeadLetters(ctx, db); err != nil {
			log.Fatal("failed to initialize dead letters", zap.Error(err))
		}
		return outboxPostgres.NewOutboxRepoPostgres(db), dlqPostgres.NewDeadLetterRepoPostgres(db), func() { db.Close() }
	default:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		// un único escritor a la vez, los lectores esperan detrás
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			log.Fatal("failed to ping SQLite", zap.Error(err))
		}
		if err := outboxSQLite.InitOutbox(ctx, db); err != nil {
			log.Fatal("failed to initialize outbox", zap.Error(err))
		}
		if err := dlqSQLite.InitDeadLetters(ctx, db); err != nil {
			log.Fatal("failed to initialize dead letters", zap.Error(err))
		}
		return outboxSQLite.NewOutboxRepoSQLite(db), dlqSQLite.NewDeadLetterRepoSQLite(db), func() { db.Close() }
	}
}

// openSagaRepo usa MongoDB si hay conexión y, si no, memoria del proceso.
func openSagaRepo(ctx context.Context, cfg *config.Config, mongoClient *mongo.Client, log *zap.Logger) sagaDomain.SagaRepository {
	if mongoClient == nil {
		log.Info("Saga instances kept in memory")
		return sagaMemory.NewSagaRepo()
	}
	repo, err := sagaMongo.NewSagaRepoMongoDB(ctx, mongoClient, cfg.MongoDB)
	if err != nil {
		log.Warn("MongoDB unavailable, saga instances kept in memory", zap.Error(err))
		return sagaMemory.NewSagaRepo()
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Warn("Failed to create saga indexes", zap.Error(err))
	}
	log.Info("Saga instances stored in MongoDB", zap.String("db", cfg.MongoDB))
	return repo
}

func exchanges(defs *eventDomain.DefinitionRegistry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range defs.All() {
		if ex := d.Routing.Exchange; !seen[ex] {
			seen[ex] = true
			out = append(out, ex)
		}
	}
	return out
}
