package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string
	LogLevel string

	StorageDriver string // "sqlite", "postgres" or "mongodb"
	SQLitePath    string
	DatabaseURL   string

	RedisAddr string
	CacheTTL  time.Duration

	UseKafka         bool
	KafkaBrokers     []string
	KafkaIngestTopic string
	KafkaGroupID     string
	OutboxPeriod     time.Duration
	OutboxLimit      int
	OutboxRetention  time.Duration

	MongoURI string
	MongoDB  string

	ClickHouseAddr string
	ClickHouseDB   string

	ServiceBaseURL string
	ServiceURLs    map[string]string

	SagaWorkers         int
	SagaQueueSize       int
	SagaBackoffUnit     time.Duration
	DeliveryBaseBackoff time.Duration
	ShutdownTimeout     time.Duration
}

// LoadConfig lee el entorno. Si hay un fichero .env en el directorio de trabajo
// se carga antes; las variables ya definidas tienen prioridad.
func LoadConfig() *Config {
	_ = godotenv.Load()

	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	getInt := func(key string, fallback int) int {
		if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
			return n
		}
		return fallback
	}
	getDuration := func(key string, fallback time.Duration) time.Duration {
		if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
			return d
		}
		return fallback
	}
	getBool := func(key string, fallback bool) bool {
		if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
			return b
		}
		return fallback
	}

	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "sqlite")),
		SQLitePath:    getEnv("SQLITE_PATH", "./orchestrix.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		CacheTTL:  getDuration("CACHE_TTL", 5*time.Minute),

		UseKafka:         getBool("USE_KAFKA", false),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaIngestTopic: getEnv("KAFKA_INGEST_TOPIC", "orchestrix.ingest"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "orchestrix"),
		OutboxPeriod:     getDuration("OUTBOX_PERIOD", 1*time.Second),
		OutboxLimit:      getInt("OUTBOX_LIMIT", 50),
		OutboxRetention:  getDuration("OUTBOX_RETENTION", 7*24*time.Hour),

		MongoURI: getEnv("MONGO_URI", ""),
		MongoDB:  getEnv("MONGO_DB", "orchestrix"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "default"),

		ServiceBaseURL: strings.TrimRight(getEnv("SERVICE_BASE_URL", "http://localhost:54321/functions/v1"), "/"),
		ServiceURLs:    parseServiceURLs(os.Getenv("SERVICE_URLS")),

		SagaWorkers:         getInt("SAGA_WORKERS", 4),
		SagaQueueSize:       getInt("SAGA_QUEUE_SIZE", 256),
		SagaBackoffUnit:     getDuration("SAGA_BACKOFF_UNIT", 1*time.Second),
		DeliveryBaseBackoff: getDuration("DELIVERY_BASE_BACKOFF", 1*time.Second),
		ShutdownTimeout:     getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseServiceURLs lee "name=url,name2=url2". Los pares mal formados se ignoran.
func parseServiceURLs(raw string) map[string]string {
	urls := make(map[string]string)
	for _, pair := range splitList(raw) {
		name, url, ok := strings.Cut(pair, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			continue
		}
		urls[name] = strings.TrimRight(url, "/")
	}
	return urls
}
