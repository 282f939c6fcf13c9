package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverMemory   = "memory"
)

// Counter backends accepted by COUNTER_BACKEND.
const (
	CounterBackendStore = "store"
	CounterBackendRedis = "redis"
)

// Report closure bucket policies accepted by REPORT_CLOSED_BUCKET.
const (
	ClosedBucketCreated = "created"
	ClosedBucketClosed  = "closed"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Storage      StorageConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Ingestion    IngestionConfig
	Sequence     SequenceConfig
	Report       ReportConfig
	Catalog      CatalogConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	Driver         string
	CounterBackend string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig controls outbound requester notifications.
type NotificationConfig struct {
	SystemAddress  string
	AMQPURL        string
	Exchange       string
	RoutingKey     string
	DelaySeconds   int
	TimeoutSeconds int
}

// IngestionConfig controls the inbound message pipeline.
type IngestionConfig struct {
	PollIntervalSeconds   int
	BatchSize             int
	MessageTimeoutSeconds int
	CorrelationHeader     string
	MatchBody             bool
	ReopenByMail          bool
	DedupWindowSeconds    int
	DedupPrefixLength     int
	AllowedDomains        []string
	BoilerplateMarkers    []string
	DefaultAssigneeEmail  string
	LockTTLSeconds        int
}

// SequenceConfig controls ticket code allocation.
type SequenceConfig struct {
	Namespace string
	Prefix    string
	Width     int
	BatchSize int
}

// ReportConfig controls the daily rollup.
type ReportConfig struct {
	ClosedBucket string
}

// CatalogConfig points at the pick-list catalog file.
type CatalogConfig struct {
	Path string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-ingest"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
			CounterBackend: strings.ToLower(getEnv("COUNTER_BACKEND", CounterBackendStore)),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "tickets.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			SystemAddress:  getEnv("NOTIFY_SYSTEM_ADDRESS", "soporte@example.com"),
			AMQPURL:        os.Getenv("NOTIFY_AMQP_URL"),
			Exchange:       getEnv("NOTIFY_AMQP_EXCHANGE", "tickets"),
			RoutingKey:     getEnv("NOTIFY_AMQP_ROUTING_KEY", "ticket.notification"),
			DelaySeconds:   getEnvAsInt("NOTIFY_DELAY_SECONDS", 5),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
		},
		Ingestion: IngestionConfig{
			PollIntervalSeconds:   getEnvAsInt("INGEST_POLL_INTERVAL_SECONDS", 60),
			BatchSize:             getEnvAsInt("INGEST_BATCH_SIZE", 20),
			MessageTimeoutSeconds: getEnvAsInt("INGEST_MESSAGE_TIMEOUT_SECONDS", 15),
			CorrelationHeader:     getEnv("INGEST_CORRELATION_HEADER", "X-Ticket-ID"),
			MatchBody:             getEnvAsBool("INGEST_MATCH_BODY", false),
			ReopenByMail:          getEnvAsBool("INGEST_REOPEN_BY_MAIL", false),
			DedupWindowSeconds:    getEnvAsInt("INGEST_DEDUP_WINDOW_SECONDS", 300),
			DedupPrefixLength:     getEnvAsInt("INGEST_DEDUP_PREFIX_LENGTH", 200),
			AllowedDomains:        getEnvAsList("INGEST_ALLOWED_DOMAINS"),
			BoilerplateMarkers:    getEnvAsList("INGEST_BOILERPLATE_MARKERS"),
			DefaultAssigneeEmail:  os.Getenv("INGEST_DEFAULT_ASSIGNEE_EMAIL"),
			LockTTLSeconds:        getEnvAsInt("INGEST_LOCK_TTL_SECONDS", 300),
		},
		Sequence: SequenceConfig{
			Namespace: getEnv("SEQUENCE_NAMESPACE", "tickets"),
			Prefix:    getEnv("SEQUENCE_PREFIX", "TCK"),
			Width:     getEnvAsInt("SEQUENCE_WIDTH", 4),
			BatchSize: getEnvAsInt("SEQUENCE_BATCH_SIZE", 1000),
		},
		Report: ReportConfig{
			ClosedBucket: strings.ToLower(getEnv("REPORT_CLOSED_BUCKET", ClosedBucketCreated)),
		},
		Catalog: CatalogConfig{
			Path: os.Getenv("CATALOG_PATH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite, StorageDriverMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Storage.CounterBackend {
	case CounterBackendStore, CounterBackendRedis:
	default:
		return fmt.Errorf("invalid COUNTER_BACKEND %q", c.Storage.CounterBackend)
	}
	if c.Storage.CounterBackend == CounterBackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("COUNTER_BACKEND=redis requires REDIS_ENABLED=true")
	}
	switch c.Report.ClosedBucket {
	case ClosedBucketCreated, ClosedBucketClosed:
	default:
		return fmt.Errorf("invalid REPORT_CLOSED_BUCKET %q", c.Report.ClosedBucket)
	}
	if c.Sequence.BatchSize <= 0 {
		return fmt.Errorf("SEQUENCE_BATCH_SIZE must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// PollInterval returns the delay between scheduled polls.
func (i IngestionConfig) PollInterval() time.Duration {
	return seconds(i.PollIntervalSeconds)
}

// MessageTimeout bounds the processing of a single inbound message.
func (i IngestionConfig) MessageTimeout() time.Duration {
	return seconds(i.MessageTimeoutSeconds)
}

// DedupWindow returns the duplicate detection window.
func (i IngestionConfig) DedupWindow() time.Duration {
	return seconds(i.DedupWindowSeconds)
}

// LockTTL returns the lifetime of the distributed poll lock.
func (i IngestionConfig) LockTTL() time.Duration {
	return seconds(i.LockTTLSeconds)
}

// Delay returns how long a notification waits before being sent.
func (n NotificationConfig) Delay() time.Duration {
	return seconds(n.DelaySeconds)
}

// Timeout bounds a single notification send.
func (n NotificationConfig) Timeout() time.Duration {
	return seconds(n.TimeoutSeconds)
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
