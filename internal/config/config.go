// Package config provides configuration structures and validation for the
// settlement core. It handles environment-based configuration for all major
// components: HTTP server, databases, the job queue, the outbox dispatcher
// and the background settlement workers.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field covers one
// subsystem and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	Settlement  SettlementConfig
	Gateway     GatewayConfig
	Scheduler   SchedulerConfig
	Reconciler  ReconcilerConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the event archive
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration for the intent idempotency cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig contains job queue configuration
type KafkaConfig struct {
	Brokers           string
	EventsTopic       string // settlement notification events
	PayoutsTopic      string // payout_requested jobs consumed by the payout processor
	DLQTopic          string // dead-lettered outbox messages
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
}

// OutboxConfig contains outbox dispatcher configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // retry ceiling before a message is dead-lettered
	Partitions       int // parallel single-threaded drain loops
	BackoffBase      time.Duration
	BackoffMax       time.Duration
}

// SettlementConfig contains saga orchestrator configuration
type SettlementConfig struct {
	PlatformWalletID    string // wallet receiving platform fees
	DefaultFeeBps       int64  // fee rate in basis points used by auto-release
	MaxConflictRetries  int    // bounded transparent retries on lock conflicts
	IdempotencyCacheTTL time.Duration
}

// GatewayConfig contains payment gateway client configuration
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration // bound on every gateway call; a timeout is a failure
}

// SchedulerConfig contains auto-release scheduler configuration
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// ReconcilerConfig contains ledger reconciliation sweep configuration
type ReconcilerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// WorkerPoolConfig contains payout worker pool configuration
type WorkerPoolConfig struct {
	Size                int
	MaxDeliveryAttempts int // redeliveries per payout request before it is dead-lettered
}

// validate performs comprehensive validation of all configuration values
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize == 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}

	// Validate Kafka config
	if c.Kafka.Brokers == "" {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.EventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_EVENTS_TOPIC is required")
	}
	if c.Kafka.PayoutsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PAYOUTS_TOPIC is required")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}
	if c.Outbox.Partitions <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_PARTITIONS must be greater than 0")
	}
	if c.Outbox.BackoffBase <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BACKOFF_BASE must be greater than 0")
	}
	if c.Outbox.BackoffMax < c.Outbox.BackoffBase {
		validationErrors = append(validationErrors, "OUTBOX_BACKOFF_MAX must be at least OUTBOX_BACKOFF_BASE")
	}

	// Validate Settlement config
	if c.Settlement.PlatformWalletID == "" {
		validationErrors = append(validationErrors, "SETTLEMENT_PLATFORM_WALLET_ID is required")
	}
	if c.Settlement.DefaultFeeBps < 0 || c.Settlement.DefaultFeeBps > 10000 {
		validationErrors = append(validationErrors, "SETTLEMENT_DEFAULT_FEE_BPS must be between 0 and 10000")
	}
	if c.Settlement.MaxConflictRetries <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_MAX_CONFLICT_RETRIES must be greater than 0")
	}
	if c.Settlement.IdempotencyCacheTTL <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_IDEMPOTENCY_CACHE_TTL must be greater than 0")
	}

	// Validate Gateway config
	if c.Gateway.BaseURL == "" {
		validationErrors = append(validationErrors, "GATEWAY_BASE_URL is required")
	}
	if c.Gateway.Timeout <= 0 {
		validationErrors = append(validationErrors, "GATEWAY_TIMEOUT must be greater than 0")
	}

	// Validate Scheduler config
	if c.Scheduler.Interval <= 0 {
		validationErrors = append(validationErrors, "AUTORELEASE_INTERVAL must be greater than 0")
	}
	if c.Scheduler.BatchSize <= 0 {
		validationErrors = append(validationErrors, "AUTORELEASE_BATCH_SIZE must be greater than 0")
	}

	// Validate Reconciler config
	if c.Reconciler.Interval <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_INTERVAL must be greater than 0")
	}
	if c.Reconciler.BatchSize <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_BATCH_SIZE must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}
	if c.WorkerPool.MaxDeliveryAttempts <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_MAX_DELIVERY_ATTEMPTS must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New("invalid configuration: " + strings.Join(validationErrors, "; "))
	}

	return nil
}
