package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers understood by the contact store factory.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// EmptyIdentifyPolicy controls identify calls that carry neither email nor phone.
type EmptyIdentifyPolicy string

const (
	// EmptyIdentifyCreate persists an empty-valued primary, like the original service.
	EmptyIdentifyCreate EmptyIdentifyPolicy = "create"
	// EmptyIdentifySkip answers with an empty view and writes nothing.
	EmptyIdentifySkip EmptyIdentifyPolicy = "skip"
	// EmptyIdentifyReject fails the call with a bad request.
	EmptyIdentifyReject EmptyIdentifyPolicy = "reject"
)

// Server captures process level configuration.
type Server struct {
	Addr               string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
	Log                LogConfig
	Database           DatabaseConfig
	Redis              RedisConfig
	Events             EventsConfig
	Identify           IdentifyConfig
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects and tunes the contact store.
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the distributed identifier lock when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
}

// EventsConfig selects where contact events are published. Kafka wins when
// both are configured; neither means events are only logged.
type EventsConfig struct {
	KafkaBrokers           []string
	KafkaTopic             string
	KafkaPartitions        int
	KafkaReplicationFactor int
	AMQPURL                string
	AMQPExchange           string
}

// IdentifyConfig tunes the reconciliation service.
type IdentifyConfig struct {
	EmptyPolicy EmptyIdentifyPolicy
	TxTimeout   time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:               envString("RECONCILER_ADDR", ":8080"),
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Driver:          envString("DATABASE_DRIVER", DriverMemory),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      envDuration("IDENTIFIER_LOCK_TTL", 10*time.Second),
			LockWait:     envDuration("IDENTIFIER_LOCK_WAIT", 3*time.Second),
		},
		Events: EventsConfig{
			KafkaBrokers:           envList("KAFKA_BROKERS", nil),
			KafkaTopic:             envString("KAFKA_TOPIC", "contact-events"),
			KafkaPartitions:        envInt("KAFKA_TOPIC_PARTITIONS", 3),
			KafkaReplicationFactor: envInt("KAFKA_TOPIC_REPLICATION", 1),
			AMQPURL:                os.Getenv("AMQP_URL"),
			AMQPExchange:           envString("AMQP_EXCHANGE", "ex.contacts"),
		},
		Identify: IdentifyConfig{
			EmptyPolicy: ParseEmptyPolicy(os.Getenv("EMPTY_IDENTIFY_POLICY")),
			TxTimeout:   envDuration("TX_TIMEOUT", 5*time.Second),
		},
	}
}

// ParseEmptyPolicy maps a configuration string to a policy, defaulting to create.
func ParseEmptyPolicy(v string) EmptyIdentifyPolicy {
	switch EmptyIdentifyPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case EmptyIdentifySkip:
		return EmptyIdentifySkip
	case EmptyIdentifyReject:
		return EmptyIdentifyReject
	default:
		return EmptyIdentifyCreate
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envList(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
