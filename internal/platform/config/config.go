package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Registry RegistryConfig
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	RequestTimeout time.Duration
	// RateLimit is requests per actor per RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// DatabaseConfig selects persistence. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the notification inbox. An empty URL logs notifications only.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	InboxLimit   int64
	Channel      string
}

// KafkaConfig configures the audit outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
	RelayBatch    int
}

// RegistryConfig holds the record-keeping rules of the registry.
type RegistryConfig struct {
	NumberPrefix         string
	SerialWidth          int
	OverdueThresholdDays int
	AccessDuration       time.Duration
}

// DefaultRegistry returns the registry rules used when nothing is configured.
func DefaultRegistry() RegistryConfig {
	return RegistryConfig{
		NumberPrefix:         "FMCAB",
		SerialWidth:          3,
		OverdueThresholdDays: 2,
		AccessDuration:       5 * time.Hour,
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	reg := DefaultRegistry()
	reg.NumberPrefix = envString("PIMS_NUMBER_PREFIX", reg.NumberPrefix)
	reg.SerialWidth = envInt("PIMS_SERIAL_WIDTH", reg.SerialWidth)
	reg.OverdueThresholdDays = envInt("PIMS_OVERDUE_THRESHOLD_DAYS", reg.OverdueThresholdDays)
	reg.AccessDuration = envDuration("PIMS_ACCESS_DURATION", reg.AccessDuration)

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Server: Server{
			Addr:           envString("PIMS_ADDR", ":8080"),
			JWTSigningKey:  jwtSigningKey,
			JWTIssuer:      envString("JWT_ISSUER", "pims"),
			JWTAudience:    envString("JWT_AUDIENCE", "pims-api"),
			RequestTimeout: envDuration("PIMS_REQUEST_TIMEOUT", 30*time.Second),
			RateLimit:      envInt("PIMS_RATE_LIMIT", 300),
			RateWindow:     envDuration("PIMS_RATE_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     os.Getenv("DATABASE_AUTO_MIGRATE") == "true",
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			InboxLimit:   int64(envInt("PIMS_INBOX_LIMIT", 200)),
			Channel:      envString("PIMS_NOTIFY_CHANNEL", "pims:notifications"),
		},
		Kafka: KafkaConfig{
			Brokers:       brokers,
			AuditTopic:    envString("KAFKA_AUDIT_TOPIC", "pims.audit"),
			RelayInterval: envDuration("OUTBOX_RELAY_INTERVAL", time.Second),
			RelayBatch:    envInt("OUTBOX_RELAY_BATCH", 100),
		},
		Registry: reg,
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
