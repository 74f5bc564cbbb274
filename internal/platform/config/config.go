package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	LogLevel      string
	CORSOrigins   []string

	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tables   TablesConfig
	Drafts   DraftsConfig
}

// HTTPConfig bounds request handling and shutdown.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// DatabaseConfig holds PostgreSQL settings. An empty URL keeps every store in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the lifecycle event publisher. No brokers means events
// stay in process.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TablesConfig selects where the CLB conversion table comes from.
type TablesConfig struct {
	// Source is "embedded" or "postgres".
	Source   string
	CacheTTL time.Duration
}

// DraftsConfig selects the server-side draft store.
type DraftsConfig struct {
	// Store is "memory", "postgres" or "redis".
	Store string
	TTL   time.Duration
}

// ConversionCacheTTL matches how long a loaded conversion table is reused
// before the source is consulted again.
var ConversionCacheTTL = time.Hour

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          getEnv("IMMIMATE_ADDR", ":8080"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     getEnv("JWT_ISSUER", "immimate"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		HTTP: HTTPConfig{
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:   getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "immimate.lifecycle"),
		},
		Tables: TablesConfig{
			Source:   getEnv("CLB_TABLE_SOURCE", "embedded"),
			CacheTTL: getEnvAsDuration("CLB_TABLE_CACHE_TTL", ConversionCacheTTL),
		},
		Drafts: DraftsConfig{
			Store: getEnv("DRAFT_STORE", "memory"),
			TTL:   getEnvAsDuration("DRAFT_TTL", 30*24*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(v, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
