package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerHost     string
	ServerPort     string
	AuditPort      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers      []string
	KafkaGroupID      string
	EpisodeEventTopic string

	// Auth
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration

	// OIDC (optional, replaces local JWT validation when set)
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Access policy
	AccessPolicyPath string

	// Statistics
	StatsCacheTTL time.Duration

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AuditPort:      getEnv("AUDIT_PORT", "8081"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "epicare"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "epicare123"),
		PostgresDB:       getEnv("POSTGRES_DB", "epicare"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:      getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "epicare-platform"),
		EpisodeEventTopic: getEnv("EPISODE_EVENT_TOPIC", "episode-events"),

		JWTSecret:   getEnv("JWT_SECRET", "local-development-secret"),
		JWTIssuer:   getEnv("JWT_ISSUER", "epicare"),
		JWTAudience: getEnv("JWT_AUDIENCE", "epicare-api"),
		JWTTTL:      getDuration("JWT_TTL", time.Hour),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		AccessPolicyPath: getEnv("ACCESS_POLICY_PATH", ""),

		StatsCacheTTL: getDuration("STATS_CACHE_TTL", 5*time.Minute),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
