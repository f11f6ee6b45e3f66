package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_orders/internal/repository"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	DBDriver      string
	SQLitePath    string
	DB            repository.Credentials
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string

	AdminToken  string
	WebhookURL  string
	MongoURI    string
	MongoDBName string
	SESRegion   string
	SESFrom     string
	SESTo       string

	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool

	RequestTimeout  time.Duration
	SinkTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		GRPCPort:      getEnv("GRPC_PORT", "50060"),
		DBDriver:      getEnv("DB_DRIVER", repository.DriverPostgres),
		SQLitePath:    getEnv("SQLITE_PATH", "orders.db"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "internal/repository/migrations"),
		DB: repository.Credentials{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "orders"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "")),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDBName:   getEnv("MONGO_DB_NAME", "orders"),
		SESRegion:     getEnv("SES_REGION", "eu-central-1"),
		SESFrom:       getEnv("SES_FROM", ""),
		SESTo:         getEnv("SES_TO", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.DB.Port, err = getInt("DB_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.TrustProxy, err = getBool("TRUST_PROXY", false); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SinkTimeout, err = getDuration("SINK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	switch cfg.DBDriver {
	case repository.DriverPostgres, repository.DriverSQLite:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", repository.DriverPostgres, repository.DriverSQLite, cfg.DBDriver)
	}
	if (cfg.SESFrom == "") != (cfg.SESTo == "") {
		return nil, fmt.Errorf("SES_FROM and SES_TO must be set together")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
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
