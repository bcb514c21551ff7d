package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig
	HTTP        ServerConfig
	MySQL       MySQLConfig
	Log         LogConfig
	Webhook     WebhookConfig
	Orders      OrdersConfig
	Cache       CacheConfig
	Idempotency IdempotencyConfig
	Retry       RetryConfig
	Jobs        JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type WebhookConfig struct {
	Secret          string
	ConflictRetries int
}

type OrdersConfig struct {
	UnitPriceCents         int64
	PaymentRedirectBaseURL string
}

type CacheConfig struct {
	TTL time.Duration
}

type IdempotencyConfig struct {
	WaitTimeout    time.Duration
	PollInterval   time.Duration
	ReservationTTL time.Duration
	Retention      time.Duration
}

type RetryConfig struct {
	BaseDelay    time.Duration
	MaxAttempts  int32
	PollInterval time.Duration
}

type JobsConfig struct {
	PurgeInterval  time.Duration
	PurgeBatchSize int32
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "order-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8000"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Webhook: WebhookConfig{
			Secret:          webhookSecret,
			ConflictRetries: getIntEnv("WEBHOOK_CONFLICT_RETRIES", 3),
		},
		Orders: OrdersConfig{
			UnitPriceCents:         int64(getIntEnv("ORDERS_UNIT_PRICE_CENTS", 1000)),
			PaymentRedirectBaseURL: getEnv("PAYMENTS_REDIRECT_BASE_URL", "https://payment-provider.example.com/pay"),
		},
		Cache: CacheConfig{
			TTL: getSecondsEnv("CACHE_TTL_SECONDS", 30*time.Second),
		},
		Idempotency: IdempotencyConfig{
			WaitTimeout:    getSecondsEnv("IDEMPOTENCY_WAIT_TIMEOUT_SECONDS", 5*time.Second),
			PollInterval:   getMillisEnv("IDEMPOTENCY_POLL_INTERVAL_MS", 50*time.Millisecond),
			ReservationTTL: getSecondsEnv("IDEMPOTENCY_RESERVATION_TTL_SECONDS", 5*time.Minute),
			Retention:      getMinutesEnv("IDEMPOTENCY_RETENTION_MINUTES", 48*time.Hour),
		},
		Retry: RetryConfig{
			BaseDelay:    getSecondsEnv("RETRY_BASE_DELAY_SECONDS", time.Second),
			MaxAttempts:  int32(getIntEnv("RETRY_MAX_ATTEMPTS", 3)),
			PollInterval: getMillisEnv("RETRY_POLL_INTERVAL_MS", 200*time.Millisecond),
		},
		Jobs: JobsConfig{
			PurgeInterval:  getMinutesEnv("JOBS_PURGE_INTERVAL_MINUTES", 15*time.Minute),
			PurgeBatchSize: int32(getIntEnv("JOBS_PURGE_BATCH_SIZE", 500)),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if millis, err := strconv.Atoi(value); err == nil {
			return time.Duration(millis) * time.Millisecond
		}
	}
	return defaultValue
}
