package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverMySQL    = "mysql"
	StoreDriverPostgres = "postgres"
	StoreDriverBolt     = "bolt"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	Store             StoreConfig
	MySQL             MySQLConfig
	Postgres          PostgresConfig
	Bolt              BoltConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Stripe            StripeConfig
	Checkout          CheckoutConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type StoreConfig struct {
	Driver string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

type BoltConfig struct {
	Path string
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type CheckoutConfig struct {
	CatalogFile    string
	Currency       string
	GatewayTimeout time.Duration
}

type PaymentsConfig struct {
	NotifyURL           string
	NotifyMaxAttempts   int32
	NotifyRetryInterval time.Duration
	NotifyHTTPTimeout   time.Duration
	PendingTimeout      time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval      time.Duration
	NotifyDispatchInterval time.Duration
	ExpirePendingInterval  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	driver := strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", StoreDriverMySQL)))
	mysqlDSN := os.Getenv("MYSQL_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")

	switch driver {
	case StoreDriverMySQL:
		if mysqlDSN == "" {
			return nil, errors.New("MYSQL_DSN environment variable is required")
		}
	case StoreDriverPostgres:
		if postgresDSN == "" {
			return nil, errors.New("POSTGRES_DSN environment variable is required")
		}
	case StoreDriverBolt:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", driver)
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "checkout-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Store: StoreConfig{
			Driver: driver,
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Postgres: PostgresConfig{
			DSN:      postgresDSN,
			MaxConns: int32(getIntEnv("POSTGRES_MAX_CONNS", 10)),
		},
		Bolt: BoltConfig{
			Path: getEnv("BOLT_PATH", "checkout.db"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Checkout: CheckoutConfig{
			CatalogFile:    getEnv("CHECKOUT_CATALOG_FILE", ""),
			Currency:       strings.ToLower(getEnv("CHECKOUT_CURRENCY", "usd")),
			GatewayTimeout: getSecondsEnv("CHECKOUT_GATEWAY_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			NotifyURL:           getEnv("PAYMENTS_NOTIFY_URL", ""),
			NotifyMaxAttempts:   int32(getIntEnv("PAYMENTS_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval: getMinutesEnv("PAYMENTS_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			NotifyHTTPTimeout:   getSecondsEnv("PAYMENTS_NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			PendingTimeout:      getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 24*time.Hour),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:      getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			NotifyDispatchInterval: getMinutesEnv("PAYMENTS_NOTIFY_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:  getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
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
