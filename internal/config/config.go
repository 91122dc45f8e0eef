package config

import (
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"product-catalog-client/internal/retry"

	"github.com/kelseyhightower/envconfig"
)

// Fallback store drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	Catalog    CatalogConfig
	Cache      CacheConfig
	Fallback   FallbackConfig
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
}

// CatalogConfig describes the upstream catalog API.
type CatalogConfig struct {
	BaseURL           string        `envconfig:"CATALOG_BASE_URL" default:"https://fakestoreapi.com"`
	RequestTimeout    time.Duration `envconfig:"CATALOG_REQUEST_TIMEOUT" default:"10s"`
	AllowedCategories []string      `envconfig:"CATALOG_ALLOWED_CATEGORIES"`
	RetryBackoff      string        `envconfig:"CATALOG_RETRY_BACKOFF" default:"immediate"`
	RetryDelay        time.Duration `envconfig:"CATALOG_RETRY_DELAY" default:"200ms"`
}

// CacheConfig holds the in-memory TTLs. Zero means the component default.
type CacheConfig struct {
	ProductsTTL     time.Duration `envconfig:"CACHE_PRODUCTS_TTL" default:"5m"`
	ProductTTL      time.Duration `envconfig:"CACHE_PRODUCT_TTL" default:"10m"`
	GatewayListTTL  time.Duration `envconfig:"CACHE_GATEWAY_LIST_TTL" default:"5m"`
	GatewayItemTTL  time.Duration `envconfig:"CACHE_GATEWAY_ITEM_TTL" default:"10m"`
	CategoriesTTL   time.Duration `envconfig:"CACHE_CATEGORIES_TTL" default:"1h"`
	RefreshInterval time.Duration `envconfig:"STATE_REFRESH_INTERVAL" default:"5m"`
	StatePageSize   int           `envconfig:"STATE_PAGE_SIZE" default:"20"`
}

// FallbackConfig selects where the last good data, favorites and cart are kept.
type FallbackConfig struct {
	Driver   string        `envconfig:"FALLBACK_DRIVER" default:"file"`
	FilePath string        `envconfig:"FALLBACK_FILE_PATH" default:"catalog-fallback.yaml"`
	MaxAge   time.Duration `envconfig:"FALLBACK_MAX_AGE" default:"1h"`
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds the health service listener.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL connection details. Only read when the
// fallback driver is postgres.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// RedisConfig holds the Redis fallback backend settings.
type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	Namespace string `envconfig:"REDIS_NAMESPACE" default:"catalog"`
}

// Load reads the configuration from environment variables and checks the
// settings the selected fallback driver needs.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Printf("INFO: Configuration loaded for APP_ENV: %s, fallback driver: %s", cfg.AppEnv, cfg.Fallback.Driver)
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Fallback.Driver = strings.ToLower(strings.TrimSpace(c.Fallback.Driver))
	switch c.Fallback.Driver {
	case DriverFile:
		if c.Fallback.FilePath == "" {
			return fmt.Errorf("FALLBACK_FILE_PATH is required for the %s driver", DriverFile)
		}
	case DriverPostgres:
		var missing []string
		for key, v := range map[string]string{
			"POSTGRES_HOST":   c.Postgres.Host,
			"POSTGRES_USER":   c.Postgres.User,
			"POSTGRES_DBNAME": c.Postgres.DBName,
		} {
			if v == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			return fmt.Errorf("%s required for the %s driver", strings.Join(missing, ", "), DriverPostgres)
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s driver", DriverRedis)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid FALLBACK_DRIVER %q: want file, postgres, redis or memory", c.Fallback.Driver)
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("CATALOG_BASE_URL must not be empty")
	}
	if c.Catalog.RequestTimeout <= 0 {
		return fmt.Errorf("CATALOG_REQUEST_TIMEOUT must be positive, got %s", c.Catalog.RequestTimeout)
	}
	c.Catalog.RetryBackoff = strings.ToLower(strings.TrimSpace(c.Catalog.RetryBackoff))
	if _, err := retry.Named(c.Catalog.RetryBackoff, c.Catalog.RetryDelay); err != nil {
		return fmt.Errorf("invalid CATALOG_RETRY_BACKOFF/CATALOG_RETRY_DELAY: %w", err)
	}
	return nil
}
