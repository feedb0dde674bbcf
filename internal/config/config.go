package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces the process; field tags carry the full variable names.
const EnvPrefix = "SPA"

type Config struct {
	App      AppConfig
	AWS      AWSConfig
	Tables   TablesConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Checkout CheckoutConfig
	Metrics  MetricsConfig
}

// Load reads the API configuration. The API keeps carts in Redis, so a
// Redis endpoint is required except for local runs, which fall back to memory.
func Load() (*Config, error) {
	cfg, err := process()
	if err != nil {
		return nil, err
	}
	if !cfg.App.RunLocal {
		if err := cfg.Redis.validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadWorker reads the configuration for the queue worker, which never
// touches Redis.
func LoadWorker() (*Config, error) {
	return process()
}

func process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"SPA_APP_ENV" default:"dev"`
	Port      string `envconfig:"SPA_APP_PORT" default:"8080"`
	LogLevel  string `envconfig:"SPA_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"SPA_LOG_FORMAT" default:"json"`
	RunLocal  bool   `envconfig:"SPA_RUN_LOCAL" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type AWSConfig struct {
	Region           string `envconfig:"SPA_AWS_REGION" default:"us-east-1"`
	EndpointOverride string `envconfig:"SPA_AWS_ENDPOINT_OVERRIDE"`
}

type TablesConfig struct {
	Bookings       string        `envconfig:"SPA_BOOKINGS_TABLE" default:"bookings"`
	BookingsByUser string        `envconfig:"SPA_BOOKINGS_USER_INDEX" default:"user_id-created_at-index"`
	Payments       string        `envconfig:"SPA_PAYMENTS_TABLE" default:"payments"`
	Idempotency    string        `envconfig:"SPA_IDEMPOTENCY_TABLE" default:"idempotency"`
	IdempotencyTTL time.Duration `envconfig:"SPA_IDEMPOTENCY_TTL" default:"48h"`
}

type QueueConfig struct {
	BookingEventsURL string `envconfig:"SPA_BOOKING_EVENTS_QUEUE_URL"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPA_REDIS_URL"`
	Address      string        `envconfig:"SPA_REDIS_ADDR"`
	Password     string        `envconfig:"SPA_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPA_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"SPA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPA_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"SPA_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Configured reports whether any Redis endpoint is set.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

func (r RedisConfig) validate() error {
	if !r.Configured() {
		return errors.New("either SPA_REDIS_URL or SPA_REDIS_ADDR is required")
	}
	return nil
}

type CheckoutConfig struct {
	CartTTL        time.Duration `envconfig:"SPA_CART_TTL" default:"720h"`
	ConfirmLockTTL time.Duration `envconfig:"SPA_CONFIRM_LOCK_TTL" default:"30s"`
}

type MetricsConfig struct {
	Namespace string `envconfig:"SPA_METRICS_NAMESPACE" default:"SpaCheckout"`
}
