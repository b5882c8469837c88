package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "orderflow"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Lock         LockConfig
	Checkout     CheckoutConfig
	Discounts    DiscountsConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" default:"dev"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" default:"8090"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"engine"`
}

type DBConfig struct {
	DSN string `envconfig:"ORDERFLOW_DB_DSN"`

	Host     string `envconfig:"ORDERFLOW_DB_HOST"`
	Port     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	User     string `envconfig:"ORDERFLOW_DB_USER"`
	Password string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	Name     string `envconfig:"ORDERFLOW_DB_NAME"`
	SSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("db config: DSN or host/user/name required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LockConfig tunes the distributed order lock.
type LockConfig struct {
	LeaseTTL      time.Duration `envconfig:"ORDERFLOW_LOCK_LEASE_TTL" default:"30s"`
	RetryInterval time.Duration `envconfig:"ORDERFLOW_LOCK_RETRY_INTERVAL" default:"150ms"`
	MaxAttempts   int           `envconfig:"ORDERFLOW_LOCK_MAX_ATTEMPTS" default:"20"`
}

// CheckoutConfig replaces the checkout-related runtime toggles that used to
// live in a process-wide settings object.
type CheckoutConfig struct {
	EnsureUserHasCart    bool `envconfig:"ORDERFLOW_CHECKOUT_ENSURE_USER_HAS_CART" default:"false"`
	OrderNumberLength    int  `envconfig:"ORDERFLOW_CHECKOUT_ORDER_NUMBER_LENGTH" default:"6"`
	UpdateUserOnCheckout bool `envconfig:"ORDERFLOW_CHECKOUT_UPDATE_USER_PROFILE" default:"true"`
}

// DiscountsConfig maps static manual codes to discount adapter keys,
// e.g. "SUMMER24:percent-off,LAUNCH:percent-off".
type DiscountsConfig struct {
	StaticCodes map[string]string `envconfig:"ORDERFLOW_DISCOUNT_STATIC_CODES"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ORDERFLOW_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"ORDERFLOW_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts    int           `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"ORDERFLOW_PUBSUB_DOMAIN_TOPIC" default:"orderflow-domain"`
	DomainSubscription string `envconfig:"ORDERFLOW_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_FEATURE_AUTO_MIGRATE" default:"false"`
}
