package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Escrow       EscrowConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"WORKHUB_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"WORKHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WORKHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WORKHUB_SERVICE_KIND" default:"escrow"`
}

type DBConfig struct {
	DSN    string `envconfig:"WORKHUB_DB_DSN"`
	Driver string `envconfig:"WORKHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WORKHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"WORKHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WORKHUB_DB_USER"`
	LegacyPassword string `envconfig:"WORKHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"WORKHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"WORKHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WORKHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WORKHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WORKHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WORKHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WORKHUB_REDIS_URL"`
	Address      string        `envconfig:"WORKHUB_REDIS_ADDR"`
	Password     string        `envconfig:"WORKHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"WORKHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WORKHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WORKHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WORKHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WORKHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WORKHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EscrowConfig bounds the wallet funding flow.
type EscrowConfig struct {
	TopUpLimit           int64         `envconfig:"WORKHUB_ESCROW_TOPUP_LIMIT" default:"10000"`
	TopUpIdempotencyTTL  time.Duration `envconfig:"WORKHUB_ESCROW_TOPUP_IDEMPOTENCY_TTL" default:"24h"`
	StatementPageSize    int           `envconfig:"WORKHUB_ESCROW_STATEMENT_PAGE_SIZE" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WORKHUB_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WORKHUB_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WORKHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WORKHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"WORKHUB_PUBSUB_DOMAIN_TOPIC" default:"workhub-domain-events"`
	DomainSubscription string `envconfig:"WORKHUB_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WORKHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WORKHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WORKHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
