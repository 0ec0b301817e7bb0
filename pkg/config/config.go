package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Backend     BackendConfig
	Poller      PollerConfig
	PaymentLink PaymentLinkConfig
	Redis       RedisConfig
	DB          DBConfig
	Cron        CronConfig
	RateLimit   RateLimitConfig
	GCP         GCPConfig
	PubSub      PubSubConfig
	BigQuery    BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYTRACK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PAYTRACK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PAYTRACK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PAYTRACK_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"PAYTRACK_AUTO_MIGRATE" default:"false"`

	CORSOrigins  []string `envconfig:"PAYTRACK_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:8888"`
	SecureCookie bool     `envconfig:"PAYTRACK_SECURE_COOKIE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BackendConfig points at the remote payment API that owns order state.
type BackendConfig struct {
	BaseURL string        `envconfig:"PAYTRACK_BACKEND_URL" required:"true"`
	Timeout time.Duration `envconfig:"PAYTRACK_BACKEND_TIMEOUT" default:"10s"`
}

type PollerConfig struct {
	Interval      time.Duration `envconfig:"PAYTRACK_POLL_INTERVAL" default:"3s"`
	MaxAttempts   int           `envconfig:"PAYTRACK_POLL_MAX_ATTEMPTS" default:"20"`
	RetryDelay    time.Duration `envconfig:"PAYTRACK_POLL_RETRY_DELAY" default:"5s"`
	MaxRetryDelay time.Duration `envconfig:"PAYTRACK_POLL_MAX_RETRY_DELAY" default:"30s"`
	ErrorBackoff  bool          `envconfig:"PAYTRACK_POLL_ERROR_BACKOFF" default:"false"`
	RecheckDelay  time.Duration `envconfig:"PAYTRACK_SIMULATE_RECHECK_DELAY" default:"1s"`
}

type PaymentLinkConfig struct {
	TTL       time.Duration `envconfig:"PAYTRACK_PAYMENT_LINK_TTL" default:"30m"`
	Mirror    string        `envconfig:"PAYTRACK_PAYMENT_LINK_MIRROR" default:"redis"`
	Retention time.Duration `envconfig:"PAYTRACK_PAYMENT_LINK_RETENTION" default:"24h"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYTRACK_REDIS_URL"`
	Address      string        `envconfig:"PAYTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"PAYTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type DBConfig struct {
	Driver string `envconfig:"PAYTRACK_DB_DRIVER" default:"postgres"`
	DSN    string `envconfig:"PAYTRACK_DB_DSN"`

	Host     string `envconfig:"PAYTRACK_DB_HOST"`
	Port     int    `envconfig:"PAYTRACK_DB_PORT" default:"5432"`
	User     string `envconfig:"PAYTRACK_DB_USER"`
	Password string `envconfig:"PAYTRACK_DB_PASSWORD"`
	Name     string `envconfig:"PAYTRACK_DB_NAME"`
	SSLMode  string `envconfig:"PAYTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYTRACK_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"PAYTRACK_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"PAYTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type CronConfig struct {
	Enabled    bool          `envconfig:"PAYTRACK_CRON_ENABLED" default:"true"`
	Interval   time.Duration `envconfig:"PAYTRACK_CRON_INTERVAL" default:"30s"`
	JobTimeout time.Duration `envconfig:"PAYTRACK_CRON_JOB_TIMEOUT" default:"25s"`
	IdleTTL    time.Duration `envconfig:"PAYTRACK_CLIENT_IDLE_TTL" default:"2h"`
}

type RateLimitConfig struct {
	PollStartsPerMinute int           `envconfig:"PAYTRACK_RATE_LIMIT_POLL_PER_MINUTE" default:"30"`
	PollStartBurst      int           `envconfig:"PAYTRACK_RATE_LIMIT_POLL_BURST" default:"5"`
	SandboxWindow       time.Duration `envconfig:"PAYTRACK_RATE_LIMIT_SANDBOX_WINDOW" default:"1m"`
	SandboxLimit        int           `envconfig:"PAYTRACK_RATE_LIMIT_SANDBOX_LIMIT" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAYTRACK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PAYTRACK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAYTRACK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OutcomeTopic string `envconfig:"PAYTRACK_PUBSUB_OUTCOME_TOPIC"`
	CreateTopic  bool   `envconfig:"PAYTRACK_PUBSUB_CREATE_TOPIC" default:"false"`
	// OrderByScope publishes with the client scope as ordering key.
	OrderByScope bool `envconfig:"PAYTRACK_PUBSUB_ORDER_BY_SCOPE" default:"true"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"PAYTRACK_BIGQUERY_DATASET" default:"paytrack"`
	OutcomeTable string `envconfig:"PAYTRACK_BIGQUERY_OUTCOME_TABLE"`
	// CreateTable lets the api create a missing outcome table on startup.
	CreateTable bool `envconfig:"PAYTRACK_BIGQUERY_CREATE_TABLE" default:"false"`
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.PaymentLink.Mirror)) {
	case MirrorRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=%s requires %s or %s", EnvPaymentLinkMirror, MirrorRedis, EnvRedisURL, EnvRedisAddr)
		}
	case MirrorDB:
		if err := c.DB.ensureDSN(); err != nil {
			return err
		}
	case MirrorNone:
	default:
		return fmt.Errorf("unsupported %s %q", EnvPaymentLinkMirror, c.PaymentLink.Mirror)
	}
	if c.Poller.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvPollMaxAttempts)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("%s must be positive", EnvPollInterval)
	}
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvBackendURL, err)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range []string{EnvDBHost, EnvDBUser, EnvDBName} {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
