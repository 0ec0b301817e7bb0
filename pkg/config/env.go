package config

const EnvPrefix = "paytrack"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	MirrorRedis = "redis"
	MirrorDB    = "db"
	MirrorNone  = "none"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv            = "PAYTRACK_APP_ENV"
	EnvPort              = "PAYTRACK_APP_PORT"
	EnvBackendURL        = "PAYTRACK_BACKEND_URL"
	EnvPollInterval      = "PAYTRACK_POLL_INTERVAL"
	EnvPollMaxAttempts   = "PAYTRACK_POLL_MAX_ATTEMPTS"
	EnvPaymentLinkTTL    = "PAYTRACK_PAYMENT_LINK_TTL"
	EnvPaymentLinkMirror = "PAYTRACK_PAYMENT_LINK_MIRROR"
	EnvRedisURL          = "PAYTRACK_REDIS_URL"
	EnvRedisAddr         = "PAYTRACK_REDIS_ADDR"
	EnvDBDriver          = "PAYTRACK_DB_DRIVER"
	EnvDBDSN             = "PAYTRACK_DB_DSN"
	EnvDBHost            = "PAYTRACK_DB_HOST"
	EnvDBUser            = "PAYTRACK_DB_USER"
	EnvDBName            = "PAYTRACK_DB_NAME"
	EnvDBPassword        = "PAYTRACK_DB_PASSWORD"
	EnvCORSOrigins       = "PAYTRACK_CORS_ORIGINS"
)
