package config

// EnvPrefix namespaces every WorkHub environment variable.
const EnvPrefix = "WORKHUB"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "WORKHUB_APP_ENV"
	EnvDBDSN    = "WORKHUB_DB_DSN"
	EnvDBHost   = "WORKHUB_DB_HOST"
	EnvDBUser   = "WORKHUB_DB_USER"
	EnvDBName   = "WORKHUB_DB_NAME"
	EnvRedisURL = "WORKHUB_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
