package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "PARTSDEPOT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "PARTSDEPOT_APP_ENV"
	EnvPort         = "PARTSDEPOT_APP_PORT"
	EnvDBDSN        = "PARTSDEPOT_DB_DSN"
	EnvDBHost       = "PARTSDEPOT_DB_HOST"
	EnvDBUser       = "PARTSDEPOT_DB_USER"
	EnvDBName       = "PARTSDEPOT_DB_NAME"
	EnvDBPassword   = "PARTSDEPOT_DB_PASSWORD"
	EnvRedisURL     = "PARTSDEPOT_REDIS_URL"
	EnvJWTSecret    = "PARTSDEPOT_JWT_SECRET"
	EnvJWTIssuer    = "PARTSDEPOT_JWT_ISSUER"
	EnvCartCleanup  = "PARTSDEPOT_CART_CLEANUP_DAYS"
	EnvGuestTTL     = "PARTSDEPOT_GUEST_SESSION_TTL"
	EnvRabbitMQURL  = "PARTSDEPOT_RABBITMQ_URL"
	EnvOutboxMaxTry = "PARTSDEPOT_OUTBOX_MAX_ATTEMPTS"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
