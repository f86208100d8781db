package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "PACKFINDERZ_APP_ENV"
	EnvDBDSN     = "PACKFINDERZ_DB_DSN"
	EnvDBDriver  = "PACKFINDERZ_DB_DRIVER"
	EnvDBHost    = "PACKFINDERZ_DB_HOST"
	EnvDBUser    = "PACKFINDERZ_DB_USER"
	EnvDBName    = "PACKFINDERZ_DB_NAME"
	EnvRedisURL  = "PACKFINDERZ_REDIS_URL"
	EnvHoldDays  = "PACKFINDERZ_PAYOUT_HOLD_DAYS"
	EnvRate      = "PACKFINDERZ_PAYOUT_DEFAULT_COMMISSION_RATE"
	EnvBatchSize = "PACKFINDERZ_SYNC_INVENTORY_BATCH_SIZE"

	EnvChannelBaseURL      = "PACKFINDERZ_CHANNEL_BASE_URL"
	EnvChannelClientID     = "PACKFINDERZ_CHANNEL_CLIENT_ID"
	EnvChannelClientSecret = "PACKFINDERZ_CHANNEL_CLIENT_SECRET"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
