package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "FARMFRESH"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	EnvAppEnv   = "FARMFRESH_APP_ENV"
	EnvPort     = "FARMFRESH_APP_PORT"
	EnvLogLevel = "FARMFRESH_LOG_LEVEL"

	EnvDBDSN  = "FARMFRESH_DB_DSN"
	EnvDBHost = "FARMFRESH_DB_HOST"
	EnvDBUser = "FARMFRESH_DB_USER"
	EnvDBName = "FARMFRESH_DB_NAME"

	EnvRedisURL = "FARMFRESH_REDIS_URL"

	EnvJWTSecret  = "FARMFRESH_JWT_SECRET"
	EnvJWTIssuer  = "FARMFRESH_JWT_ISSUER"
	EnvJWTExpMins = "FARMFRESH_JWT_EXPIRATION_MINUTES"

	EnvLockBackend = "FARMFRESH_LOCK_BACKEND"

	EnvAnalyticsTimezone  = "FARMFRESH_ANALYTICS_TIMEZONE"
	EnvAnalyticsLowStock  = "FARMFRESH_ANALYTICS_LOW_STOCK_THRESHOLD"
	EnvCORSAllowedOrigins = "FARMFRESH_CORS_ALLOWED_ORIGINS"

	EnvGCPProjectID       = "FARMFRESH_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic  = "FARMFRESH_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub    = "FARMFRESH_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvBigQueryDataset    = "FARMFRESH_BIGQUERY_DATASET"
	EnvBigQuerySalesTable = "FARMFRESH_BIGQUERY_SALES_TABLE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
