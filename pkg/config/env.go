package config

// EnvPrefix is handed to envconfig; every field carries a fully qualified name.
const EnvPrefix = "MARKETCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv            = "MARKETCORE_APP_ENV"
	EnvPort              = "MARKETCORE_APP_PORT"
	EnvDBDSN             = "MARKETCORE_DB_DSN"
	EnvDBHost            = "MARKETCORE_DB_HOST"
	EnvDBUser            = "MARKETCORE_DB_USER"
	EnvDBName            = "MARKETCORE_DB_NAME"
	EnvUseSQLite         = "MARKETCORE_USE_SQLITE"
	EnvRedisURL          = "MARKETCORE_REDIS_URL"
	EnvJWTSecret         = "MARKETCORE_JWT_SECRET"
	EnvJWTIssuer         = "MARKETCORE_JWT_ISSUER"
	EnvBaseCurrency      = "MARKETCORE_CHECKOUT_BASE_CURRENCY"
	EnvPaymentMethods    = "MARKETCORE_CHECKOUT_PAYMENT_METHODS"
	EnvPrepaidMethods    = "MARKETCORE_CHECKOUT_PREPAID_METHODS"
	EnvDefaultCommission = "MARKETCORE_CHECKOUT_DEFAULT_COMMISSION_RATE"
	EnvPayoutMethods     = "MARKETCORE_PAYOUT_METHODS"
	EnvGCPProjectID      = "MARKETCORE_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
