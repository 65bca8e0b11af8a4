package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	FeatureFlags FeatureFlagsConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	Payout       PayoutConfig
	PubSub       PubSubConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETCORE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MARKETCORE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MARKETCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN       string `envconfig:"MARKETCORE_DB_DSN"`
	Isolation string `envconfig:"MARKETCORE_DB_ISOLATION" default:"serializable"`

	LegacyHost     string `envconfig:"MARKETCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETCORE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	TxTimeout       time.Duration `envconfig:"MARKETCORE_DB_TX_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETCORE_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETCORE_REDIS_URL"`
	Address      string        `envconfig:"MARKETCORE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETCORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETCORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETCORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type CheckoutConfig struct {
	BaseCurrency          string   `envconfig:"MARKETCORE_CHECKOUT_BASE_CURRENCY" default:"USD"`
	PaymentMethods        []string `envconfig:"MARKETCORE_CHECKOUT_PAYMENT_METHODS" default:"card,cash_on_delivery,bank_transfer,wallet"`
	PrepaidMethods        []string `envconfig:"MARKETCORE_CHECKOUT_PREPAID_METHODS" default:"card,wallet"`
	DefaultCommissionRate string   `envconfig:"MARKETCORE_CHECKOUT_DEFAULT_COMMISSION_RATE" default:"0.10"`
}

// CommissionRate parses the configured fallback commission rate.
func (c CheckoutConfig) CommissionRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultCommissionRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c CheckoutConfig) validate() error {
	if len(strings.TrimSpace(c.BaseCurrency)) != 3 {
		return fmt.Errorf("%s must be a 3-letter currency code", EnvBaseCurrency)
	}
	if len(c.PaymentMethods) == 0 {
		return fmt.Errorf("%s requires at least one method", EnvPaymentMethods)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultCommissionRate))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvDefaultCommission, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be between 0 and 1", EnvDefaultCommission)
	}
	return nil
}

type PayoutConfig struct {
	Methods []string      `envconfig:"MARKETCORE_PAYOUT_METHODS" default:"bank_transfer,paypal,wallet"`
	LockTTL time.Duration `envconfig:"MARKETCORE_PAYOUT_LOCK_TTL" default:"30s"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MARKETCORE_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"MARKETCORE_CRON_LOCK_TTL" default:"10m"`
	PendingOrderTTL time.Duration `envconfig:"MARKETCORE_CRON_PENDING_ORDER_TTL" default:"48h"`
	BatchSize       int           `envconfig:"MARKETCORE_CRON_BATCH_SIZE" default:"100"`
	JobTimeout      time.Duration `envconfig:"MARKETCORE_CRON_JOB_TIMEOUT" default:"5m"`
}

type PubSubConfig struct {
	ProjectID         string `envconfig:"MARKETCORE_GCP_PROJECT_ID"`
	NotificationTopic string `envconfig:"MARKETCORE_PUBSUB_NOTIFICATION_TOPIC" default:"marketcore-notifications"`
}

// Enabled reports whether notifications should be published to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ProjectID) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:marketcore.db?cache=shared"
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
