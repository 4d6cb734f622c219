package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SETTLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SETTLE_APP_ENV"
	EnvPort     = "SETTLE_APP_PORT"
	EnvLogLevel = "SETTLE_LOG_LEVEL"

	EnvDBDSN    = "SETTLE_DB_DSN"
	EnvDBDriver = "SETTLE_DB_DRIVER"
	EnvDBHost   = "SETTLE_DB_HOST"
	EnvDBUser   = "SETTLE_DB_USER"
	EnvDBName   = "SETTLE_DB_NAME"

	EnvRedisURL = "SETTLE_REDIS_URL"

	EnvJWTSecret = "SETTLE_JWT_SECRET"
	EnvJWTIssuer = "SETTLE_JWT_ISSUER"

	EnvStripeAPIKey = "SETTLE_STRIPE_API_KEY"
	EnvStripeSecret = "SETTLE_STRIPE_SECRET"
	EnvStripeEnv    = "SETTLE_STRIPE_ENV"

	EnvShippingFee        = "SETTLE_SHIPPING_FEE"
	EnvCurrency           = "SETTLE_CURRENCY"
	EnvRetryAttempts      = "SETTLE_CHECKOUT_RETRY_ATTEMPTS"
	EnvRetryBaseDelay     = "SETTLE_CHECKOUT_RETRY_BASE_DELAY"
	EnvTempOrderTTL       = "SETTLE_TEMP_ORDER_TTL"
	EnvCheckoutSuccess    = "SETTLE_CHECKOUT_SUCCESS_URL"
	EnvCheckoutCancel     = "SETTLE_CHECKOUT_CANCEL_URL"
	EnvWebhookGuardTTL    = "SETTLE_WEBHOOK_IDEMPOTENCY_TTL"
	EnvGCPProjectID       = "SETTLE_GCP_PROJECT_ID"
	EnvPubSubFailureTopic = "SETTLE_PUBSUB_FAILURE_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Stripe.validate(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLE_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLE_DB_DSN"`
	Driver string `envconfig:"SETTLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLE_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLE_DB_USER"`
	LegacyPassword string `envconfig:"SETTLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLE_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"SETTLE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SETTLE_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"SETTLE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"SETTLE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	FailureTopic string `envconfig:"SETTLE_PUBSUB_FAILURE_TOPIC" default:"settlement-internal-failures"`
}

// Enabled reports whether failure events should be published.
func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(gcp.ProjectID) != "" && strings.TrimSpace(p.FailureTopic) != ""
}

type StripeConfig struct {
	APIKey string `envconfig:"SETTLE_STRIPE_API_KEY"`
	Secret string `envconfig:"SETTLE_STRIPE_SECRET"`
	Env    string `envconfig:"SETTLE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// validate keeps a prod deployment from taking payments against a test account.
func (s StripeConfig) validate(app AppConfig) error {
	if !app.IsProd() || strings.TrimSpace(s.APIKey) == "" {
		return nil
	}
	if s.Environment() != "live" {
		return fmt.Errorf("%s must be live when %s is %s", EnvStripeEnv, EnvAppEnv, AppEnvProd)
	}
	return nil
}

// CheckoutConfig carries the settlement knobs shared by the cash and hosted paths.
type CheckoutConfig struct {
	ShippingFee     int64         `envconfig:"SETTLE_SHIPPING_FEE" default:"30000"`
	Currency        string        `envconfig:"SETTLE_CURRENCY" default:"vnd"`
	RetryAttempts   int           `envconfig:"SETTLE_CHECKOUT_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay  time.Duration `envconfig:"SETTLE_CHECKOUT_RETRY_BASE_DELAY" default:"100ms"`
	SuccessURL      string        `envconfig:"SETTLE_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL       string        `envconfig:"SETTLE_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
	TempOrderTTL    time.Duration `envconfig:"SETTLE_TEMP_ORDER_TTL" default:"24h"`
	WebhookGuardTTL time.Duration `envconfig:"SETTLE_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

func (c CheckoutConfig) validate() error {
	if c.ShippingFee < 0 {
		return fmt.Errorf("%s must not be negative", EnvShippingFee)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvRetryAttempts)
	}
	if strings.TrimSpace(c.Currency) == "" {
		return fmt.Errorf("%s is required", EnvCurrency)
	}
	return nil
}

// HTTPConfig carries the API edge settings.
type HTTPConfig struct {
	CORSOrigins        []string      `envconfig:"SETTLE_CORS_ORIGINS"`
	CheckoutRateWindow time.Duration `envconfig:"SETTLE_CHECKOUT_RATE_WINDOW" default:"1m"`
	CheckoutRateLimit  int           `envconfig:"SETTLE_CHECKOUT_RATE_LIMIT" default:"10"`
	ShutdownTimeout    time.Duration `envconfig:"SETTLE_SHUTDOWN_TIMEOUT" default:"15s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SETTLE_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"SETTLE_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:settlement.db?cache=shared"
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
