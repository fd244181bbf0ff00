package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "ESTORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "ESTORE_APP_ENV"
	EnvPort      = "ESTORE_APP_PORT"
	EnvDBDSN     = "ESTORE_DB_DSN"
	EnvDBHost    = "ESTORE_DB_HOST"
	EnvDBUser    = "ESTORE_DB_USER"
	EnvDBName    = "ESTORE_DB_NAME"
	EnvRedisURL  = "ESTORE_REDIS_URL"
	EnvJWTSecret = "ESTORE_JWT_SECRET"
	EnvJWTIssuer = "ESTORE_JWT_ISSUER"

	EnvGCPProjectID      = "ESTORE_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "ESTORE_PUBSUB_DOMAIN_TOPIC"

	EnvPhonePeWebhookUser     = "ESTORE_PHONEPE_WEBHOOK_USERNAME"
	EnvPhonePeWebhookPassword = "ESTORE_PHONEPE_WEBHOOK_PASSWORD"
	EnvCashfreeNotifyURL      = "ESTORE_CASHFREE_NOTIFY_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	PhonePe      PhonePeConfig
	Cashfree     CashfreeConfig
	Payments     PaymentsConfig
	Shipping     ShippingConfig
	Notify       NotifyConfig
	Cron         CronConfig
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
	Env          string   `envconfig:"ESTORE_APP_ENV" required:"true"`
	Port         string   `envconfig:"ESTORE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"ESTORE_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"ESTORE_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"ESTORE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ESTORE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ESTORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ESTORE_DB_DSN"`
	Driver string `envconfig:"ESTORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ESTORE_DB_HOST"`
	LegacyPort     int    `envconfig:"ESTORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ESTORE_DB_USER"`
	LegacyPassword string `envconfig:"ESTORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"ESTORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"ESTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ESTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ESTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ESTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ESTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ESTORE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ESTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ESTORE_REDIS_ADDR"`
	Password     string        `envconfig:"ESTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ESTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ESTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ESTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ESTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ESTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ESTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the external identity service.
type JWTConfig struct {
	Secret    string        `envconfig:"ESTORE_JWT_SECRET" required:"true"`
	Issuer    string        `envconfig:"ESTORE_JWT_ISSUER" required:"true"`
	AccessTTL time.Duration `envconfig:"ESTORE_JWT_ACCESS_TTL" default:"1h"`
	Leeway    time.Duration `envconfig:"ESTORE_JWT_LEEWAY" default:"30s"`
}

type RateLimitConfig struct {
	CouponWindow time.Duration `envconfig:"ESTORE_RATE_LIMIT_COUPON_WINDOW" default:"1m"`
	CouponLimit  int           `envconfig:"ESTORE_RATE_LIMIT_COUPON_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ESTORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ESTORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookReplayTTL     time.Duration `envconfig:"ESTORE_EVENTING_WEBHOOK_REPLAY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ESTORE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ESTORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ESTORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"ESTORE_PUBSUB_DOMAIN_TOPIC" required:"true"`
	ShippingSubscription     string `envconfig:"ESTORE_PUBSUB_SHIPPING_SUBSCRIPTION" default:"estore-shipping"`
	NotificationSubscription string `envconfig:"ESTORE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"estore-notifications"`
	AnalyticsSubscription    string `envconfig:"ESTORE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"estore-analytics"`
	MaxOutstanding           int    `envconfig:"ESTORE_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type BigQueryConfig struct {
	Dataset        string        `envconfig:"ESTORE_BIGQUERY_DATASET" default:"estore"`
	CommerceTable  string        `envconfig:"ESTORE_BIGQUERY_COMMERCE_TABLE" default:"commerce_events"`
	BatchSize      int           `envconfig:"ESTORE_BIGQUERY_BATCH_SIZE" default:"1"`
	InsertAttempts int           `envconfig:"ESTORE_BIGQUERY_INSERT_ATTEMPTS" default:"3"`
	FlushInterval  time.Duration `envconfig:"ESTORE_BIGQUERY_FLUSH_INTERVAL" default:"5s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ESTORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ESTORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ESTORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"ESTORE_OUTBOX_RETENTION" default:"720h"`
}

// GatewayConfig bounds every outbound call to a payment, shipping or messaging provider.
type GatewayConfig struct {
	Timeout      time.Duration `envconfig:"ESTORE_GATEWAY_TIMEOUT" default:"10s"`
	MaxRetries   uint64        `envconfig:"ESTORE_GATEWAY_MAX_RETRIES" default:"2"`
	RetryBackoff time.Duration `envconfig:"ESTORE_GATEWAY_RETRY_BACKOFF" default:"200ms"`
	MaxBackoff   time.Duration `envconfig:"ESTORE_GATEWAY_MAX_BACKOFF" default:"2s"`
}

type PhonePeConfig struct {
	BaseURL         string `envconfig:"ESTORE_PHONEPE_BASE_URL" default:"https://api-preprod.phonepe.com/apis/pg-sandbox"`
	AuthURL         string `envconfig:"ESTORE_PHONEPE_AUTH_URL" default:"https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"`
	ClientID        string `envconfig:"ESTORE_PHONEPE_CLIENT_ID"`
	ClientSecret    string `envconfig:"ESTORE_PHONEPE_CLIENT_SECRET"`
	ClientVersion   string `envconfig:"ESTORE_PHONEPE_CLIENT_VERSION" default:"1"`
	WebhookUsername string `envconfig:"ESTORE_PHONEPE_WEBHOOK_USERNAME"`
	WebhookPassword string `envconfig:"ESTORE_PHONEPE_WEBHOOK_PASSWORD"`
}

type CashfreeConfig struct {
	BaseURL    string `envconfig:"ESTORE_CASHFREE_BASE_URL" default:"https://sandbox.cashfree.com/pg"`
	AppID      string `envconfig:"ESTORE_CASHFREE_APP_ID"`
	SecretKey  string `envconfig:"ESTORE_CASHFREE_SECRET_KEY"`
	APIVersion string `envconfig:"ESTORE_CASHFREE_API_VERSION" default:"2023-08-01"`
	NotifyURL  string `envconfig:"ESTORE_CASHFREE_NOTIFY_URL"`
}

type PaymentsConfig struct {
	DefaultGateway     string        `envconfig:"ESTORE_PAYMENTS_DEFAULT_GATEWAY" default:"phonepe"`
	WebRedirectURL     string        `envconfig:"ESTORE_PAYMENTS_WEB_REDIRECT_URL" default:"http://localhost:3000/payment/status"`
	MobileRedirectURL  string        `envconfig:"ESTORE_PAYMENTS_MOBILE_REDIRECT_URL" default:"estore://payment/status"`
	CacheTTL           time.Duration `envconfig:"ESTORE_PAYMENTS_CACHE_TTL" default:"5m"`
	StaleAfter         time.Duration `envconfig:"ESTORE_PAYMENTS_STALE_AFTER" default:"15m"`
	ReconcileBatchSize int           `envconfig:"ESTORE_PAYMENTS_RECONCILE_BATCH_SIZE" default:"100"`
}

type ShippingConfig struct {
	BaseURL        string `envconfig:"ESTORE_SHIPPING_BASE_URL" default:"https://apiv2.shiprocket.in/v1/external"`
	Email          string `envconfig:"ESTORE_SHIPPING_EMAIL"`
	Password       string `envconfig:"ESTORE_SHIPPING_PASSWORD"`
	PickupLocation string `envconfig:"ESTORE_SHIPPING_PICKUP_LOCATION" default:"Primary"`
}

// CronConfig sets the scheduler tick and how often each job becomes due.
type CronConfig struct {
	Tick           time.Duration `envconfig:"ESTORE_CRON_TICK" default:"1m"`
	LockTTL        time.Duration `envconfig:"ESTORE_CRON_LOCK_TTL" default:"10m"`
	ReconcileEvery time.Duration `envconfig:"ESTORE_CRON_RECONCILE_EVERY" default:"5m"`
	RetentionEvery time.Duration `envconfig:"ESTORE_CRON_RETENTION_EVERY" default:"24h"`
}

type NotifyConfig struct {
	BaseURL string `envconfig:"ESTORE_NOTIFY_BASE_URL"`
	APIKey  string `envconfig:"ESTORE_NOTIFY_API_KEY"`
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
