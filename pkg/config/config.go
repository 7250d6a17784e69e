package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Locks        LockConfig
	RateLimit    RateLimitConfig
	Analytics    AnalyticsConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Locks.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Analytics.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMFRESH_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMFRESH_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FARMFRESH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMFRESH_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"FARMFRESH_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMFRESH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"FARMFRESH_DB_DSN"`

	LegacyHost     string `envconfig:"FARMFRESH_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMFRESH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMFRESH_DB_USER"`
	LegacyPassword string `envconfig:"FARMFRESH_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMFRESH_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMFRESH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMFRESH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMFRESH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMFRESH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMFRESH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FARMFRESH_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMFRESH_REDIS_URL"`
	Address      string        `envconfig:"FARMFRESH_REDIS_ADDR"`
	Password     string        `envconfig:"FARMFRESH_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMFRESH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMFRESH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMFRESH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMFRESH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMFRESH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMFRESH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMFRESH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMFRESH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMFRESH_JWT_EXPIRATION_MINUTES" default:"60"`

	// Leeway absorbs clock skew between the identity provider and this service.
	Leeway time.Duration `envconfig:"FARMFRESH_JWT_LEEWAY" default:"30s"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// LockConfig selects how per-user and per-order critical sections are serialized.
type LockConfig struct {
	Backend       string        `envconfig:"FARMFRESH_LOCK_BACKEND" default:"local"`
	TTL           time.Duration `envconfig:"FARMFRESH_LOCK_TTL" default:"30s"`
	RetryInterval time.Duration `envconfig:"FARMFRESH_LOCK_RETRY_INTERVAL" default:"25ms"`
	WaitTimeout   time.Duration `envconfig:"FARMFRESH_LOCK_WAIT_TIMEOUT" default:"5s"`
}

func (l LockConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Backend)) {
	case LockBackendLocal, LockBackendRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvLockBackend, LockBackendLocal, LockBackendRedis, l.Backend)
	}
}

// UsesRedis reports whether locks are coordinated through Redis.
func (l LockConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(l.Backend), LockBackendRedis)
}

type RateLimitConfig struct {
	CartWindow time.Duration `envconfig:"FARMFRESH_RATE_LIMIT_CART_WINDOW" default:"1m"`
	CartLimit  int           `envconfig:"FARMFRESH_RATE_LIMIT_CART_LIMIT" default:"120"`
}

type AnalyticsConfig struct {
	Timezone          string `envconfig:"FARMFRESH_ANALYTICS_TIMEZONE" default:"UTC"`
	LowStockThreshold int    `envconfig:"FARMFRESH_ANALYTICS_LOW_STOCK_THRESHOLD" default:"10"`
	DefaultWindowDays int    `envconfig:"FARMFRESH_ANALYTICS_DEFAULT_WINDOW_DAYS" default:"30"`
	MaxWindowDays     int    `envconfig:"FARMFRESH_ANALYTICS_MAX_WINDOW_DAYS" default:"365"`
	TopProductsLimit  int    `envconfig:"FARMFRESH_ANALYTICS_TOP_PRODUCTS_LIMIT" default:"10"`
}

// Location resolves the configured timezone used to bucket daily rollups.
func (a AnalyticsConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvAnalyticsTimezone, err)
	}
	return loc, nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FARMFRESH_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"FARMFRESH_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestKeyTTL  time.Duration `envconfig:"FARMFRESH_IDEMPOTENCY_KEY_TTL" default:"24h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"FARMFRESH_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMFRESH_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMFRESH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMFRESH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"FARMFRESH_PUBSUB_ORDERS_TOPIC" default:"ff-order-events"`
	OrdersSubscription string `envconfig:"FARMFRESH_PUBSUB_ORDERS_SUBSCRIPTION" default:"ff-order-events-analytics"`

	// AutoCreate creates a missing topic or subscription instead of failing
	// startup. Meant for dev and the emulator.
	AutoCreate        bool          `envconfig:"FARMFRESH_PUBSUB_AUTO_CREATE" default:"false"`
	AckDeadline       time.Duration `envconfig:"FARMFRESH_PUBSUB_ACK_DEADLINE" default:"30s"`
	MaxOutstanding    int           `envconfig:"FARMFRESH_PUBSUB_MAX_OUTSTANDING" default:"100"`
	ReceiveGoroutines int           `envconfig:"FARMFRESH_PUBSUB_RECEIVE_GOROUTINES" default:"2"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"FARMFRESH_BIGQUERY_DATASET" default:"farmfresh"`
	SalesFactsTable string `envconfig:"FARMFRESH_BIGQUERY_SALES_TABLE" default:"sales_facts"`
	BatchSize       int    `envconfig:"FARMFRESH_BIGQUERY_BATCH_SIZE" default:"1"`

	// AutoCreateTables lets the analytics worker create a missing sales facts
	// table (day-partitioned on occurred_at) instead of refusing to start.
	AutoCreateTables bool `envconfig:"FARMFRESH_BIGQUERY_AUTO_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMFRESH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMFRESH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMFRESH_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
