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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Channel      ChannelConfig
	Payout       PayoutConfig
	Sync         SyncConfig
	Metrics      MetricsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKFINDERZ_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"PACKFINDERZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKFINDERZ_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"PACKFINDERZ_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PACKFINDERZ_SERVICE_KIND" default:"channel-sync"`
}

type DBConfig struct {
	DSN    string `envconfig:"PACKFINDERZ_DB_DSN"`
	Driver string `envconfig:"PACKFINDERZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PACKFINDERZ_DB_HOST"`
	LegacyPort     int    `envconfig:"PACKFINDERZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PACKFINDERZ_DB_USER"`
	LegacyPassword string `envconfig:"PACKFINDERZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"PACKFINDERZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"PACKFINDERZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PACKFINDERZ_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"PACKFINDERZ_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKFINDERZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the local sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKFINDERZ_REDIS_URL"`
	Address      string        `envconfig:"PACKFINDERZ_REDIS_ADDR"`
	Password     string        `envconfig:"PACKFINDERZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PACKFINDERZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PACKFINDERZ_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"PACKFINDERZ_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKFINDERZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKFINDERZ_REDIS_WRITE_TIMEOUT" default:"5s"`
	LockTTL      time.Duration `envconfig:"PACKFINDERZ_REDIS_JOB_LOCK_TTL" default:"30m"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type ChannelConfig struct {
	BaseURL            string        `envconfig:"PACKFINDERZ_CHANNEL_BASE_URL" required:"true"`
	TokenURL           string        `envconfig:"PACKFINDERZ_CHANNEL_TOKEN_URL"`
	ClientID           string        `envconfig:"PACKFINDERZ_CHANNEL_CLIENT_ID" required:"true"`
	ClientSecret       string        `envconfig:"PACKFINDERZ_CHANNEL_CLIENT_SECRET" required:"true"`
	ServiceName        string        `envconfig:"PACKFINDERZ_CHANNEL_SERVICE_NAME" default:"packfinderz-channel-sync"`
	RequestTimeout     time.Duration `envconfig:"PACKFINDERZ_CHANNEL_REQUEST_TIMEOUT" default:"10s"`
	TokenRefreshMargin time.Duration `envconfig:"PACKFINDERZ_CHANNEL_TOKEN_REFRESH_MARGIN" default:"60s"`
	RateLimitPerSecond float64       `envconfig:"PACKFINDERZ_CHANNEL_RATE_LIMIT_PER_SECOND" default:"5"`
	RateLimitBurst     int           `envconfig:"PACKFINDERZ_CHANNEL_RATE_LIMIT_BURST" default:"5"`
	PageLimit          int           `envconfig:"PACKFINDERZ_CHANNEL_PAGE_LIMIT" default:"100"`
	SKUPrefix          string        `envconfig:"PACKFINDERZ_CHANNEL_SKU_PREFIX" default:"PFZ-"`
}

// ResolvedTokenURL falls back to the conventional token path under the base URL.
func (c ChannelConfig) ResolvedTokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/v3/token"
}

type PayoutConfig struct {
	HoldDays              int    `envconfig:"PACKFINDERZ_PAYOUT_HOLD_DAYS" default:"14"`
	DefaultCommissionRate string `envconfig:"PACKFINDERZ_PAYOUT_DEFAULT_COMMISSION_RATE" default:"0.15"`
}

// HoldPeriod returns the payout hold as a duration.
func (p PayoutConfig) HoldPeriod() time.Duration {
	return time.Duration(p.HoldDays) * 24 * time.Hour
}

// CommissionRate parses the configured default commission rate.
func (p PayoutConfig) CommissionRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.DefaultCommissionRate))
	if err != nil {
		return decimal.RequireFromString("0.15")
	}
	return rate
}

func (p PayoutConfig) validate() error {
	if p.HoldDays < 0 {
		return fmt.Errorf("payout hold days must be >= 0")
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(p.DefaultCommissionRate))
	if err != nil {
		return fmt.Errorf("invalid default commission rate %q: %w", p.DefaultCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("default commission rate must be in [0, 1)")
	}
	return nil
}

type SyncConfig struct {
	DefaultLookback    time.Duration `envconfig:"PACKFINDERZ_SYNC_DEFAULT_LOOKBACK" default:"24h"`
	MaxLookback        time.Duration `envconfig:"PACKFINDERZ_SYNC_MAX_LOOKBACK" default:"72h"`
	WindowOverlap      time.Duration `envconfig:"PACKFINDERZ_SYNC_WINDOW_OVERLAP" default:"30m"`
	InventoryBatchSize int           `envconfig:"PACKFINDERZ_SYNC_INVENTORY_BATCH_SIZE" default:"100"`
	TrackingBatchLimit int           `envconfig:"PACKFINDERZ_SYNC_TRACKING_BATCH_LIMIT" default:"500"`
}

func (s SyncConfig) validate() error {
	if s.InventoryBatchSize <= 0 {
		return fmt.Errorf("inventory batch size must be positive")
	}
	if s.MaxLookback > 0 && s.DefaultLookback > s.MaxLookback {
		return fmt.Errorf("default lookback %s exceeds max lookback %s", s.DefaultLookback, s.MaxLookback)
	}
	return nil
}

type MetricsConfig struct {
	PushgatewayURL string `envconfig:"PACKFINDERZ_METRICS_PUSHGATEWAY_URL"`
	JobLabel       string `envconfig:"PACKFINDERZ_METRICS_JOB_LABEL" default:"channel_sync"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"PACKFINDERZ_AUTO_MIGRATE" default:"false"`
	SkipAcknowledge bool `envconfig:"PACKFINDERZ_FEATURE_SKIP_ACKNOWLEDGE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
