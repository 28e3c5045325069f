package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Workflow  WorkflowConfig
	Jobs      JobsConfig
	Risk      RiskConfig
	Saga      SagaConfig
	Provider  ProviderConfig
	Storage   StorageConfig
	Shipping  ShippingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite; sqlite uses DBName as the file path
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// An empty host selects the in-memory idempotency store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
	RequestTimeout   time.Duration // zero disables the per-request deadline

	// Rate limiting applies to order processing only
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// WorkflowConfig holds workflow executor settings
type WorkflowConfig struct {
	StepTimeout  time.Duration // Used when a step config sets no timeout
	SeedDefaults bool          // Seed default definitions when none exist
}

// JobsConfig holds the job worker pool settings
type JobsConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// RuleWeightsConfig holds points per rule signal
type RuleWeightsConfig struct {
	RapidSuccession    int
	HighVelocity       int
	AmountSpike        int
	AmountDeviation    int
	UnrecognizedDevice int
	OffHours           int
}

// HeuristicWeightsConfig holds points per heuristic feature
type HeuristicWeightsConfig struct {
	AmountRatio    float64
	NewDevice      float64
	NewAccount     float64
	FailedPayments float64
	HourDeviation  float64
}

// RegionWeightsConfig holds points per regional signal
type RegionWeightsConfig struct {
	UnverifiedRecipient    int
	AboveMobileMoneyNorm   int
	IncompleteVerification int
	CrossBorder            int
	HighRiskLocation       int
}

// RiskConfig holds fraud scoring settings
type RiskConfig struct {
	BlockThreshold    int
	NewAccountAge     time.Duration
	FailedPaymentsCap int
	Rule              RuleWeightsConfig
	Heuristic         HeuristicWeightsConfig
	Region            RegionWeightsConfig
	MobileMoneyNorms  map[string]decimal.Decimal // provider -> amount norm
	HighRiskLocations []string
}

// SagaConfig holds wallet transfer settings
type SagaConfig struct {
	BaseFee                decimal.Decimal
	FeePercentage          decimal.Decimal
	CrossProviderSurcharge decimal.Decimal
	MaxFee                 decimal.Decimal
	ProviderLimits         map[string]decimal.Decimal // provider -> single-transaction ceiling
	CompensationAttempts   int
	CompensationBackoff    time.Duration
	IdempotencyTTL         time.Duration
}

// ProviderConfig holds provider client settings
type ProviderConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CallTimeout     time.Duration
	CardProvider    string
	NotifyProvider  string
	AnalyticsTarget string
	OpeningBalance  decimal.Decimal // opening balance of every account in the fake client
}

// StorageConfig holds S3-compatible storage settings for the execution archive
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// CourierConfig describes one courier
type CourierConfig struct {
	Name     string         `mapstructure:"name"`
	ETADays  int            `mapstructure:"eta_days"`
	BaseCost string         `mapstructure:"base_cost"`
	Coverage map[string]int `mapstructure:"coverage"`
}

// ShippingConfig holds courier selection settings
type ShippingConfig struct {
	DefaultPolicy string
	Couriers      []CourierConfig
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with FULFILLMENT_ prefix (e.g., FULFILLMENT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("FULFILLMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds the configuration from an initialised viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),

			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Workflow: WorkflowConfig{
			StepTimeout:  v.GetDuration("workflow.step_timeout"),
			SeedDefaults: !v.IsSet("workflow.seed_defaults") || v.GetBool("workflow.seed_defaults"),
		},
		Jobs: JobsConfig{
			Workers:       v.GetInt("jobs.workers"),
			QueueSize:     v.GetInt("jobs.queue_size"),
			JobTimeout:    v.GetDuration("jobs.job_timeout"),
			RetryAttempts: v.GetInt("jobs.retry_attempts"),
			RetryDelay:    v.GetDuration("jobs.retry_delay"),
		},
		Risk: RiskConfig{
			BlockThreshold:    v.GetInt("risk.block_threshold"),
			NewAccountAge:     v.GetDuration("risk.new_account_age"),
			FailedPaymentsCap: v.GetInt("risk.failed_payments_cap"),
			Rule: RuleWeightsConfig{
				RapidSuccession:    v.GetInt("risk.rule.rapid_succession"),
				HighVelocity:       v.GetInt("risk.rule.high_velocity"),
				AmountSpike:        v.GetInt("risk.rule.amount_spike"),
				AmountDeviation:    v.GetInt("risk.rule.amount_deviation"),
				UnrecognizedDevice: v.GetInt("risk.rule.unrecognized_device"),
				OffHours:           v.GetInt("risk.rule.off_hours"),
			},
			Heuristic: HeuristicWeightsConfig{
				AmountRatio:    v.GetFloat64("risk.heuristic.amount_ratio"),
				NewDevice:      v.GetFloat64("risk.heuristic.new_device"),
				NewAccount:     v.GetFloat64("risk.heuristic.new_account"),
				FailedPayments: v.GetFloat64("risk.heuristic.failed_payments"),
				HourDeviation:  v.GetFloat64("risk.heuristic.hour_deviation"),
			},
			Region: RegionWeightsConfig{
				UnverifiedRecipient:    v.GetInt("risk.region.unverified_recipient"),
				AboveMobileMoneyNorm:   v.GetInt("risk.region.above_mobile_money_norm"),
				IncompleteVerification: v.GetInt("risk.region.incomplete_identity_verification"),
				CrossBorder:            v.GetInt("risk.region.cross_border"),
				HighRiskLocation:       v.GetInt("risk.region.high_risk_location"),
			},
			HighRiskLocations: v.GetStringSlice("risk.high_risk_locations"),
		},
		Saga: SagaConfig{
			CompensationAttempts: v.GetInt("saga.compensation_attempts"),
			CompensationBackoff:  v.GetDuration("saga.compensation_backoff"),
			IdempotencyTTL:       v.GetDuration("saga.idempotency_ttl"),
		},
		Provider: ProviderConfig{
			MaxAttempts:     v.GetInt("provider.max_attempts"),
			InitialInterval: v.GetDuration("provider.initial_interval"),
			MaxInterval:     v.GetDuration("provider.max_interval"),
			CallTimeout:     v.GetDuration("provider.call_timeout"),
			CardProvider:    v.GetString("provider.card_provider"),
			NotifyProvider:  v.GetString("provider.notify_provider"),
			AnalyticsTarget: v.GetString("provider.analytics_target"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKeyID:       v.GetString("storage.access_key_id"),
			SecretAccessKey:   v.GetString("storage.secret_access_key"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Shipping: ShippingConfig{
			DefaultPolicy: v.GetString("shipping.default_policy"),
		},
	}

	var err error
	if cfg.Risk.MobileMoneyNorms, err = decimalMap(v, "risk.mobile_money_norms"); err != nil {
		return nil, err
	}
	if cfg.Saga.ProviderLimits, err = decimalMap(v, "saga.provider_limits"); err != nil {
		return nil, err
	}
	decimals := []struct {
		key    string
		target *decimal.Decimal
	}{
		{"saga.base_fee", &cfg.Saga.BaseFee},
		{"saga.fee_percentage", &cfg.Saga.FeePercentage},
		{"saga.cross_provider_surcharge", &cfg.Saga.CrossProviderSurcharge},
		{"saga.max_fee", &cfg.Saga.MaxFee},
		{"provider.opening_balance", &cfg.Provider.OpeningBalance},
	}
	for _, d := range decimals {
		if *d.target, err = decimalValue(v, d.key); err != nil {
			return nil, err
		}
	}
	if err := v.UnmarshalKey("shipping.couriers", &cfg.Shipping.Couriers); err != nil {
		return nil, fmt.Errorf("shipping.couriers: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decimalValue(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, raw, err)
	}
	return d, nil
}

func decimalMap(v *viper.Viper, key string) (map[string]decimal.Decimal, error) {
	raw := v.GetStringMapString(key)
	out := make(map[string]decimal.Decimal, len(raw))
	for k, s := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: invalid decimal %q: %w", key, k, s, err)
		}
		out[k] = d
	}
	return out, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "fulfillment"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "fulfillment"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "fulfillment"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.Workflow.StepTimeout == 0 {
		cfg.Workflow.StepTimeout = 10 * time.Second
	}
	if cfg.Jobs.Workers == 0 {
		cfg.Jobs.Workers = 4
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 256
	}
	if cfg.Jobs.JobTimeout == 0 {
		cfg.Jobs.JobTimeout = 2 * time.Minute
	}
	if cfg.Jobs.RetryAttempts == 0 {
		cfg.Jobs.RetryAttempts = 3
	}
	if cfg.Jobs.RetryDelay == 0 {
		cfg.Jobs.RetryDelay = 5 * time.Second
	}

	applyRiskDefaults(&cfg.Risk)

	if cfg.Saga.BaseFee.IsZero() && cfg.Saga.FeePercentage.IsZero() && cfg.Saga.MaxFee.IsZero() {
		cfg.Saga.BaseFee = decimal.RequireFromString("0.50")
		cfg.Saga.FeePercentage = decimal.RequireFromString("0.01")
		cfg.Saga.CrossProviderSurcharge = decimal.RequireFromString("1.00")
		cfg.Saga.MaxFee = decimal.RequireFromString("50.00")
	}
	if len(cfg.Saga.ProviderLimits) == 0 {
		cfg.Saga.ProviderLimits = map[string]decimal.Decimal{
			"mpesa":        decimal.NewFromInt(150000),
			"airtel_money": decimal.NewFromInt(100000),
			"mtn_momo":     decimal.NewFromInt(100000),
		}
	}
	if cfg.Saga.CompensationAttempts == 0 {
		cfg.Saga.CompensationAttempts = 5
	}
	if cfg.Saga.CompensationBackoff == 0 {
		cfg.Saga.CompensationBackoff = 200 * time.Millisecond
	}
	if cfg.Saga.IdempotencyTTL == 0 {
		cfg.Saga.IdempotencyTTL = 7 * 24 * time.Hour
	}

	if cfg.Provider.MaxAttempts == 0 {
		cfg.Provider.MaxAttempts = 3
	}
	if cfg.Provider.InitialInterval == 0 {
		cfg.Provider.InitialInterval = 100 * time.Millisecond
	}
	if cfg.Provider.MaxInterval == 0 {
		cfg.Provider.MaxInterval = 2 * time.Second
	}
	if cfg.Provider.CallTimeout == 0 {
		cfg.Provider.CallTimeout = 5 * time.Second
	}
	if cfg.Provider.CardProvider == "" {
		cfg.Provider.CardProvider = "card_gateway"
	}
	if cfg.Provider.NotifyProvider == "" {
		cfg.Provider.NotifyProvider = "notifications"
	}
	if cfg.Provider.AnalyticsTarget == "" {
		cfg.Provider.AnalyticsTarget = "analytics"
	}
	if cfg.Provider.OpeningBalance.IsZero() {
		cfg.Provider.OpeningBalance = decimal.NewFromInt(1000000)
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "fulfillment-executions"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}

	if cfg.Shipping.DefaultPolicy == "" {
		cfg.Shipping.DefaultPolicy = "best_coverage"
	}
	if len(cfg.Shipping.Couriers) == 0 {
		cfg.Shipping.Couriers = []CourierConfig{
			{Name: "sendy", ETADays: 1, BaseCost: "350", Coverage: map[string]int{"nairobi": 95, "mombasa": 70, "kisumu": 60}},
			{Name: "g4s", ETADays: 2, BaseCost: "250", Coverage: map[string]int{"nairobi": 85, "mombasa": 85, "kisumu": 80, "eldoret": 75}},
			{Name: "posta", ETADays: 4, BaseCost: "150", Coverage: map[string]int{"nairobi": 70, "mombasa": 70, "kisumu": 70, "eldoret": 70, "nakuru": 70}},
		}
	}
}

func applyRiskDefaults(r *RiskConfig) {
	if r.BlockThreshold == 0 {
		r.BlockThreshold = 70
	}
	if r.NewAccountAge == 0 {
		r.NewAccountAge = 30 * 24 * time.Hour
	}
	if r.FailedPaymentsCap == 0 {
		r.FailedPaymentsCap = 3
	}
	if r.Rule == (RuleWeightsConfig{}) {
		r.Rule = RuleWeightsConfig{
			RapidSuccession:    40,
			HighVelocity:       20,
			AmountSpike:        35,
			AmountDeviation:    20,
			UnrecognizedDevice: 25,
			OffHours:           10,
		}
	}
	if r.Heuristic == (HeuristicWeightsConfig{}) {
		r.Heuristic = HeuristicWeightsConfig{
			AmountRatio:    30,
			NewDevice:      20,
			NewAccount:     15,
			FailedPayments: 20,
			HourDeviation:  15,
		}
	}
	if r.Region == (RegionWeightsConfig{}) {
		r.Region = RegionWeightsConfig{
			UnverifiedRecipient:    30,
			AboveMobileMoneyNorm:   25,
			IncompleteVerification: 20,
			CrossBorder:            15,
			HighRiskLocation:       40,
		}
	}
	if len(r.MobileMoneyNorms) == 0 {
		r.MobileMoneyNorms = map[string]decimal.Decimal{
			"mpesa":        decimal.NewFromInt(70000),
			"airtel_money": decimal.NewFromInt(50000),
			"mtn_momo":     decimal.NewFromInt(50000),
		}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Risk.BlockThreshold < 0 || c.Risk.BlockThreshold > 100 {
		return fmt.Errorf("risk.block_threshold must be between 0 and 100, got %d", c.Risk.BlockThreshold)
	}
	if c.Workflow.StepTimeout < 0 {
		return fmt.Errorf("workflow.step_timeout cannot be negative")
	}
	if c.Saga.FeePercentage.IsNegative() || c.Saga.FeePercentage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("saga.fee_percentage must be in [0,1), got %s", c.Saga.FeePercentage)
	}
	for provider, limit := range c.Saga.ProviderLimits {
		if !limit.IsPositive() {
			return fmt.Errorf("saga.provider_limits.%s must be positive", provider)
		}
	}
	switch c.Shipping.DefaultPolicy {
	case "best_coverage", "fastest", "cheapest":
	default:
		return fmt.Errorf("shipping.default_policy %q is not one of best_coverage, fastest, cheapest", c.Shipping.DefaultPolicy)
	}
	for _, courier := range c.Shipping.Couriers {
		if courier.Name == "" {
			return fmt.Errorf("shipping.couriers: name is required")
		}
		if _, err := decimal.NewFromString(courier.BaseCost); err != nil {
			return fmt.Errorf("shipping.couriers.%s.base_cost: %w", courier.Name, err)
		}
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
