package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"main/pkg/conn"
)

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Auth      AuthConfig      `yaml:"auth"`
	Probe     ProbeConfig     `yaml:"probe"`
	Expiry    ExpiryConfig    `yaml:"expiry"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Risk      RiskConfig      `yaml:"risk"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Profiling ProfilingConfig `yaml:"profiling"`
	Bus       BusConfig       `yaml:"bus"`
}

// BrokerConfig identifies the broker account and API endpoint.
type BrokerConfig struct {
	Name      string `yaml:"name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
}

// AuthConfig controls login behavior and the daily session expiry.
type AuthConfig struct {
	AutoLogin       *bool  `yaml:"auto_login"`
	ExpiryAt        string `yaml:"expiry_at"`
	Timezone        string `yaml:"timezone"`
	ExchangeTimeout string `yaml:"exchange_timeout"`
}

// ProbeConfig controls the periodic session health probe.
type ProbeConfig struct {
	Interval         string `yaml:"interval"`
	Timeout          string `yaml:"timeout"`
	FailureThreshold int    `yaml:"failure_threshold" validate:"omitempty,min=1"`
}

// ExpiryConfig controls the expiry countdown checks.
type ExpiryConfig struct {
	CheckInterval string `yaml:"check_interval"`
	WarningWindow string `yaml:"warning_window"`
	ActionWindow  string `yaml:"action_window"`
}

// ReconcileConfig controls periodic position reconciliation.
type ReconcileConfig struct {
	Interval       string  `yaml:"interval"`
	DriftTolerance float64 `yaml:"drift_tolerance" validate:"omitempty,gt=0,lt=1"`
	MarketOpen     string  `yaml:"market_open"`
	MarketClose    string  `yaml:"market_close"`
}

// RiskConfig sets the automated risk limits.
type RiskConfig struct {
	DailyLossLimit float64 `yaml:"daily_loss_limit" validate:"omitempty,gt=0"`
}

// PostgresConfig describes the durable store connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig describes the fast cache connection.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// MetricsConfig describes the metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ProfilingConfig describes optional continuous profiling.
type ProfilingConfig struct {
	ServerAddress string            `yaml:"server_address"`
	Tags          map[string]string `yaml:"tags"`
}

// BusConfig sizes the in-memory event queue.
type BusConfig struct {
	QueueSize int `yaml:"queue_size" validate:"omitempty,min=1"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Broker    BrokerSpec
	Auth      AuthSpec
	Probe     ProbeSpec
	Expiry    ExpirySpec
	Reconcile ReconcileSpec
	Risk      RiskSpec
	Postgres  conn.PostgresOption
	Redis     conn.RedisOption
	Metrics   MetricsSpec
	Profiling ProfilingSpec
	Bus       BusSpec
}

// BrokerSpec is the resolved broker endpoint definition.
type BrokerSpec struct {
	Name      string
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// AuthSpec is the resolved login policy.
type AuthSpec struct {
	AutoLogin       bool
	ExpiryHour      int
	ExpiryMinute    int
	Location        *time.Location
	ExchangeTimeout time.Duration
}

// ProbeSpec is the resolved health probe policy.
type ProbeSpec struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

// ExpirySpec is the resolved expiry countdown policy.
type ExpirySpec struct {
	CheckInterval time.Duration
	WarningWindow time.Duration
	ActionWindow  time.Duration
}

// ReconcileSpec is the resolved reconciliation policy.
type ReconcileSpec struct {
	Interval       time.Duration
	DriftTolerance float64
	OpenHour       int
	OpenMinute     int
	CloseHour      int
	CloseMinute    int
	Location       *time.Location
}

// RiskSpec is the resolved risk limit set. A zero DailyLossLimit leaves
// the automatic kill switch trip disarmed.
type RiskSpec struct {
	DailyLossLimit decimal.Decimal
}

// MetricsSpec is the resolved metrics listener address.
type MetricsSpec struct {
	Addr string
}

// ProfilingSpec is the resolved profiling target.
type ProfilingSpec struct {
	ServerAddress string
	Tags          map[string]string
}

// BusSpec is the resolved queue sizing.
type BusSpec struct {
	QueueSize int
}

// Defaults resolves the configuration with every field unset, which
// yields local connections and conservative intervals.
func Defaults() (Loaded, error) {
	return resolve(FileConfig{})
}

// Load reads a YAML config file, validates it, and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if err := validator.New().Struct(&cfg); err != nil {
		return Loaded{}, fmt.Errorf("invalid config: %w", err)
	}

	broker, err := resolveBroker(cfg.Broker)
	if err != nil {
		return Loaded{}, err
	}
	auth, err := resolveAuth(cfg.Auth)
	if err != nil {
		return Loaded{}, err
	}
	probe, err := resolveProbe(cfg.Probe)
	if err != nil {
		return Loaded{}, err
	}
	expiry, err := resolveExpiry(cfg.Expiry)
	if err != nil {
		return Loaded{}, err
	}
	reconcile, err := resolveReconcile(cfg.Reconcile, auth.Location)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		Broker:    broker,
		Auth:      auth,
		Probe:     probe,
		Expiry:    expiry,
		Reconcile: reconcile,
		Risk:      RiskSpec{DailyLossLimit: decimal.NewFromFloat(cfg.Risk.DailyLossLimit)},
		Postgres: conn.PostgresOption{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		},
		Redis: conn.RedisOption{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		},
		Metrics:   MetricsSpec{Addr: cfg.Metrics.Addr},
		Profiling: ProfilingSpec{ServerAddress: cfg.Profiling.ServerAddress, Tags: cfg.Profiling.Tags},
		Bus:       BusSpec{QueueSize: cfg.Bus.QueueSize},
	}
	if loaded.Metrics.Addr == "" {
		loaded.Metrics.Addr = ":9090"
	}
	if loaded.Bus.QueueSize == 0 {
		loaded.Bus.QueueSize = 256
	}
	return loaded, nil
}

func resolveBroker(cfg BrokerConfig) (BrokerSpec, error) {
	timeout, err := resolveDuration(cfg.Timeout, 10*time.Second)
	if err != nil {
		return BrokerSpec{}, fmt.Errorf("broker timeout: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = "sim"
	}
	return BrokerSpec{
		Name:      name,
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   timeout,
	}, nil
}

func resolveAuth(cfg AuthConfig) (AuthSpec, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return AuthSpec{}, fmt.Errorf("auth timezone: %w", err)
		}
		loc = parsed
	}

	expiryAt := cfg.ExpiryAt
	if expiryAt == "" {
		expiryAt = "06:00"
	}
	hour, minute, err := parseClock(expiryAt)
	if err != nil {
		return AuthSpec{}, fmt.Errorf("auth expiry_at: %w", err)
	}

	timeout, err := resolveDuration(cfg.ExchangeTimeout, 15*time.Second)
	if err != nil {
		return AuthSpec{}, fmt.Errorf("auth exchange_timeout: %w", err)
	}

	autoLogin := true
	if cfg.AutoLogin != nil {
		autoLogin = *cfg.AutoLogin
	}

	return AuthSpec{
		AutoLogin:       autoLogin,
		ExpiryHour:      hour,
		ExpiryMinute:    minute,
		Location:        loc,
		ExchangeTimeout: timeout,
	}, nil
}

func resolveProbe(cfg ProbeConfig) (ProbeSpec, error) {
	interval, err := resolveDuration(cfg.Interval, 5*time.Minute)
	if err != nil {
		return ProbeSpec{}, fmt.Errorf("probe interval: %w", err)
	}
	timeout, err := resolveDuration(cfg.Timeout, 10*time.Second)
	if err != nil {
		return ProbeSpec{}, fmt.Errorf("probe timeout: %w", err)
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	return ProbeSpec{Interval: interval, Timeout: timeout, FailureThreshold: threshold}, nil
}

func resolveExpiry(cfg ExpiryConfig) (ExpirySpec, error) {
	check, err := resolveDuration(cfg.CheckInterval, time.Minute)
	if err != nil {
		return ExpirySpec{}, fmt.Errorf("expiry check_interval: %w", err)
	}
	warning, err := resolveDuration(cfg.WarningWindow, 30*time.Minute)
	if err != nil {
		return ExpirySpec{}, fmt.Errorf("expiry warning_window: %w", err)
	}
	action, err := resolveDuration(cfg.ActionWindow, 5*time.Minute)
	if err != nil {
		return ExpirySpec{}, fmt.Errorf("expiry action_window: %w", err)
	}
	if action > warning {
		return ExpirySpec{}, fmt.Errorf("expiry action_window %s exceeds warning_window %s", action, warning)
	}
	return ExpirySpec{CheckInterval: check, WarningWindow: warning, ActionWindow: action}, nil
}

func resolveReconcile(cfg ReconcileConfig, loc *time.Location) (ReconcileSpec, error) {
	interval, err := resolveDuration(cfg.Interval, 5*time.Minute)
	if err != nil {
		return ReconcileSpec{}, fmt.Errorf("reconcile interval: %w", err)
	}
	tolerance := cfg.DriftTolerance
	if tolerance == 0 {
		tolerance = 0.02
	}
	spec := ReconcileSpec{Interval: interval, DriftTolerance: tolerance, Location: loc}

	if cfg.MarketOpen == "" && cfg.MarketClose == "" {
		return spec, nil
	}
	if cfg.MarketOpen == "" || cfg.MarketClose == "" {
		return ReconcileSpec{}, fmt.Errorf("reconcile market_open and market_close must both be set")
	}
	spec.OpenHour, spec.OpenMinute, err = parseClock(cfg.MarketOpen)
	if err != nil {
		return ReconcileSpec{}, fmt.Errorf("reconcile market_open: %w", err)
	}
	spec.CloseHour, spec.CloseMinute, err = parseClock(cfg.MarketClose)
	if err != nil {
		return ReconcileSpec{}, fmt.Errorf("reconcile market_close: %w", err)
	}
	return spec, nil
}

func resolveDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be > 0, got %s", raw)
	}
	return d, nil
}

func parseClock(raw string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(raw, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock out of range: %q", raw)
	}
	return hour, minute, nil
}

// NextExpiry returns the upcoming daily expiry instant strictly after now.
// The same rule runs at login and in the countdown so both sides agree on
// which day's instant applies.
func (a AuthSpec) NextExpiry(now time.Time) time.Time {
	local := now.In(a.Location)
	expiry := time.Date(local.Year(), local.Month(), local.Day(), a.ExpiryHour, a.ExpiryMinute, 0, 0, a.Location)
	if !local.Before(expiry) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

// WithinMarketHours reports whether now falls inside the configured trading
// window. An unset window keeps scheduled reconciliation always eligible.
func (r ReconcileSpec) WithinMarketHours(now time.Time) bool {
	if r.OpenHour == 0 && r.OpenMinute == 0 && r.CloseHour == 0 && r.CloseMinute == 0 {
		return true
	}
	local := now.In(r.Location)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	openAt := time.Date(local.Year(), local.Month(), local.Day(), r.OpenHour, r.OpenMinute, 0, 0, r.Location)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(), r.CloseHour, r.CloseMinute, 0, 0, r.Location)
	return !local.Before(openAt) && local.Before(closeAt)
}
