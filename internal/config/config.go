// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"` // per-order advisory lock TTL
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type AdminConfig struct {
	APISecret     string        `yaml:"api_secret"` // shared secret exchanged for a session token
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"` // true when the console is served over TLS
}

type GatewayConfig struct {
	Name          string        `yaml:"name"` // provider label stored on mappings
	BaseURL       string        `yaml:"base_url"`
	KeyID         string        `yaml:"key_id"`
	KeySecret     string        `yaml:"key_secret"`
	WebhookSecret string        `yaml:"webhook_secret"` // HMAC secret over the raw body
	Sandbox       bool          `yaml:"sandbox"`
	Timeout       time.Duration `yaml:"timeout"` // bound on every gateway call
}

type PaymentConfig struct {
	DefaultMaxRetries int           `yaml:"default_max_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	LinkTTL           time.Duration `yaml:"link_ttl"` // fallback when the gateway returns no expiry
	FourEyes          bool          `yaml:"four_eyes"`
	NotifyURL         string        `yaml:"notify_url"` // ordering-system status callback; empty = log only
}

type ReconcileConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Staleness       time.Duration `yaml:"staleness"`
	MaxSyncAttempts int           `yaml:"max_sync_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BatchSize       int           `yaml:"batch_size"`
}

type WorkerConfig struct {
	RetryWorkers   int           `yaml:"retry_workers"`
	RetryInterval  time.Duration `yaml:"retry_interval"`  // how often the retry scanner runs
	ExpiryInterval time.Duration `yaml:"expiry_interval"` // how often the expiry sweep runs
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Payment   PaymentConfig   `yaml:"payment"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Worker    WorkerConfig    `yaml:"worker"`
	Currency  map[string]int  `yaml:"currency_minor_units"` // ISO code -> decimal places

	Runtime RuntimeConfig `yaml:"-"`
}

// MinorUnits returns the decimal precision for a currency, or false when the
// currency is not configured. Splits and refunds reject unknown currencies.
func (c *Config) MinorUnits(currency string) (int, bool) {
	n, ok := c.Currency[currency]
	return n, ok
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Gateway.WebhookSecret == "" && !dev {
		return nil, errors.New("gateway.webhook_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = 15 * time.Second
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Admin.SessionTTL <= 0 {
		c.Admin.SessionTTL = 30 * time.Minute
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 10 * time.Second
	}
	if c.Payment.DefaultMaxRetries <= 0 {
		c.Payment.DefaultMaxRetries = 3
	}
	if c.Payment.RetryBaseDelay <= 0 {
		c.Payment.RetryBaseDelay = 30 * time.Second
	}
	if c.Payment.RetryMaxDelay <= 0 {
		c.Payment.RetryMaxDelay = 15 * time.Minute
	}
	if c.Payment.LinkTTL <= 0 {
		c.Payment.LinkTTL = 30 * time.Minute
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = time.Minute
	}
	if c.Reconcile.Staleness <= 0 {
		c.Reconcile.Staleness = 10 * time.Minute
	}
	if c.Reconcile.MaxSyncAttempts <= 0 {
		c.Reconcile.MaxSyncAttempts = 8
	}
	if c.Reconcile.BackoffBase <= 0 {
		c.Reconcile.BackoffBase = time.Minute
	}
	if c.Reconcile.BatchSize <= 0 {
		c.Reconcile.BatchSize = 200
	}
	if c.Worker.RetryWorkers <= 0 {
		c.Worker.RetryWorkers = 4
	}
	if c.Worker.RetryInterval <= 0 {
		c.Worker.RetryInterval = 30 * time.Second
	}
	if c.Worker.ExpiryInterval <= 0 {
		c.Worker.ExpiryInterval = time.Minute
	}
	if c.Gateway.Name == "" {
		c.Gateway.Name = "restpay"
	}
	if len(c.Currency) == 0 {
		c.Currency = map[string]int{"INR": 2, "USD": 2, "EUR": 2, "JPY": 0, "KWD": 3}
	}
}
