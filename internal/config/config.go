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

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ServiceJWTKey   string        `yaml:"service_jwt_key"` // HS256 secret for /api/v1 service tokens
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan cache TTL
}

type BillingConfig struct {
	Provider      string        `yaml:"provider"` // stripe | noop
	APIKey        string        `yaml:"api_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	BaseURL       string        `yaml:"base_url"` // override for sandbox/tests
	SuccessURL    string        `yaml:"success_url"`
	CancelURL     string        `yaml:"cancel_url"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Backoff       time.Duration `yaml:"backoff"`
}

type RefundConfig struct {
	Window time.Duration `yaml:"window"` // money-back window from period start
}

type EntitlementConfig struct {
	FreePlanSlug  string   `yaml:"free_plan_slug"`
	GraceFeatures []string `yaml:"grace_features"` // capabilities kept during past_due
}

type SweeperConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ClaimTimeout time.Duration `yaml:"claim_timeout"` // how old an unmarked claim must be
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Billing     BillingConfig     `yaml:"billing"`
	Refund      RefundConfig      `yaml:"refund"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Sweeper     SweeperConfig     `yaml:"sweeper"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads YAML from path and applies defaults. Secrets may also come
// from the environment (DATABASE_URL, BILLING_API_KEY, BILLING_WEBHOOK_SECRET)
// which wins over the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// env overrides
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("BILLING_API_KEY"); v != "" {
		cfg.Billing.APIKey = v
	}
	if v := os.Getenv("BILLING_WEBHOOK_SECRET"); v != "" {
		cfg.Billing.WebhookSecret = v
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Billing.Provider == "" {
		cfg.Billing.Provider = "stripe"
	}
	if cfg.Billing.CallTimeout <= 0 {
		cfg.Billing.CallTimeout = 15 * time.Second
	}
	if cfg.Billing.MaxAttempts <= 0 {
		cfg.Billing.MaxAttempts = 3
	}
	if cfg.Billing.Backoff <= 0 {
		cfg.Billing.Backoff = 500 * time.Millisecond
	}
	if cfg.Refund.Window <= 0 {
		cfg.Refund.Window = 30 * 24 * time.Hour
	}
	if cfg.Entitlement.FreePlanSlug == "" {
		cfg.Entitlement.FreePlanSlug = "starter"
	}
	if cfg.Sweeper.Interval <= 0 {
		cfg.Sweeper.Interval = time.Minute
	}
	if cfg.Sweeper.ClaimTimeout <= 0 {
		cfg.Sweeper.ClaimTimeout = 10 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Billing.Provider != "noop" && cfg.Billing.WebhookSecret == "" {
		return nil, errors.New("billing.webhook_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
