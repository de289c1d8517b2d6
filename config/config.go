package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	Env            string        `yaml:"env"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // websocket origins; empty allows any
}

// DatabaseConfig is optional; with an empty DSN checkout history is not kept.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// JWTConfig verifies the storefront's access tokens. The tokens are issued
// by the ticketing API, so the secret must match its signing key.
type JWTConfig struct {
	AccessSecret string `yaml:"access_secret"`
	Issuer       string `yaml:"issuer"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type RateLimitConfig struct {
	SubmitPerMinute int `yaml:"submit_per_minute"`
	Burst           int `yaml:"burst"`
}

// GatewayConfig locates the ticketing API's payment endpoints. BaseURL
// "stub" swaps in an in-process gateway that always succeeds.
type GatewayConfig struct {
	BaseURL      string        `yaml:"base_url"`
	InitiatePath string        `yaml:"initiate_path"`
	StatusPath   string        `yaml:"status_path"`
	StatusParam  string        `yaml:"status_param"`
	Timeout      time.Duration `yaml:"timeout"`
	StubPolls    int           `yaml:"stub_polls"`
}

type CheckoutConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxPollFailures int           `yaml:"max_poll_failures"`
	HistoryLimit    int           `yaml:"history_limit"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8099",
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 40 * time.Second,
		},
		Database: DatabaseConfig{
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: "change-me-in-production",
			Issuer:       "tiketi",
		},
		Log: LogConfig{
			Level:   "info",
			Service: "tiketi-checkout",
		},
		RateLimit: RateLimitConfig{
			SubmitPerMinute: 10,
			Burst:           3,
		},
		Gateway: GatewayConfig{
			BaseURL:      "http://localhost:4000",
			InitiatePath: "/api/payments/initiate",
			StatusPath:   "/api/payments/status",
			StatusParam:  "checkoutRequestId",
			Timeout:      30 * time.Second,
			StubPolls:    3,
		},
		Checkout: CheckoutConfig{
			PollInterval:    3 * time.Second,
			Timeout:         2 * time.Minute,
			MaxPollFailures: 5,
			HistoryLimit:    20,
		},
	}
}

// Load applies, in order: defaults, the YAML file at path (skipped when
// path is empty), then TIKETI_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("config: server.port is required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("config: gateway.base_url is required")
	}
	if c.Checkout.PollInterval <= 0 || c.Checkout.Timeout <= 0 {
		return fmt.Errorf("config: checkout.poll_interval and checkout.timeout must be positive")
	}
	if c.Checkout.PollInterval >= c.Checkout.Timeout {
		return fmt.Errorf("config: checkout.poll_interval must be shorter than checkout.timeout")
	}
	if c.Checkout.MaxPollFailures < 1 {
		return fmt.Errorf("config: checkout.max_poll_failures must be at least 1")
	}
	return nil
}

func applyEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("TIKETI_PORT", &c.Server.Port)
	str("TIKETI_ENV", &c.Server.Env)
	str("TIKETI_DATABASE_DSN", &c.Database.DSN)
	str("TIKETI_JWT_SECRET", &c.JWT.AccessSecret)
	str("TIKETI_JWT_ISSUER", &c.JWT.Issuer)
	str("TIKETI_LOG_LEVEL", &c.Log.Level)
	str("TIKETI_GATEWAY_URL", &c.Gateway.BaseURL)

	durations := map[string]*time.Duration{
		"TIKETI_GATEWAY_TIMEOUT":        &c.Gateway.Timeout,
		"TIKETI_CHECKOUT_POLL_INTERVAL": &c.Checkout.PollInterval,
		"TIKETI_CHECKOUT_TIMEOUT":       &c.Checkout.Timeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = d
		}
	}
	if v := os.Getenv("TIKETI_CHECKOUT_MAX_POLL_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: TIKETI_CHECKOUT_MAX_POLL_FAILURES: %w", err)
		}
		c.Checkout.MaxPollFailures = n
	}
	return nil
}
