package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Exports    ExportConfig     `yaml:"exports"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type GatewayConfig struct {
	BaseURL        string      `yaml:"base_url"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	Retry          RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
}

type RealtimeConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLSeconds int    `yaml:"token_ttl_seconds"`
	InstanceID      string `yaml:"instance_id"`
}

type PricingConfig struct {
	Currency string `yaml:"currency"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional, environment variables may come from the host.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Realtime.JWTSecret == "" {
		return errors.New("realtime jwt secret is required")
	}
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway base url is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 10
	}
	if c.Gateway.Retry.MaxRetries == 0 {
		c.Gateway.Retry.MaxRetries = 3
	}
	if c.Gateway.Retry.InitialDelayMS == 0 {
		c.Gateway.Retry.InitialDelayMS = 500
	}
	if c.Gateway.Retry.MaxDelayMS == 0 {
		c.Gateway.Retry.MaxDelayMS = 5000
	}
	if c.Gateway.Retry.BackoffFactor == 0 {
		c.Gateway.Retry.BackoffFactor = 2.0
	}

	if c.Realtime.TokenTTLSeconds == 0 {
		c.Realtime.TokenTTLSeconds = 300
	}
	if c.Realtime.InstanceID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "mesto"
		}
		c.Realtime.InstanceID = hostname
	}

	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "USD"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// GatewayTimeout returns the configured HTTP timeout as a duration.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// TokenTTL returns the realtime admission token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Realtime.TokenTTLSeconds) * time.Second
}

func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMS) * time.Millisecond
}

func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}
