// Package config loads the client configuration from a YAML file with
// ACX_-prefixed environment overrides. Credentials are expected to come
// from the environment, not the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full client configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	API      APIConfig      `mapstructure:"api"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Patch    PatchConfig    `mapstructure:"patch"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name       string `mapstructure:"name"`
	LogLevel   string `mapstructure:"log_level"`
	PrettyLogs bool   `mapstructure:"pretty_logs"`
}

// APIConfig holds ACX API settings.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds OAuth2 client-credentials settings. ClientID and
// ClientSecret are normally supplied via ACX_AUTH_CLIENT_ID and
// ACX_AUTH_CLIENT_SECRET.
type AuthConfig struct {
	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
}

// DispatchConfig holds the concurrency cap for patch dispatch.
type DispatchConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// RetryConfig holds the retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Slots       int           `mapstructure:"slots"`
}

// RedisConfig holds the optional exhausted-record store settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PatchConfig holds the partial update applied to every record.
type PatchConfig struct {
	Fields map[string]string `mapstructure:"fields"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "acx-batch-patch")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.pretty_logs", false)
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.user_agent", "acx-api-client/0.1.0")
	v.SetDefault("api.page_size", 100)
	v.SetDefault("api.timeout", 30*time.Second)
	// Registered empty so environment overrides reach Unmarshal even when
	// the file omits them.
	v.SetDefault("auth.token_url", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("dispatch.max_concurrency", 5)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_backoff", 1*time.Second)
	v.SetDefault("retry.max_backoff", 0)
	v.SetDefault("retry.slots", 1)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("patch.fields", map[string]string{"status": "processed"})
}

// Load reads the configuration file at path and applies environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ACX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for fatal gaps.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Auth.TokenURL == "" {
		return fmt.Errorf("auth.token_url is required")
	}
	if c.Dispatch.MaxConcurrency < 1 {
		return fmt.Errorf("dispatch.max_concurrency must be >= 1 (got %d)", c.Dispatch.MaxConcurrency)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.Slots < 1 {
		return fmt.Errorf("retry.slots must be >= 1 (got %d)", c.Retry.Slots)
	}
	return nil
}

// PatchBody converts the configured patch fields to the request body shape.
func (c *Config) PatchBody() map[string]any {
	body := make(map[string]any, len(c.Patch.Fields))
	for k, v := range c.Patch.Fields {
		body[k] = v
	}
	return body
}
