// Package config loads pull configuration from a YAML file and ONEROSTER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/oneroster-client/pkg/logging"
	"github.com/Sternrassler/oneroster-client/pkg/pagination"
	"github.com/Sternrassler/oneroster-client/pkg/roster"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ONEROSTER_BASE_URL.
const EnvPrefix = "ONEROSTER"

// Load reads configuration from configPath, or from oneroster.yaml in the
// standard locations when configPath is empty. A missing default file is
// not an error: environment variables alone are enough.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("oneroster")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".oneroster"))
		}
		v.AddConfigPath("/etc/oneroster/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Keys without a useful
// default are registered empty so environment variables bind to them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("consumer_key", "")
	v.SetDefault("consumer_secret", "")
	v.SetDefault("base_url", "")

	v.SetDefault("page_size", pagination.DefaultPageSize)
	v.SetDefault("max_retries", 3)
	v.SetDefault("base_wait", "1s")
	v.SetDefault("timeout", "30s")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("endpoints", roster.DefaultEndpoints)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("metrics.textfile", "")
}

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.ConsumerKey == "" {
		return fmt.Errorf("consumer_key is required")
	}
	if cfg.ConsumerSecret == "" {
		return fmt.Errorf("consumer_secret is required")
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL: %s", cfg.BaseURL)
	}

	if cfg.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive: %d", cfg.PageSize)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative: %d", cfg.MaxRetries)
	}
	if cfg.BaseWait < 0 {
		return fmt.Errorf("base_wait must not be negative: %s", cfg.BaseWait)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", cfg.Timeout)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative: %g", cfg.RateLimit)
	}

	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("endpoints must not be empty")
	}
	for _, ep := range cfg.Endpoints {
		if !strings.HasPrefix(ep, "/") {
			return fmt.Errorf("endpoint must start with /: %s", ep)
		}
	}

	if err := logging.ValidateLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}

	return nil
}
