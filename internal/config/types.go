package config

import "time"

// Config represents the complete configuration of a pull run.
type Config struct {
	ConsumerKey    string        `mapstructure:"consumer_key"`
	ConsumerSecret string        `mapstructure:"consumer_secret"`
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseWait       time.Duration `mapstructure:"base_wait"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Endpoints      []string      `mapstructure:"endpoints"`
	Logging        LoggingConfig `mapstructure:"logging"`
	Redis          RedisConfig   `mapstructure:"redis"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// RedisConfig points the rate-limit tracker at a shared redis. An empty
// address keeps the state in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MetricsConfig controls the metrics export at the end of a run.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}
