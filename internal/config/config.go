package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Events   EventsConfig   `mapstructure:"events"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// GeminiConfig holds the Gemini API client configuration. APIKey is usually
// supplied through the SUREODDS_GEMINI_API_KEY environment variable; its
// absence is a fetch-time error, not a startup error, so cached data stays
// servable without a key.
type GeminiConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
}

// FetchConfig holds the prediction workflow configuration
type FetchConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"` // 0 disables the background refresh
	MaxExcludes     int           `mapstructure:"max_excludes"`
}

// CacheConfig holds cache store configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	DBPath        string        `mapstructure:"db_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
	TTL           time.Duration `mapstructure:"ttl"` // redis expiry on top of the freshness rule; 0 = none
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// EventsConfig holds Kafka publishing configuration
type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the file at path and environment variables.
// A missing config file is tolerated; defaults plus environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override, e.g. SUREODDS_GEMINI_API_KEY
	v.SetEnvPrefix("SUREODDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.timeout", "60s")
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_base", "1s")
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.max_output_tokens", 8192)

	// Fetch defaults
	v.SetDefault("fetch.freshness_window", "4h")
	v.SetDefault("fetch.refresh_interval", "0")
	v.SetDefault("fetch.max_excludes", 20)

	// Cache defaults
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.db_path", "./data/sureodds.db")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.postgres_dsn", "")
	v.SetDefault("cache.ttl", "0")

	// Server defaults
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "90s")

	// Events defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", "localhost:9092")
	v.SetDefault("events.topic", "predictions.updated")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Gemini config
	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if c.Gemini.BaseURL == "" {
		return fmt.Errorf("gemini.base_url is required")
	}
	if c.Gemini.Timeout < time.Second {
		return fmt.Errorf("gemini.timeout must be at least 1 second")
	}
	if c.Gemini.MaxRetries < 1 {
		return fmt.Errorf("gemini.max_retries must be at least 1")
	}
	if c.Gemini.RetryDelayBase <= 0 {
		return fmt.Errorf("gemini.retry_delay_base must be positive")
	}
	if c.Gemini.Temperature < 0.0 || c.Gemini.Temperature > 2.0 {
		return fmt.Errorf("gemini.temperature must be between 0.0 and 2.0")
	}
	if c.Gemini.MaxOutputTokens < 1 {
		return fmt.Errorf("gemini.max_output_tokens must be at least 1")
	}

	// Validate Fetch config
	if c.Fetch.FreshnessWindow < time.Minute {
		return fmt.Errorf("fetch.freshness_window must be at least 1 minute")
	}
	if c.Fetch.RefreshInterval != 0 && c.Fetch.RefreshInterval < time.Minute {
		return fmt.Errorf("fetch.refresh_interval must be 0 or at least 1 minute")
	}
	if c.Fetch.MaxExcludes < 0 {
		return fmt.Errorf("fetch.max_excludes must not be negative")
	}

	// Validate Cache config
	switch c.Cache.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required when cache.backend is redis")
		}
	case "postgres":
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("cache.postgres_dsn is required when cache.backend is postgres")
		}
	default:
		return fmt.Errorf("cache.backend must be one of: sqlite, redis, postgres, memory")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	// Validate Server config
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.RequestTimeout < time.Second {
		return fmt.Errorf("server.request_timeout must be at least 1 second")
	}

	// Validate Events config
	if c.Events.Enabled {
		if c.Events.Brokers == "" {
			return fmt.Errorf("events.brokers is required when events are enabled")
		}
		if c.Events.Topic == "" {
			return fmt.Errorf("events.topic is required when events are enabled")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
