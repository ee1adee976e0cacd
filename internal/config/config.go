// Package config loads runtime settings from defaults, configs/config.yaml
// and CAPTAIN_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credential backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type Credentials struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	// Token seeds the memory backend, e.g. from CAPTAIN_CREDENTIALS_TOKEN.
	Token string `mapstructure:"token"`
}

type Config struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Credentials    Credentials   `mapstructure:"credentials"`
	RedisURL       string        `mapstructure:"redis_url"`
	EventsBackend  string        `mapstructure:"events_backend"`
	DatabaseURL    string        `mapstructure:"database_url"`
	RateRPS        float64       `mapstructure:"rate_rps"`
	RateBurst      int           `mapstructure:"rate_burst"`
	AllowOrigins   []string      `mapstructure:"allow_origins"`
	LogLevel       string        `mapstructure:"log_level"`
	LogJSON        bool          `mapstructure:"log_json"`
	Tracing        bool          `mapstructure:"tracing"`
}

// Load reads configuration. configFile overrides the ./configs search path
// when non-empty.
func Load(configFile string) (Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}
	v.SetEnvPrefix("CAPTAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("api_base_url", "http://localhost:8000/api/v1")
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("credentials.backend", BackendFile)
	v.SetDefault("credentials.path", "./.captain/credentials.yaml")
	v.SetDefault("credentials.token", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("events_backend", "memory")
	v.SetDefault("database_url", "")
	v.SetDefault("rate_rps", 20.0)
	v.SetDefault("rate_burst", 40)
	v.SetDefault("allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("tracing", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Credentials.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Credentials.Path == "" {
			return errors.New("config: credentials.path is required for the file backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: redis_url is required for the redis credential backend")
		}
	default:
		return fmt.Errorf("config: unknown credentials.backend %q", c.Credentials.Backend)
	}
	switch c.EventsBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: redis_url is required for the redis events backend")
		}
	default:
		return fmt.Errorf("config: unknown events_backend %q", c.EventsBackend)
	}
	if c.APIBaseURL == "" {
		return errors.New("config: api_base_url is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	if c.RateRPS <= 0 || c.RateBurst <= 0 {
		return errors.New("config: rate_rps and rate_burst must be positive")
	}
	return nil
}
