// Package config loads the gateway settings from defaults, an optional config
// file and STREAMGATE_ prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const envPrefix = "STREAMGATE"

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	BrokerLocal = "local"
	BrokerNATS  = "nats"

	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	OpenAIBaseURL  string `mapstructure:"openai_base_url"`
	UpstreamURL    string `mapstructure:"upstream_url"`
	UpstreamAPIKey string `mapstructure:"upstream_api_key"`

	// Models is the allow-list clients may request.
	Models []string `mapstructure:"models"`
	// FallbackModels are tried in order after the requested model.
	FallbackModels []string `mapstructure:"fallback_models"`

	Store         string        `mapstructure:"store"`
	RedisURL      string        `mapstructure:"redis_url"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	Broker  string `mapstructure:"broker"`
	NATSURL string `mapstructure:"nats_url"`

	MaxBodyBytes int64   `mapstructure:"max_body_bytes"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

func defaults() map[string]any {
	return map[string]any{
		"addr":             ":8080",
		"shutdown_timeout": 10 * time.Second,
		"openai_api_key":   "",
		"openai_base_url":  "",
		"upstream_url":     "",
		"upstream_api_key": "",
		"models":           []string{"gpt-4o-mini", "gpt-4o"},
		"fallback_models":  []string{"gpt-4o-mini", "gpt-4o"},
		"store":            StoreMemory,
		"redis_url":        "",
		"retention":        24 * time.Hour,
		"sweep_interval":   5 * time.Minute,
		"broker":           BrokerLocal,
		"nats_url":         "",
		"max_body_bytes":   int64(1 << 20),
		"rate_limit":       0.0,
		"rate_burst":       10,
		"log_level":        "info",
		"log_format":       FormatConsole,
	}
}

// Load reads the configuration. path may be empty, in which case only defaults
// and the environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Models = cleanList(cfg.Models)
	cfg.FallbackModels = cleanList(cfg.FallbackModels)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// cleanList trims entries and drops empty ones; env values arrive as one comma separated string.
func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// IsUpstreamModel reports whether name is routed to the raw chat-completions
// endpoint rather than the SDK: vendor/model identifiers are.
func IsUpstreamModel(name string) bool {
	return strings.Contains(name, "/")
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("at least one model is required"))
	}
	for _, m := range c.FallbackModels {
		if !slices.Contains(c.Models, m) {
			errs = append(errs, fmt.Errorf("fallback model %q is not in models", m))
		}
	}
	if c.UpstreamURL == "" && slices.ContainsFunc(c.Models, IsUpstreamModel) {
		errs = append(errs, errors.New("upstream_url is required for vendor/model identifiers"))
	}

	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis_url is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}

	switch c.Broker {
	case BrokerLocal, BrokerNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown broker %q", c.Broker))
	}

	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, errors.New("rate_burst must be at least 1"))
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
