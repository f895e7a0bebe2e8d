package xgate

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvBaseURL       = "XGATE_BASE_URL"
	EnvToken         = "XGATE_TOKEN"
	EnvTimeout       = "XGATE_TIMEOUT"
	EnvMaxAttempts   = "XGATE_MAX_ATTEMPTS"
	EnvMaxRetryAfter = "XGATE_MAX_RETRY_AFTER"
)

// Config is the file and environment representation of client settings.
type Config struct {
	BaseURL   string          `yaml:"base_url"`
	Token     string          `yaml:"token"`
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RetryConfig mirrors RetryPolicy. Unset fields take the defaults; the
// pointer fields keep an explicit zero, so max_retry_after: 0s means never
// wait on Retry-After.
type RetryConfig struct {
	MaxAttempts   *int           `yaml:"max_attempts"`
	InitialDelay  time.Duration  `yaml:"initial_delay"`
	MaxDelay      time.Duration  `yaml:"max_delay"`
	Multiplier    float64        `yaml:"multiplier"`
	Jitter        *float64       `yaml:"jitter"`
	MaxRetryAfter *time.Duration `yaml:"max_retry_after"`
}

// RateLimitConfig enables client-side throttling when Requests is set.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Per      time.Duration `yaml:"per"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML file. ${VAR} references are expanded from the
// environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// ConfigFromEnv returns the default config overridden by XGATE_* variables.
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the XGATE_* variables that are set.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvMaxAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxAttempts, err)
		}
		c.Retry.MaxAttempts = &n
	}
	if v := os.Getenv(EnvMaxRetryAfter); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRetryAfter, err)
		}
		c.Retry.MaxRetryAfter = &d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	def := DefaultRetryPolicy()
	if c.Retry.MaxAttempts == nil {
		c.Retry.MaxAttempts = &def.MaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = def.InitialDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = def.Multiplier
	}
	if c.Retry.Jitter == nil {
		jitter := def.Jitter
		c.Retry.Jitter = &jitter
	}
	if c.Retry.MaxRetryAfter == nil {
		c.Retry.MaxRetryAfter = &def.MaxRetryAfter
	}

	if c.RateLimit.Requests > 0 && c.RateLimit.Per == 0 {
		c.RateLimit.Per = time.Second
	}
}

// RetryPolicy converts the retry settings.
func (c *Config) RetryPolicy() *RetryPolicy {
	policy := &RetryPolicy{
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
	}
	if c.Retry.MaxAttempts != nil {
		policy.MaxAttempts = *c.Retry.MaxAttempts
	}
	if c.Retry.Jitter != nil {
		policy.Jitter = *c.Retry.Jitter
	}
	if c.Retry.MaxRetryAfter != nil {
		policy.MaxRetryAfter = *c.Retry.MaxRetryAfter
	}
	return policy
}

// Validate checks that the config can build a client.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rate_limit.requests must be non-negative, got %d", c.RateLimit.Requests)
	}
	return nil
}

// ClientOptions returns the options that configure a Client from c.
func (c *Config) ClientOptions() []ClientOption {
	opts := []ClientOption{
		WithBaseURL(c.BaseURL),
		WithTimeout(c.Timeout),
		WithRetry(c.RetryPolicy()),
	}
	if c.Token != "" {
		opts = append(opts, WithAuth(BearerAuth(c.Token)))
	}
	if c.UserAgent != "" {
		opts = append(opts, WithUserAgent(c.UserAgent))
	}
	if c.RateLimit.Requests > 0 {
		opts = append(opts, WithRateLimit(c.RateLimit.Requests, c.RateLimit.Per))
	}
	return opts
}
