// Package config loads the settings of a relay bot process.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvToken      = "RELAY_TOKEN"
	EnvGatewayURL = "RELAY_GATEWAY_URL"
	EnvAPIURL     = "RELAY_API_URL"
	EnvLogLevel   = "RELAY_LOG_LEVEL"
)

// Config holds the bot settings.
type Config struct {
	Token       string `yaml:"token"`
	GatewayURL  string `yaml:"gatewayURL"`
	APIURL      string `yaml:"apiURL"`
	Intents     int    `yaml:"intents"`
	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`

	// RunTimeout bounds the context of units after the Timeout unit.
	RunTimeout time.Duration `yaml:"runTimeout"`
	// PollTimeout is how long !poll waits for a reaction.
	PollTimeout time.Duration `yaml:"pollTimeout"`

	RateLimit    RateLimitConfig   `yaml:"rateLimit"`
	Interceptors InterceptorConfig `yaml:"interceptors"`
}

// RateLimitConfig configures the per-author message limit.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

// InterceptorConfig configures the interceptor registry.
type InterceptorConfig struct {
	Capacity      int           `yaml:"capacity"`
	ActionBuffer  int           `yaml:"actionBuffer"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// Default returns the settings used for anything a file leaves unset.
func Default() Config {
	return Config{
		GatewayURL:  "wss://gateway.discord.gg/?v=10&encoding=json",
		APIURL:      "https://discord.com/api/v10",
		Intents:     1<<0 | 1<<9 | 1<<10 | 1<<15, // guilds, guild messages, guild message reactions, message content
		LogLevel:    "info",
		MetricsAddr: ":9090",
		RunTimeout:  90 * time.Second,
		PollTimeout: 60 * time.Second,
		RateLimit: RateLimitConfig{
			PerSecond: 1,
			Burst:     5,
		},
		Interceptors: InterceptorConfig{
			Capacity:      100,
			ActionBuffer:  64,
			SweepInterval: 30 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvGatewayURL); v != "" {
		c.GatewayURL = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the Config for configuration errors.
// Returns all validation errors joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.Token == "" {
		errs = append(errs, fmt.Errorf("token is required (set %s)", EnvToken))
	}
	if err := checkURL(c.GatewayURL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("gatewayURL: %w", err))
	}
	if err := checkURL(c.APIURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("apiURL: %w", err))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("runTimeout must be positive"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("pollTimeout must be positive"))
	}
	if c.RateLimit.PerSecond < 0 {
		errs = append(errs, errors.New("rateLimit.perSecond must not be negative"))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rateLimit.burst must not be negative"))
	}
	if c.Interceptors.Capacity < 1 {
		errs = append(errs, errors.New("interceptors.capacity must be at least 1"))
	}
	if c.Interceptors.ActionBuffer < 1 {
		errs = append(errs, errors.New("interceptors.actionBuffer must be at least 1"))
	}
	if c.Interceptors.SweepInterval <= 0 {
		errs = append(errs, errors.New("interceptors.sweepInterval must be positive"))
	}

	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return errors.New("missing host")
			}
			return nil
		}
	}
	return fmt.Errorf("scheme %q not allowed, want one of %v", u.Scheme, schemes)
}
