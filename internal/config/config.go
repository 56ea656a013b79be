// Package config loads the sample binary's configuration from the
// environment, the way the teacher's ws/config.go does. The engine itself
// (pkg/pubnub) never reads the environment — it takes an explicit Options
// struct — this package exists only for cmd/pubnub-sample.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the sample binary's runtime configuration.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	Origin       string `env:"PUBNUB_ORIGIN" envDefault:"pubsub.pubnub.com"`
	PublishKey   string `env:"PUBNUB_PUBLISH_KEY" envDefault:"demo"`
	SubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY" envDefault:"demo"`
	AuthKey      string `env:"PUBNUB_AUTH_KEY" envDefault:""`
	UUID         string `env:"PUBNUB_UUID" envDefault:""`

	DNSServer string `env:"PUBNUB_DNS_SERVER" envDefault:"8.8.8.8:53"`

	TransactionTimeoutSeconds int `env:"PUBNUB_TRANSACTION_TIMEOUT" envDefault:"10"`
	SubscribeTimeoutSeconds   int `env:"PUBNUB_SUBSCRIBE_TIMEOUT" envDefault:"310"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file then parses environment variables over
// it. Priority: real environment variables > .env file > struct defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for obviously invalid values.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("PUBNUB_ORIGIN is required")
	}
	if c.PublishKey == "" {
		return fmt.Errorf("PUBNUB_PUBLISH_KEY is required")
	}
	if c.SubscribeKey == "" {
		return fmt.Errorf("PUBNUB_SUBSCRIBE_KEY is required")
	}
	if c.TransactionTimeoutSeconds < 1 {
		return fmt.Errorf("PUBNUB_TRANSACTION_TIMEOUT must be > 0, got %d", c.TransactionTimeoutSeconds)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json, pretty (got %q)", c.LogFormat)
	}
	return nil
}
