// Package config loads session configuration from a YAML file with
// environment-variable overrides.
//
// Precedence, lowest to highest: built-in defaults, the config file,
// SKEIN_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "30s"-style strings in
// both YAML and environment variables.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(b), err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full session configuration.
type Config struct {
	EngineURL string `yaml:"engine_url" env:"SKEIN_ENGINE_URL"`
	Run       string `yaml:"run" env:"SKEIN_RUN"`
	Unit      string `yaml:"unit" env:"SKEIN_UNIT"`
	MaxHops   int    `yaml:"max_hops" env:"SKEIN_MAX_HOPS"`

	ParticipantsTTL Duration `yaml:"participants_ttl" env:"SKEIN_PARTICIPANTS_TTL"`
	TrustlinesTTL   Duration `yaml:"trustlines_ttl" env:"SKEIN_TRUSTLINES_TTL"`
	TargetsTTL      Duration `yaml:"targets_ttl" env:"SKEIN_TARGETS_TTL"`

	LogLevel    string `yaml:"log_level" env:"SKEIN_LOG_LEVEL"`
	MetricsAddr string `yaml:"metrics_addr" env:"SKEIN_METRICS_ADDR"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		EngineURL:       "http://localhost:8470",
		Unit:            "EUR",
		MaxHops:         4,
		ParticipantsTTL: Duration(30 * time.Second),
		TrustlinesTTL:   Duration(15 * time.Second),
		TargetsTTL:      Duration(10 * time.Second),
		LogLevel:        "info",
	}
}

// Load builds the configuration. Path may be empty, in which case only
// defaults and environment variables apply. A named file that does not
// exist is an error; the operator asked for it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the session cannot start with.
func (c *Config) Validate() error {
	if c.EngineURL == "" {
		return fmt.Errorf("config: engine_url is required")
	}
	if c.Unit == "" {
		return fmt.Errorf("config: unit is required")
	}
	if c.MaxHops < 1 {
		return fmt.Errorf("config: max_hops must be at least 1, got %d", c.MaxHops)
	}
	for name, d := range map[string]Duration{
		"participants_ttl": c.ParticipantsTTL,
		"trustlines_ttl":   c.TrustlinesTTL,
		"targets_ttl":      c.TargetsTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	return nil
}
