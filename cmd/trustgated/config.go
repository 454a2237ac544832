package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trustgate/core/budget"
	"trustgate/core/trust"
)

// Duration wraps time.Duration with a human-readable YAML representation,
// matching the daemon-config pattern used across the teacher's services.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "1h" or "30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures trustgated's runtime configuration.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	Env           string           `yaml:"env"`
	AuditLogPath  string           `yaml:"audit_log_path"`
	AuditRotation RotationConfig   `yaml:"audit_rotation"`
	Decay         DecayConfig      `yaml:"decay"`
	Budget        BudgetConfig     `yaml:"budget"`
	Telemetry     TelemetryConfig  `yaml:"telemetry"`
	Envelopes     []EnvelopeConfig `yaml:"envelopes"`
}

// RotationConfig configures lumberjack rotation for the NDJSON audit file.
type RotationConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxAgeDays int  `yaml:"max_age_days"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// DecayConfig selects the trust-decay policy applied ladder-wide.
type DecayConfig struct {
	Kind string   `yaml:"kind"` // "none", "cliff", "gradual"
	TTL  Duration `yaml:"ttl"`
	Step Duration `yaml:"step"`
}

// BudgetConfig configures enforcer-wide behaviour.
type BudgetConfig struct {
	AllowOverdraft  bool `yaml:"allow_overdraft"`
	RolloverOnReset bool `yaml:"rollover_on_reset"`
}

// EnvelopeConfig seeds one budget envelope at startup.
type EnvelopeConfig struct {
	Category string  `yaml:"category"`
	Limit    float64 `yaml:"limit"`
	Period   string  `yaml:"period"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// LoadConfig reads and validates the daemon's YAML configuration.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8088"
	}
	if cfg.AuditLogPath == "" {
		cfg.AuditLogPath = "trustgate-audit.ndjson"
	}
	if cfg.Decay.Kind == "" {
		cfg.Decay.Kind = "none"
	}
	if cfg.AuditRotation.MaxSizeMB == 0 {
		cfg.AuditRotation.MaxSizeMB = 100
	}
	if cfg.AuditRotation.MaxBackups == 0 {
		cfg.AuditRotation.MaxBackups = 7
	}
}

func validateConfig(cfg Config) error {
	switch strings.ToLower(cfg.Decay.Kind) {
	case "none", "cliff", "gradual":
	default:
		return fmt.Errorf("decay.kind must be one of none, cliff, gradual; got %q", cfg.Decay.Kind)
	}
	if strings.ToLower(cfg.Decay.Kind) == "cliff" && cfg.Decay.TTL.Duration <= 0 {
		return fmt.Errorf("decay.ttl must be positive when decay.kind is cliff")
	}
	if strings.ToLower(cfg.Decay.Kind) == "gradual" && cfg.Decay.Step.Duration <= 0 {
		return fmt.Errorf("decay.step must be positive when decay.kind is gradual")
	}
	for _, env := range cfg.Envelopes {
		if strings.TrimSpace(env.Category) == "" {
			return fmt.Errorf("envelopes: category must not be empty")
		}
		if env.Limit <= 0 {
			return fmt.Errorf("envelopes: limit for %q must be positive", env.Category)
		}
		if !budget.Period(env.Period).Valid() {
			return fmt.Errorf("envelopes: invalid period %q for category %q", env.Period, env.Category)
		}
	}
	return nil
}

// buildDecay translates the config's decay selection into a trust.Decay.
func (c DecayConfig) buildDecay() trust.Decay {
	switch strings.ToLower(c.Kind) {
	case "cliff":
		return trust.CliffDecay{TTL: c.TTL.Duration}
	case "gradual":
		return trust.GradualDecay{Step: c.Step.Duration}
	default:
		return trust.NoDecay{}
	}
}
