// Package config implements hierarchical configuration for memvault.
// Precedence: defaults < user (~/.memvault/config.toml) < explicit file < env (MEMVAULT_*) < flags.
package config

import (
	"fmt"
	"time"

	"github.com/memvault/memvault/internal/model"
	"github.com/memvault/memvault/internal/provider"
	"github.com/memvault/memvault/internal/redact"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Audit     AuditConfig     `toml:"audit" mapstructure:"audit"`
	Redaction RedactionConfig `toml:"redaction" mapstructure:"redaction"`
	Substrate SubstrateConfig `toml:"substrate" mapstructure:"substrate"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	LogLevel string `toml:"log_level" mapstructure:"log_level"`
}

// AuditConfig holds audit trail persistence settings.
type AuditConfig struct {
	DatabasePath string `toml:"database_path" mapstructure:"database_path"`
}

// RedactionConfig tunes the detectors. Thresholds are bits per character;
// omitted tiers keep their built-in cutoffs.
type RedactionConfig struct {
	MinTokenLength    int                  `toml:"min_token_length" mapstructure:"min_token_length"`
	EntropyThresholds map[string]float64   `toml:"entropy_thresholds" mapstructure:"entropy_thresholds"`
	ExtraPatterns     []redact.PatternSeed `toml:"extra_patterns" mapstructure:"extra_patterns"`
}

// SubstrateConfig holds provider routing and health monitoring settings.
type SubstrateConfig struct {
	Providers          []provider.Descriptor `toml:"providers" mapstructure:"providers"`
	HealthIntervalSecs int                   `toml:"health_check_interval_seconds" mapstructure:"health_check_interval_seconds"`
	FailureThreshold   int                   `toml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryThreshold  int                   `toml:"recovery_threshold" mapstructure:"recovery_threshold"`
	RequestTimeoutSecs int                   `toml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	WarnLatencyMs      int                   `toml:"warn_latency_ms" mapstructure:"warn_latency_ms"`
	WindowSize         int                   `toml:"window_size" mapstructure:"window_size"`
}

// HealthInterval returns the probe interval as a duration.
func (s SubstrateConfig) HealthInterval() time.Duration {
	return time.Duration(s.HealthIntervalSecs) * time.Second
}

// RequestTimeout returns the per-operation budget as a duration.
func (s SubstrateConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// WarnLatency returns the degradation latency cutoff as a duration.
func (s SubstrateConfig) WarnLatency() time.Duration {
	return time.Duration(s.WarnLatencyMs) * time.Millisecond
}

// DefaultConfig returns the built-in defaults: one local sqlite provider,
// audit beside it, detectors at stock thresholds.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:     "127.0.0.1:8443",
			LogLevel: "info",
		},
		Audit: AuditConfig{
			DatabasePath: "~/.memvault/audit.db",
		},
		Redaction: RedactionConfig{
			MinTokenLength:    redact.DefaultMinTokenLength,
			EntropyThresholds: redact.DefaultEntropyThresholds(),
		},
		Substrate: SubstrateConfig{
			Providers: []provider.Descriptor{
				{Name: "local", Kind: "sqlite", Params: map[string]string{"path": "~/.memvault/memory.db"}},
			},
			HealthIntervalSecs: 30,
			FailureThreshold:   3,
			RecoveryThreshold:  2,
			RequestTimeoutSecs: 5,
			WarnLatencyMs:      1000,
			WindowSize:         100,
		},
	}
}

// Validate rejects configurations that cannot produce a working pipeline.
func Validate(cfg Config) error {
	if len(cfg.Substrate.Providers) == 0 {
		return fmt.Errorf("substrate: at least one provider is required")
	}
	seen := map[string]bool{}
	for _, d := range cfg.Substrate.Providers {
		if d.Name == "" {
			return fmt.Errorf("substrate: provider missing name")
		}
		if seen[d.Name] {
			return fmt.Errorf("substrate: duplicate provider name %q", d.Name)
		}
		seen[d.Name] = true
		if d.Kind == "" {
			return fmt.Errorf("substrate: provider %s missing kind", d.Name)
		}
	}
	for tier := range cfg.Redaction.EntropyThresholds {
		if !model.ValidTiers[tier] {
			return fmt.Errorf("redaction: unknown tier %q in entropy_thresholds", tier)
		}
	}
	switch cfg.Server.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server: unknown log_level %q", cfg.Server.LogLevel)
	}
	return nil
}
