package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath is an explicit config file; it merges over the user config.
	ConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags
	// (dot-notated keys).
	FlagOverrides map[string]any
}

// Load returns the effective configuration after applying precedence:
// defaults < user (~/.memvault/config.toml) < explicit file < env (MEMVAULT_*) < flags.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := mergeConfigFile(v, userConfigPath()); err != nil {
		return Config{}, err
	}
	if err := mergeConfigFile(v, opts.ConfigPath); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix("MEMVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range opts.FlagOverrides {
		v.Set(k, val)
	}

	// Unmarshal into a zero Config. Starting from DefaultConfig would merge
	// file-declared providers element-wise with the defaults; the providers
	// list must replace wholesale.
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	expandPaths(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.log_level", def.Server.LogLevel)

	v.SetDefault("audit.database_path", def.Audit.DatabasePath)

	v.SetDefault("redaction.min_token_length", def.Redaction.MinTokenLength)
	v.SetDefault("redaction.entropy_thresholds", def.Redaction.EntropyThresholds)

	v.SetDefault("substrate.health_check_interval_seconds", def.Substrate.HealthIntervalSecs)
	v.SetDefault("substrate.failure_threshold", def.Substrate.FailureThreshold)
	v.SetDefault("substrate.recovery_threshold", def.Substrate.RecoveryThreshold)
	v.SetDefault("substrate.request_timeout_seconds", def.Substrate.RequestTimeoutSecs)
	v.SetDefault("substrate.warn_latency_ms", def.Substrate.WarnLatencyMs)
	v.SetDefault("substrate.window_size", def.Substrate.WindowSize)

	provs := make([]map[string]any, 0, len(def.Substrate.Providers))
	for _, d := range def.Substrate.Providers {
		provs = append(provs, map[string]any{
			"name":   d.Name,
			"kind":   d.Kind,
			"params": d.Params,
		})
	}
	v.SetDefault("substrate.providers", provs)
}

// mergeConfigFile merges the TOML config file if it exists.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

func userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".memvault", "config.toml")
}

// expandPaths resolves ~ in file paths after precedence is settled.
func expandPaths(cfg *Config) {
	cfg.Audit.DatabasePath = expandHome(cfg.Audit.DatabasePath)
	for i := range cfg.Substrate.Providers {
		d := cfg.Substrate.Providers[i]
		if p, ok := d.Params["path"]; ok {
			d.Params["path"] = expandHome(p)
		}
	}
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
