// Package cli implements the memvault CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/audit"
	"github.com/memvault/memvault/internal/config"
	"github.com/memvault/memvault/internal/memory"
	"github.com/memvault/memvault/internal/provider"
	"github.com/memvault/memvault/internal/redact"
	"github.com/memvault/memvault/internal/substrate"
)

var (
	cfgPath    string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "Sensitivity-aware memory with redaction and failover",
	Long:  "Store and recall agent memories. Every write is redacted per its sensitivity tier, audited, and routed across storage providers with automatic failover.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default: ~/.memvault/config.toml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// pipeline bundles the wired stages one command invocation needs.
type pipeline struct {
	cfg     config.Config
	log     *logrus.Logger
	service *memory.Service
	manager *substrate.Manager
	auditor *audit.SQLiteLogger
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// buildPipeline loads config and wires detectors, audit, providers, and the
// substrate manager into a memory service.
func buildPipeline() (*pipeline, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: cfgPath})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.Server.LogLevel)

	patterns, err := redact.NewPatternDetector(cfg.Redaction.ExtraPatterns...)
	if err != nil {
		return nil, fmt.Errorf("compile patterns: %w", err)
	}
	entropy := redact.NewEntropyDetector(cfg.Redaction.MinTokenLength, cfg.Redaction.EntropyThresholds)
	processor := redact.NewProcessor(entropy, patterns, log)

	auditor, err := audit.NewSQLiteLogger(cfg.Audit.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	factory := provider.NewFactory()
	entries := make([]substrate.Entry, 0, len(cfg.Substrate.Providers))
	for _, d := range cfg.Substrate.Providers {
		p, err := factory.New(d)
		if err != nil {
			auditor.Close()
			return nil, fmt.Errorf("provider %s: %w", d.Name, err)
		}
		entries = append(entries, substrate.Entry{Name: d.Name, Provider: p})
	}

	manager, err := substrate.NewManager(entries, substrate.Config{
		HealthCheckInterval: cfg.Substrate.HealthInterval(),
		FailureThreshold:    cfg.Substrate.FailureThreshold,
		RecoveryThreshold:   cfg.Substrate.RecoveryThreshold,
		RequestTimeout:      cfg.Substrate.RequestTimeout(),
		WarnLatency:         cfg.Substrate.WarnLatency(),
		WindowSize:          cfg.Substrate.WindowSize,
	}, log)
	if err != nil {
		auditor.Close()
		return nil, fmt.Errorf("substrate: %w", err)
	}

	return &pipeline{
		cfg:     cfg,
		log:     log,
		service: memory.NewService(processor, auditor, manager, log),
		manager: manager,
		auditor: auditor,
	}, nil
}

func (p *pipeline) Close() {
	p.manager.Close()
	p.auditor.Close()
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Println(string(out))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
