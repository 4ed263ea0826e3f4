package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	health := &cobra.Command{
		Use:   "health",
		Short: "Probe every provider and report health",
		Run:   runHealth,
	}
	RootCmd.AddCommand(health)

	metrics := &cobra.Command{
		Use:   "metrics",
		Short: "Report per-provider request counters",
		Run:   runMetrics,
	}
	RootCmd.AddCommand(metrics)
}

func runHealth(cmd *cobra.Command, args []string) {
	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	p.manager.ProbeNow()

	if formatFlag == "text" {
		fmt.Printf("active: %s\n", p.manager.ActiveProvider())
		for _, h := range p.manager.HealthSnapshot() {
			fmt.Printf("%-12s %-10s failures=%d error_rate=%.2f%% avg_ms=%.1f\n",
				h.ProviderName, h.Status, h.ConsecutiveFailures, h.ErrorRate*100, h.AvgResponseMs)
		}
		return
	}
	printJSON(map[string]any{
		"active_provider": p.manager.ActiveProvider(),
		"providers":       p.manager.HealthSnapshot(),
	})
}

func runMetrics(cmd *cobra.Command, args []string) {
	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	printJSON(map[string]any{
		"providers":    p.manager.MetricsSnapshot(),
		"audit_errors": p.auditor.ErrorCount(),
	})
}
