package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the redaction audit trail",
		Run:   runAudit,
	}

	cmd.Flags().IntP("limit", "l", 20, "Maximum records")
	cmd.Flags().StringP("request", "r", "", "Filter by request id")

	RootCmd.AddCommand(cmd)
}

func runAudit(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	requestID, _ := cmd.Flags().GetString("request")

	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	var records []model.RedactionAudit
	if requestID != "" {
		records, err = p.auditor.ByRequestID(cmd.Context(), requestID)
	} else {
		records, err = p.auditor.Recent(cmd.Context(), limit)
	}
	if err != nil {
		exitErr("audit", err)
	}

	if formatFlag == "text" {
		for _, r := range records {
			fmt.Printf("%s  %s  owner=%s tier=%s applied=%v types=%v\n",
				r.Timestamp.Format("2006-01-02 15:04:05"), r.RequestID,
				r.OwnerID, r.SensitivityTier, r.RedactionApplied, r.RedactionTypes)
		}
		return
	}
	printJSON(records)
}
