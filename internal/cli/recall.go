package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/provider"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Recall memories matching a query",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	cmd.Flags().StringP("scope", "s", "", "Restrict to one scope")
	cmd.Flags().IntP("limit", "l", 20, "Maximum results")

	cmd.MarkFlagRequired("owner")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	owner, _ := cmd.Flags().GetString("owner")
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")

	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	items, err := p.service.Recall(cmd.Context(), provider.RecallParams{
		OwnerID: owner,
		Scope:   scope,
		Query:   strings.Join(args, " "),
		Limit:   limit,
	})
	if err != nil {
		exitErr("recall", err)
	}

	if formatFlag == "text" {
		for _, it := range items {
			fmt.Printf("%s  [%s/%s]  %s\n", it.ID, it.Scope, it.SensitivityTier, it.Content)
		}
		return
	}
	printJSON(items)
}
