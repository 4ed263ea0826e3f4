package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/provider"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored memories",
		Run:   runList,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	cmd.Flags().StringP("scope", "s", "", "Restrict to one scope")
	cmd.Flags().StringP("tier", "t", "", "Restrict to one sensitivity tier")
	cmd.Flags().IntP("limit", "l", 50, "Maximum results")

	cmd.MarkFlagRequired("owner")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	owner, _ := cmd.Flags().GetString("owner")
	scope, _ := cmd.Flags().GetString("scope")
	tier, _ := cmd.Flags().GetString("tier")
	limit, _ := cmd.Flags().GetInt("limit")

	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	items, err := p.service.List(cmd.Context(), provider.ListParams{
		OwnerID: owner,
		Scope:   scope,
		Tier:    tier,
		Limit:   limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if formatFlag == "text" {
		for _, it := range items {
			fmt.Printf("%s  [%s/%s]  %s\n", it.ID, it.Scope, it.SensitivityTier, it.Content)
		}
		return
	}
	printJSON(items)
}
