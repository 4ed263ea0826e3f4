package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}
	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	deleted, err := p.service.Delete(cmd.Context(), args[0])
	if err != nil {
		exitErr("rm", err)
	}
	if !deleted {
		exitErr("rm", fmt.Errorf("memory %s not found", args[0]))
	}

	if formatFlag == "text" {
		fmt.Printf("deleted %s\n", args[0])
		return
	}
	printJSON(map[string]any{"id": args[0], "deleted": true})
}
