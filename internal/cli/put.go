package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin. It is redacted per the sensitivity tier before it is stored.",
		Run:   runPut,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	cmd.Flags().StringP("scope", "s", "personal", "Scope: personal, team, organization")
	cmd.Flags().StringP("tier", "t", "internal", "Sensitivity tier: public, internal, confidential, restricted, secrets")
	cmd.Flags().String("context", "", "Context id to correlate audit records")

	cmd.MarkFlagRequired("owner")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	owner, _ := cmd.Flags().GetString("owner")
	scope, _ := cmd.Flags().GetString("scope")
	tier, _ := cmd.Flags().GetString("tier")
	contextID, _ := cmd.Flags().GetString("context")

	// Get content: positional arg first, then check stdin
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	p, err := buildPipeline()
	if err != nil {
		exitErr("init", err)
	}
	defer p.Close()

	res, err := p.service.Write(cmd.Context(), memory.WriteParams{
		OwnerID:         owner,
		Scope:           scope,
		Content:         strings.TrimSpace(content),
		SensitivityTier: tier,
		ContextID:       contextID,
	})
	if err != nil {
		exitErr("put", err)
	}

	if formatFlag == "text" {
		fmt.Printf("stored %s (redacted: %v)\n", res.ID, res.RedactionApplied)
		return
	}
	printJSON(res)
}
