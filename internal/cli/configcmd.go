package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/memvault/memvault/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  "Write the built-in defaults to ~/.memvault/config.toml (or --config) as a starting point. Refuses to overwrite an existing file.",
		Run:   runConfigInit,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Run:   runConfigShow,
	}

	cmd.AddCommand(initCmd, showCmd)
	RootCmd.AddCommand(cmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := cfgPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			exitErr("config init", err)
		}
		path = filepath.Join(home, ".memvault", "config.toml")
	}

	if _, err := os.Stat(path); err == nil {
		exitErr("config init", fmt.Errorf("%s already exists", path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		exitErr("config init", err)
	}

	f, err := os.Create(path)
	if err != nil {
		exitErr("config init", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config.DefaultConfig()); err != nil {
		exitErr("config init", err)
	}
	fmt.Printf("wrote %s\n", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(config.LoadOptions{ConfigPath: cfgPath})
	if err != nil {
		exitErr("config show", err)
	}
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		exitErr("config show", err)
	}
}
