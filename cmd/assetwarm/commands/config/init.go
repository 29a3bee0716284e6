package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/assetcache/internal/cli/prompt"
	"github.com/marmos91/assetcache/pkg/config"
)

var (
	initPath  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file populated with default values.

By default the file is written to the standard location
($XDG_CONFIG_HOME/assetcache/config.yaml). An existing file is only
overwritten after confirmation, or with --force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "", "Target path (default: standard location)")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite without confirmation")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		ok, err := prompt.ConfirmWithForce(
			fmt.Sprintf("Configuration file %s already exists. Overwrite?", path),
			initForce,
		)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
