package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/assetcache/pkg/config"
)

var validatePath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file, reporting every problem
found.

Exits non-zero when the configuration is invalid.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validatePath, "path", "", "Config file to validate (default: standard location)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := validatePath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := config.MustLoad(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid.\n", path)
	return nil
}
