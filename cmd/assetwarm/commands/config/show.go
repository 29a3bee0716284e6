package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/assetcache/internal/cli/output"
	"github.com/marmos91/assetcache/pkg/config"
)

var (
	showPath   string
	showFormat string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the effective configuration after merging the configuration
file, environment variables and defaults.`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVar(&showPath, "path", "", "Config file to load (default: standard location)")
	showCmd.Flags().StringVar(&showFormat, "format", "yaml", "Output format (json or yaml)")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(showPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showFormat)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(out, cfg)
	case output.FormatYAML:
		return output.PrintYAML(out, cfg)
	default:
		return fmt.Errorf("config show renders json or yaml, not %s", format)
	}
}
