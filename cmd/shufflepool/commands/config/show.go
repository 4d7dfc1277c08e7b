package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/shufflepool/internal/cli/output"
	"github.com/marmos91/shufflepool/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective shufflepool configuration, after defaults and
environment overrides are applied.

Outputs YAML unless --output json is given.

Examples:
  # Show the effective configuration
  shufflepool config show

  # Show as JSON
  shufflepool config show --output json

  # Show the effect of an environment override
  SHUFFLEPOOL_POOL_TOTAL_BYTES=1Gi shufflepool config show`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// The global --output flag defaults to table, which YAML stands in for here
	formatFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
