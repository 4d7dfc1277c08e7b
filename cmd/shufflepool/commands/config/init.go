package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/shufflepool/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Create a shufflepool configuration file populated with default values.

By default, the configuration file is created at $XDG_CONFIG_HOME/shufflepool/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  shufflepool config init

  # Initialize with custom path
  shufflepool config init --config /etc/shufflepool/config.yaml

  # Force overwrite existing config
  shufflepool config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	configPath := configFile
	var err error
	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Size the pool in the 'pool' section")
	_, _ = fmt.Fprintln(out, "  2. Check the capacity plan with: shufflepool plan")
	_, _ = fmt.Fprintln(out, "  3. Load-test it with: shufflepool bench")
	return nil
}
