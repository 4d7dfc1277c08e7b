package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/shufflepool/internal/bytesize"
	"github.com/marmos91/shufflepool/internal/cli/output"
	"github.com/marmos91/shufflepool/internal/logger"
	"github.com/marmos91/shufflepool/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads the configuration. Unlike the config subcommands, plan and
// bench run on defaults when no configuration file exists.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newPrinter returns a printer for the global --output flag.
func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format), nil
}

// poolFlags are the pool sizing flags shared by plan and bench.
type poolFlags struct {
	totalBytes string
	bufferSize string
}

func (f *poolFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.totalBytes, "total-bytes", "", "Pool memory budget, e.g. 64Mi (default: pool.total_bytes)")
	cmd.Flags().StringVar(&f.bufferSize, "buffer-size", "", "Size of one buffer, e.g. 32Ki (default: pool.buffer_size)")
}

// apply overrides the pool section with the flags that were set.
func (f *poolFlags) apply(cmd *cobra.Command, pool *config.PoolConfig) error {
	if cmd.Flags().Changed("total-bytes") {
		size, err := bytesize.Parse(f.totalBytes)
		if err != nil {
			return fmt.Errorf("invalid --total-bytes: %w", err)
		}
		pool.TotalBytes = size
	}
	if cmd.Flags().Changed("buffer-size") {
		size, err := bytesize.Parse(f.bufferSize)
		if err != nil {
			return fmt.Errorf("invalid --buffer-size: %w", err)
		}
		pool.BufferSize = size
	}
	return nil
}

func formatBytes(n int64) string {
	return fmt.Sprintf("%s (%d)", bytesize.ByteSize(n), n)
}
