package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/shufflepool/internal/bytesize"
	"github.com/marmos91/shufflepool/internal/cli/output"
	"github.com/marmos91/shufflepool/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the shufflepool configuration file.

Checks for syntax errors, missing required fields, invalid values and a pool
size that cannot be planned.

Examples:
  # Validate default config
  shufflepool config validate

  # Validate specific config file
  shufflepool config validate --config /etc/shufflepool/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	plan, err := cfg.Pool.Plan()
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if plan.PooledBytes() < plan.TotalBytes {
		warnings = append(warnings, fmt.Sprintf("%s is not a multiple of %s, %d bytes are unused",
			config.PoolKeys().ReadMemory, config.PoolKeys().SegmentSize, plan.TotalBytes-plan.PooledBytes()))
	}
	if plan.MaxConcurrentRequests() < cfg.Bench.Readers {
		warnings = append(warnings, fmt.Sprintf("only %d of %d bench readers can hold a batch at once",
			plan.MaxConcurrentRequests(), cfg.Bench.Readers))
	}
	if cfg.Pool.LockMemory && cfg.Pool.Allocator != "mmap" {
		warnings = append(warnings, "pool.lock_memory only applies to the mmap allocator")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")

	var summary output.Pairs
	summary.Add("Pool size", cfg.Pool.TotalBytes.String())
	summary.Add("Buffer size", cfg.Pool.BufferSize.String())
	summary.Add("Buffers", fmt.Sprintf("%d (%d per request)", plan.NumTotalBuffers, plan.NumBuffersPerRequest))
	summary.Add("Batch size", bytesize.ByteSize(int64(plan.NumBuffersPerRequest)*int64(plan.BufferSize)).String())
	summary.Add("Request timeout", cfg.Pool.RequestTimeout.String())
	summary.Add("Allocator", cfg.Pool.Allocator)
	summary.Add("Log level", cfg.Logging.Level)

	return output.PrintPairs(out, summary)
}
