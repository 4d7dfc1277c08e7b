package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/shufflepool/pkg/config"
	"github.com/marmos91/shufflepool/pkg/readpool"
)

var planPool poolFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the capacity plan of a pool",
	Long: `Compute how a memory budget is divided into buffers and batches.

No memory is allocated. Sizes default to the pool section of the configuration.

Examples:
  # Plan the configured pool
  shufflepool plan

  # Plan a 32Mi pool of 4Mi buffers
  shufflepool plan --total-bytes 32Mi --buffer-size 4Mi

  # Machine-readable output
  shufflepool plan --total-bytes 1Gi -o json`,
	RunE: runPlan,
}

func init() {
	planPool.register(planCmd)
}

// planView is the printable form of a readpool.Plan.
type planView struct {
	TotalBytes            int64 `json:"total_bytes" yaml:"total_bytes"`
	PooledBytes           int64 `json:"pooled_bytes" yaml:"pooled_bytes"`
	BufferSize            int   `json:"buffer_size" yaml:"buffer_size"`
	NumTotalBuffers       int   `json:"num_total_buffers" yaml:"num_total_buffers"`
	NumBuffersPerRequest  int   `json:"num_buffers_per_request" yaml:"num_buffers_per_request"`
	BytesPerRequest       int64 `json:"bytes_per_request" yaml:"bytes_per_request"`
	MaxConcurrentRequests int   `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
}

func newPlanView(p readpool.Plan) planView {
	return planView{
		TotalBytes:            p.TotalBytes,
		PooledBytes:           p.PooledBytes(),
		BufferSize:            p.BufferSize,
		NumTotalBuffers:       p.NumTotalBuffers,
		NumBuffersPerRequest:  p.NumBuffersPerRequest,
		BytesPerRequest:       int64(p.NumBuffersPerRequest) * int64(p.BufferSize),
		MaxConcurrentRequests: p.MaxConcurrentRequests(),
	}
}

func (v planView) Headers() []string { return []string{"Property", "Value"} }

func (v planView) Rows() [][]string {
	return [][]string{
		{"Total bytes", formatBytes(v.TotalBytes)},
		{"Pooled bytes", formatBytes(v.PooledBytes)},
		{"Buffer size", formatBytes(int64(v.BufferSize))},
		{"Buffers", strconv.Itoa(v.NumTotalBuffers)},
		{"Buffers per request", strconv.Itoa(v.NumBuffersPerRequest)},
		{"Bytes per request", formatBytes(v.BytesPerRequest)},
		{"Max concurrent requests", strconv.Itoa(v.MaxConcurrentRequests)},
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := planPool.apply(cmd, &cfg.Pool); err != nil {
		return err
	}

	plan, err := cfg.Pool.Plan()
	if err != nil {
		return err
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	if err := printer.Print(newPlanView(plan)); err != nil {
		return fmt.Errorf("failed to print plan: %w", err)
	}

	if plan.PooledBytes() < plan.TotalBytes {
		printer.Printf("\n%d bytes of the budget are unused: %s is not a multiple of %s\n",
			plan.TotalBytes-plan.PooledBytes(), config.PoolKeys().ReadMemory, config.PoolKeys().SegmentSize)
	}
	return nil
}
