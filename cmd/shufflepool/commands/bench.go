package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/marmos91/shufflepool/internal/bytesize"
	"github.com/marmos91/shufflepool/internal/logger"
	"github.com/marmos91/shufflepool/internal/telemetry"
	"github.com/marmos91/shufflepool/pkg/api"
	"github.com/marmos91/shufflepool/pkg/config"
	"github.com/marmos91/shufflepool/pkg/readpool"
	"github.com/marmos91/shufflepool/pkg/workload"
)

var (
	benchPool        poolFlags
	benchReaders     int
	benchDuration    time.Duration
	benchHold        time.Duration
	benchTimeout     time.Duration
	benchAllocator   string
	benchTouch       bool
	benchMetricsPort int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run synthetic shuffle readers against a pool",
	Long: `Create a pool and drive it with concurrent readers that request a batch,
fill it, hold it and recycle it, then print a summary.

While the benchmark runs, health, pool and Prometheus endpoints are served when
metrics are enabled in the configuration or --metrics-port is given.

Examples:
  # Run with the configured pool and workload
  shufflepool bench

  # 16 readers contending for a 32Mi pool for 30 seconds
  shufflepool bench --total-bytes 32Mi --buffer-size 4Mi --readers 16 --duration 30s

  # Expose /metrics on port 9090 while running
  shufflepool bench --metrics-port 9090

  # Override the log level
  SHUFFLEPOOL_LOGGING_LEVEL=DEBUG shufflepool bench`,
	RunE: runBench,
}

func init() {
	benchPool.register(benchCmd)
	benchCmd.Flags().IntVar(&benchReaders, "readers", 0, "Number of concurrent readers (default: bench.readers)")
	benchCmd.Flags().DurationVar(&benchDuration, "duration", 0, "How long to run (default: bench.duration)")
	benchCmd.Flags().DurationVar(&benchHold, "hold", 0, "How long a reader keeps a batch (default: bench.hold_time)")
	benchCmd.Flags().DurationVar(&benchTimeout, "timeout", 0, "Buffer request timeout (default: pool.request_timeout)")
	benchCmd.Flags().StringVar(&benchAllocator, "allocator", "", "Buffer allocator: mmap or heap (default: pool.allocator)")
	benchCmd.Flags().BoolVar(&benchTouch, "touch", false, "Write and verify every byte of each batch")
	benchCmd.Flags().IntVar(&benchMetricsPort, "metrics-port", 0, "Serve health, pool and metrics endpoints on this port")
}

// applyBenchFlags overrides cfg with the flags that were set.
func applyBenchFlags(cmd *cobra.Command, cfg *config.Config) error {
	if err := benchPool.apply(cmd, &cfg.Pool); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("readers") {
		cfg.Bench.Readers = benchReaders
	}
	if flags.Changed("duration") {
		cfg.Bench.Duration = benchDuration
	}
	if flags.Changed("hold") {
		cfg.Bench.HoldTime = benchHold
	}
	if flags.Changed("timeout") {
		cfg.Pool.RequestTimeout = benchTimeout
	}
	if flags.Changed("allocator") {
		cfg.Pool.Allocator = benchAllocator
	}
	if flags.Changed("touch") {
		cfg.Bench.Touch = benchTouch
	}
	if flags.Changed("metrics-port") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = benchMetricsPort
	}

	return config.Validate(cfg)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyBenchFlags(cmd, cfg); err != nil {
		return err
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "shufflepool",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "shufflepool",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Configuration loaded", "source", configSource())
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool, err := cfg.Pool.NewPool(readpool.NewMetrics(registry))
	if err != nil {
		return err
	}
	defer pool.Destroy()

	logger.Info("Pool created",
		logger.PoolID(pool.ID()),
		logger.KeyBuffers, pool.NumTotalBuffers(),
		logger.KeyPerRequest, pool.NumBuffersPerRequest(),
		logger.KeyAllocator, cfg.Pool.Allocator,
		logger.KeyTimeout, cfg.Pool.RequestTimeout.String(),
	)

	// A server failure, such as a port already in use, stops the workload.
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	serverDone := make(chan error, 1)
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if cfg.Metrics.Enabled {
		server := api.NewServer(api.ServerConfig{
			Port:            cfg.Metrics.Port,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, pool, registry)
		go func() {
			err := server.Start(serverCtx)
			if err != nil {
				stopWork()
			}
			serverDone <- err
		}()
	} else {
		serverDone <- nil
	}

	report, runErr := workload.Run(workCtx, pool, workload.Config{
		Readers:  cfg.Bench.Readers,
		Duration: cfg.Bench.Duration,
		HoldTime: cfg.Bench.HoldTime,
		Touch:    cfg.Bench.Touch,
	})

	stopServer()
	if err := <-serverDone; err != nil {
		return fmt.Errorf("benchmark aborted: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("benchmark failed: %w", runErr)
	}

	return printer.Print(newBenchView(report, pool.Stats()))
}

// configSource describes where the configuration came from.
func configSource() string {
	if path := GetConfigFile(); path != "" {
		return path
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// benchView is the printable summary of a benchmark.
type benchView struct {
	Readers        int     `json:"readers" yaml:"readers"`
	Batches        uint64  `json:"batches" yaml:"batches"`
	Timeouts       uint64  `json:"timeouts" yaml:"timeouts"`
	Bytes          int64   `json:"bytes" yaml:"bytes"`
	BytesPerSecond float64 `json:"bytes_per_second" yaml:"bytes_per_second"`
	MeanWait       string  `json:"mean_wait" yaml:"mean_wait"`
	MaxWait        string  `json:"max_wait" yaml:"max_wait"`
	Elapsed        string  `json:"elapsed" yaml:"elapsed"`
	Destroyed      bool    `json:"destroyed" yaml:"destroyed"`

	Pool readpool.Stats `json:"pool" yaml:"pool"`
}

func newBenchView(r workload.Report, stats readpool.Stats) benchView {
	return benchView{
		Readers:        r.Readers,
		Batches:        r.Batches,
		Timeouts:       r.Timeouts,
		Bytes:          r.Bytes,
		BytesPerSecond: r.Throughput(),
		MeanWait:       r.MeanWait.String(),
		MaxWait:        r.MaxWait.String(),
		Elapsed:        r.Elapsed.Round(time.Millisecond).String(),
		Destroyed:      r.Destroyed,
		Pool:           stats,
	}
}

func (v benchView) Headers() []string { return []string{"Metric", "Value"} }

func (v benchView) Rows() [][]string {
	return [][]string{
		{"Pool", v.Pool.ID},
		{"Readers", strconv.Itoa(v.Readers)},
		{"Max concurrent requests", strconv.Itoa(v.Pool.MaxConcurrentRequests)},
		{"Batches", strconv.FormatUint(v.Batches, 10)},
		{"Timeouts", strconv.FormatUint(v.Timeouts, 10)},
		{"Bytes handed out", formatBytes(v.Bytes)},
		{"Throughput", bytesize.ByteSize(v.BytesPerSecond).String() + "/s"},
		{"Mean wait", v.MeanWait},
		{"Max wait", v.MaxWait},
		{"Elapsed", v.Elapsed},
	}
}
