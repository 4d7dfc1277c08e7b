package config

import (
	"strings"
	"testing"

	"github.com/marmos91/shufflepool/internal/bytesize"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_TotalBytesBelowBufferSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Pool.TotalBytes = 16 * bytesize.KiB
	cfg.Pool.BufferSize = 32 * bytesize.KiB

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when total_bytes < buffer_size")
	}
	if !strings.Contains(err.Error(), "Pool.TotalBytes") || !strings.Contains(err.Error(), "gtefield") {
		t.Errorf("Expected error about Pool.TotalBytes, got: %v", err)
	}
}

func TestValidate_ZeroPoolValues(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Pool.BufferSize = 0
	cfg.Pool.RequestTimeout = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero pool values")
	}
	for _, field := range []string{"Pool.BufferSize", "Pool.RequestTimeout"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Expected error to mention %s, got: %v", field, err)
		}
	}
}

func TestValidate_UnknownAllocator(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Pool.Allocator = "hugepages"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown allocator")
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "Telemetry.Endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_UnknownProfileType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Profiling.ProfileTypes = []string{"cpu", "heap"}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown profile type")
	}
}

func TestValidate_BenchReaders(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Bench.Readers = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero readers")
	}
}

func TestValidate_LogLevelNotNormalized(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}
}
