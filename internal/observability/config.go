// Package observability wires structured logging, OpenTelemetry tracing and
// metrics, and the Prometheus textfile export for a didiforget run.
package observability

import (
	"io"
	"log/slog"
	"os"
	"time"
)

const (
	defaultServiceName     = "didiforget"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	// LogOutput receives log records. Defaults to stderr.
	LogOutput io.Writer

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporters.
	OTLPHeaders map[string]string

	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	// Empty keeps tracing no-op.
	OTLPEndpoint string

	// MetricsTextfile, when set, receives the Prometheus text exposition of
	// all metrics at shutdown.
	MetricsTextfile string

	ShutdownTimeout time.Duration

	LogLevel slog.Level

	OTLPInsecure bool
	LogJSON      bool
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		LogOutput:       os.Stderr,
		ServiceName:     defaultServiceName,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// metricsEnabled reports whether any metric reader is configured.
func (c Config) metricsEnabled() bool {
	return c.OTLPEndpoint != "" || c.MetricsTextfile != ""
}
