// Package config loads didiforget settings from flags, the environment,
// an optional YAML file and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/Sumatoshi-tech/didiforget/internal/render"
	"github.com/Sumatoshi-tech/didiforget/pkg/historycache"
	"github.com/Sumatoshi-tech/didiforget/pkg/report"
)

// ErrConfiguration wraps every validation failure.
var ErrConfiguration = errors.New("configuration error")

// Validation errors.
var (
	ErrInvalidThreshold     = report.ErrInvalidThreshold
	ErrInvalidTopN          = report.ErrInvalidTopN
	ErrInvalidNormalization = report.ErrInvalidNormalization
	ErrInvalidBranch        = errors.New("invalid reference branch")
	ErrInvalidFormat        = errors.New("invalid output format")
	ErrInvalidCacheFile     = errors.New("invalid cache file")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidCommitSize    = errors.New("max commit size must not be negative")
	ErrInvalidCacheLevel    = errors.New("invalid cache compression level")
	ErrInvalidTuning        = errors.New("tuning values must not be negative")
)

// Defaults.
const (
	DefaultBranch        = "origin/master"
	DefaultNormalization = string(report.NormalizeCoupled)
	DefaultFormat        = string(render.FormatTable)
	DefaultRepo          = "."
	DefaultLogLevel      = "info"
)

// LevelQuiet silences everything below errors.
const LevelQuiet = "quiet"

// Config is the complete runtime configuration.
type Config struct {
	Branch        string          `mapstructure:"branch"`
	Normalization string          `mapstructure:"normalization"`
	Format        string          `mapstructure:"format"`
	Repo          string          `mapstructure:"repo"`
	Cache         CacheConfig     `mapstructure:"cache"`
	Logging       LoggingConfig   `mapstructure:"logging"`
	Telemetry     TelemetryConfig `mapstructure:"telemetry"`
	Threshold     float64         `mapstructure:"threshold"`
	Top           int             `mapstructure:"top"`
	MaxCommitSize int             `mapstructure:"max_commit_size"`
	Tuning        TuningConfig    `mapstructure:"tuning"`
	NoColor       bool            `mapstructure:"no_color"`
}

// CacheConfig configures the on-disk history cache.
type CacheConfig struct {
	File    string `mapstructure:"file"`
	TempDir string `mapstructure:"temp_dir"`
	Level   int    `mapstructure:"level"`
	Enabled bool   `mapstructure:"enabled"`
}

// TuningConfig holds knobs that change resource use but never the report.
// Zero selects the built-in default.
type TuningConfig struct {
	ProgressInterval   int `mapstructure:"progress_interval"`
	ExistenceCacheSize int `mapstructure:"existence_cache_size"`
}

// LoggingConfig configures the slog handler on stderr.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig configures OpenTelemetry and Prometheus export.
type TelemetryConfig struct {
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string `mapstructure:"otlp_headers"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
	OTLPInsecure    bool   `mapstructure:"otlp_insecure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Branch:        DefaultBranch,
		Normalization: DefaultNormalization,
		Format:        DefaultFormat,
		Repo:          DefaultRepo,
		Threshold:     report.DefaultThreshold,
		Top:           report.DefaultTopN,
		Cache:         CacheConfig{File: historycache.DefaultFile, Level: gzip.DefaultCompression},
		Logging:       LoggingConfig{Level: DefaultLogLevel},
	}
}

// ReportOptions returns the options for report.Generate.
func (c *Config) ReportOptions() report.Options {
	return report.Options{
		Normalization: report.Normalization(c.Normalization),
		Threshold:     c.Threshold,
		TopN:          c.Top,
	}
}

// RenderOptions returns the options for render.Render.
func (c *Config) RenderOptions() render.Options {
	return render.Options{Format: render.Format(c.Format), NoColor: c.NoColor}
}

// LogLevel maps the configured level name to a slog level. Quiet maps
// above error so nothing but failures is printed.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case LevelQuiet:
		return slog.LevelError + 1
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration. Every failure matches ErrConfiguration.
func (c *Config) Validate() error {
	err := c.validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return nil
}

func (c *Config) validate() error {
	branch := strings.TrimSpace(c.Branch)
	if branch == "" || strings.HasPrefix(branch, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidBranch, c.Branch)
	}

	err := c.ReportOptions().Validate()
	if err != nil {
		return err
	}

	if c.MaxCommitSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCommitSize, c.MaxCommitSize)
	}

	_, err = render.ParseFormat(c.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	if strings.TrimSpace(c.Cache.File) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidCacheFile)
	}

	if c.Cache.Level < gzip.HuffmanOnly || c.Cache.Level > gzip.BestCompression {
		return fmt.Errorf("%w: %d", ErrInvalidCacheLevel, c.Cache.Level)
	}

	if c.Tuning.ProgressInterval < 0 || c.Tuning.ExistenceCacheSize < 0 {
		return fmt.Errorf("%w: progress_interval=%d existence_cache_size=%d",
			ErrInvalidTuning, c.Tuning.ProgressInterval, c.Tuning.ExistenceCacheSize)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", LevelQuiet:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return nil
}
