package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = ".didiforget"
	configType = "yaml"
	envPrefix  = "DIDIFORGET"
)

// Flag names.
const (
	FlagConfig          = "config"
	FlagBranch          = "master"
	FlagThreshold       = "threshold"
	FlagTop             = "top"
	FlagNormalize       = "normalize"
	FlagMaxCommitSize   = "max-commit-size"
	FlagFormat          = "format"
	FlagNoColor         = "no-color"
	FlagCache           = "cache"
	FlagCacheFile       = "cache-file"
	FlagCacheTempDir    = "cache-temp-dir"
	FlagCacheLevel      = "cache-level"
	FlagProgress        = "progress-interval"
	FlagRepo            = "repo"
	FlagLogLevel        = "log-level"
	FlagLogJSON         = "log-json"
	FlagQuiet           = "quiet"
	FlagVerbose         = "verbose"
	FlagOTLPEndpoint    = "otlp-endpoint"
	FlagOTLPInsecure    = "otlp-insecure"
	FlagOTLPHeaders     = "otlp-headers"
	FlagMetricsTextfile = "metrics-textfile"
)

// flagKeys binds flag names to configuration keys.
var flagKeys = map[string]string{
	FlagBranch:          "branch",
	FlagThreshold:       "threshold",
	FlagTop:             "top",
	FlagNormalize:       "normalization",
	FlagMaxCommitSize:   "max_commit_size",
	FlagFormat:          "format",
	FlagNoColor:         "no_color",
	FlagCache:           "cache.enabled",
	FlagCacheFile:       "cache.file",
	FlagCacheTempDir:    "cache.temp_dir",
	FlagCacheLevel:      "cache.level",
	FlagProgress:        "tuning.progress_interval",
	FlagRepo:            "repo",
	FlagLogLevel:        "logging.level",
	FlagLogJSON:         "logging.json",
	FlagOTLPEndpoint:    "telemetry.otlp_endpoint",
	FlagOTLPInsecure:    "telemetry.otlp_insecure",
	FlagOTLPHeaders:     "telemetry.otlp_headers",
	FlagMetricsTextfile: "telemetry.metrics_textfile",
}

// RegisterFlags adds every configuration flag to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.String(FlagConfig, "", "config file (default ./"+configName+"."+configType+")")
	fs.StringP(FlagBranch, "m", d.Branch, "analyze against branch")
	fs.Float64P(FlagThreshold, "t", d.Threshold, "minimum confidence to report, within [0, 1]")
	fs.IntP(FlagTop, "n", d.Top, "coupled files reported per changed file")
	fs.String(FlagNormalize, d.Normalization, "confidence denominator: coupled or changed")
	fs.Int(FlagMaxCommitSize, d.MaxCommitSize, "skip commits touching more files than this (0 disables)")
	fs.StringP(FlagFormat, "f", d.Format, "output format: table, csv, json or yaml")
	fs.Bool(FlagNoColor, d.NoColor, "disable coloured table output")
	fs.BoolP(FlagCache, "c", d.Cache.Enabled, "cache the commit log")
	fs.String(FlagCacheFile, d.Cache.File, "path to the cache file")
	fs.String(FlagCacheTempDir, d.Cache.TempDir, "directory for the in-flight cache file (default os temp dir)")
	fs.Int(FlagCacheLevel, d.Cache.Level, "gzip level for the cache file, -2 (huffman only) to 9")
	fs.Int(FlagProgress, d.Tuning.ProgressInterval, "commits between debug progress records (0 uses the default)")
	fs.StringP(FlagRepo, "C", d.Repo, "repository to analyze")
	fs.String(FlagLogLevel, d.Logging.Level, "log level: debug, info, warn, error or quiet")
	fs.Bool(FlagLogJSON, d.Logging.JSON, "log as JSON")
	fs.BoolP(FlagQuiet, "q", false, "reduce logging")
	fs.BoolP(FlagVerbose, "v", false, "verbose logging")
	fs.String(FlagOTLPEndpoint, d.Telemetry.OTLPEndpoint, "OTLP gRPC endpoint for traces and metrics")
	fs.Bool(FlagOTLPInsecure, d.Telemetry.OTLPInsecure, "disable TLS for the OTLP endpoint")
	fs.String(FlagOTLPHeaders, d.Telemetry.OTLPHeaders, "OTLP gRPC headers as key=value,key=value")
	fs.String(FlagMetricsTextfile, d.Telemetry.MetricsTextfile, "write Prometheus metrics to this file on exit")
}

// Load builds the configuration. fs may be nil; when it carries the flags
// from RegisterFlags, changed flags take precedence over everything else.
// A missing config file is not an error unless it was named explicitly.
func Load(fs *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	configPath := ""

	if fs != nil {
		err := bindFlags(viperCfg, fs)
		if err != nil {
			return nil, err
		}

		configPath, _ = fs.GetString(FlagConfig)
	}

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	cfg := Default()

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	if fs != nil {
		applyVerbosity(&cfg, fs)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

func setDefaults(viperCfg *viper.Viper) {
	d := Default()

	viperCfg.SetDefault("branch", d.Branch)
	viperCfg.SetDefault("threshold", d.Threshold)
	viperCfg.SetDefault("top", d.Top)
	viperCfg.SetDefault("normalization", d.Normalization)
	viperCfg.SetDefault("max_commit_size", d.MaxCommitSize)
	viperCfg.SetDefault("format", d.Format)
	viperCfg.SetDefault("no_color", d.NoColor)
	viperCfg.SetDefault("repo", d.Repo)

	viperCfg.SetDefault("cache.enabled", d.Cache.Enabled)
	viperCfg.SetDefault("cache.file", d.Cache.File)
	viperCfg.SetDefault("cache.temp_dir", d.Cache.TempDir)
	viperCfg.SetDefault("cache.level", d.Cache.Level)

	viperCfg.SetDefault("tuning.progress_interval", d.Tuning.ProgressInterval)
	viperCfg.SetDefault("tuning.existence_cache_size", d.Tuning.ExistenceCacheSize)

	viperCfg.SetDefault("logging.level", d.Logging.Level)
	viperCfg.SetDefault("logging.json", d.Logging.JSON)

	viperCfg.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_insecure", d.Telemetry.OTLPInsecure)
	viperCfg.SetDefault("telemetry.otlp_headers", d.Telemetry.OTLPHeaders)
	viperCfg.SetDefault("telemetry.metrics_textfile", d.Telemetry.MetricsTextfile)
}

func bindFlags(viperCfg *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

// applyVerbosity lets -q and -v override the level; -q wins.
func applyVerbosity(cfg *Config, fs *pflag.FlagSet) {
	verbose, _ := fs.GetBool(FlagVerbose)
	if verbose {
		cfg.Logging.Level = "debug"
	}

	quiet, _ := fs.GetBool(FlagQuiet)
	if quiet {
		cfg.Logging.Level = LevelQuiet
	}
}
