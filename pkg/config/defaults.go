package config

import (
	"strings"
	"time"
)

// Default values for cache, fetch, preload and visibility settings. These
// mirror the package-level defaults so a config-driven deployment and a
// zero-config library embed behave identically.
const (
	DefaultSweepInterval      = 5 * time.Minute
	DefaultSweepKeep          = 100
	DefaultFetchTimeout       = 10 * time.Second
	DefaultPreloadConcurrency = 3
	DefaultRootMargin         = 50
	DefaultMetricsPort        = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyCacheDefaults(&cfg.Cache)
	applyFetchDefaults(&cfg.Fetch)
	applyPreloadDefaults(&cfg.Preload)
	applyVisibilityDefaults(&cfg.Visibility)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyCacheDefaults sets retention and sweep defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.EvictionPolicy == "" {
		cfg.EvictionPolicy = "fifo"
	}
	cfg.EvictionPolicy = strings.ToLower(cfg.EvictionPolicy)

	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.SweepKeep == 0 {
		cfg.SweepKeep = DefaultSweepKeep
	}
}

// applyFetchDefaults sets scheduler defaults.
func applyFetchDefaults(cfg *FetchConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
}

// applyPreloadDefaults sets warm-up defaults.
func applyPreloadDefaults(cfg *PreloadConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultPreloadConcurrency
	}
}

// applyVisibilityDefaults sets gating defaults.
func applyVisibilityDefaults(cfg *VisibilityConfig) {
	if cfg.RootMargin == 0 {
		cfg.RootMargin = DefaultRootMargin
	}
	// Threshold 0 means any overlap, which is the intended default.
}

// GetDefaultConfig returns a fully-populated default configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
