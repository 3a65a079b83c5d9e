// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Environment variables read by the loader.
const (
	EnvFFmpeg       = "FFMPEG"
	EnvVerbose      = "FFPLAYLIST_VERBOSE"
	EnvProgress     = "FFPLAYLIST_PROGRESS"
	EnvPollInterval = "FFPLAYLIST_POLL_INTERVAL"
	EnvGracePeriod  = "FFPLAYLIST_GRACE_PERIOD"
	EnvTempDir      = "FFPLAYLIST_TEMP_DIR"
	EnvMetricsFile  = "FFPLAYLIST_METRICS_FILE"
	EnvLogLevel     = "LOG_LEVEL"
)

// Minimum accepted poll interval.
const MinPollInterval = 100 * time.Millisecond

// Config is the effective runtime configuration.
type Config struct {
	// FFmpeg is the consumer binary, resolved through PATH when not absolute.
	FFmpeg string `yaml:"ffmpeg"`
	// Verbose 0 is silent, 1 prints each file, 2 passes consumer output through.
	Verbose  int  `yaml:"verbose"`
	Progress bool `yaml:"progress"`
	// OutputArgs follow the fixed input arguments verbatim.
	OutputArgs []string `yaml:"outputArgs"`

	PollInterval time.Duration `yaml:"pollInterval"`
	GracePeriod  time.Duration `yaml:"gracePeriod"`
	TempDir      string        `yaml:"tempDir"`
	MetricsFile  string        `yaml:"metricsFile"`
	LogLevel     string        `yaml:"logLevel"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		FFmpeg:       "ffmpeg",
		PollInterval: time.Second,
		GracePeriod:  time.Second,
		LogLevel:     "warn",
	}
}

// Overrides carries command line values. Nil fields were not given.
type Overrides struct {
	FFmpeg       *string
	Verbose      *int
	Progress     *bool
	PollInterval *time.Duration
	MetricsFile  *string
	LogLevel     *string
	OutputArgs   []string
}

func (o Overrides) apply(cfg *Config) {
	if o.FFmpeg != nil {
		cfg.FFmpeg = *o.FFmpeg
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
	if o.Progress != nil {
		cfg.Progress = *o.Progress
	}
	if o.PollInterval != nil {
		cfg.PollInterval = *o.PollInterval
	}
	if o.MetricsFile != nil {
		cfg.MetricsFile = *o.MetricsFile
	}
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}
	if len(o.OutputArgs) > 0 {
		cfg.OutputArgs = append([]string(nil), o.OutputArgs...)
	}
}
