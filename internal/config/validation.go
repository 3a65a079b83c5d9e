// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/ffplaylist/internal/validate"
)

// Validate validates a Config using the centralized validation package
func Validate(cfg Config) error {
	v := validate.New()

	v.NotEmpty("ffmpeg", cfg.FFmpeg)
	v.NonNegative("verbose", cfg.Verbose)
	v.MinDuration("pollInterval", cfg.PollInterval, MinPollInterval)
	v.PositiveDuration("gracePeriod", cfg.GracePeriod)
	v.ExistingDirectory("tempDir", cfg.TempDir)
	v.OneOf("logLevel", cfg.LogLevel, validate.LogLevels)

	return v.Err()
}
