// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ManuGH/ffplaylist/internal/config"
	"github.com/ManuGH/ffplaylist/internal/display"
	"github.com/ManuGH/ffplaylist/internal/feed"
	xglog "github.com/ManuGH/ffplaylist/internal/log"
	"github.com/ManuGH/ffplaylist/internal/metrics"
	"github.com/ManuGH/ffplaylist/internal/supervisor"
	"github.com/ManuGH/ffplaylist/internal/version"
)

var errNoOutput = errors.New("no ffmpeg output arguments given")

type rootFlags struct {
	configPath   string
	ffmpeg       string
	verbose      int
	progress     bool
	logLevel     string
	pollInterval string
	metricsFile  string
}

func newRootCmd(stdin io.Reader, stderr io.Writer) *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "ffplaylist [flags] [--] <ffmpeg output args...>",
		Short: "FFmpeg dynamic playlist input",
		Long: `Feed stdin with your list of media files, one per line. They are played
back to back by a single ffmpeg process reading a chained concat playlist.
Everything after the flags (or after "--") is passed to ffmpeg as output arguments.`,
		Version:       version.String(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := f.overrides(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd, f.configPath, ov, stdin, stderr)
		},
	}

	f.bind(cmd.Flags())
	return cmd
}

func (f *rootFlags) bind(flags *pflag.FlagSet) {
	// Everything after the first positional argument belongs to ffmpeg.
	flags.SetInterspersed(false)
	flags.StringVarP(&f.ffmpeg, "ffmpeg", "e", "", "ffmpeg/avconv executable, can be set using FFMPEG environment variable")
	flags.CountVarP(&f.verbose, "verbose", "v", "verbosity level. -v prints filename, -vv shows ffmpeg output")
	flags.BoolVarP(&f.progress, "progress", "p", false, "show progress bar")
	flags.StringVar(&f.configPath, "config", "", "path to config file (YAML)")
	flags.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, disabled)")
	flags.StringVar(&f.pollInterval, "poll-interval", "", "how often the ffmpeg process is inspected (e.g. 1s)")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write prometheus metrics in textfile format on exit")
}

// overrides converts explicitly given flags into config overrides.
func (f *rootFlags) overrides(cmd *cobra.Command, args []string) (config.Overrides, error) {
	var ov config.Overrides
	flags := cmd.Flags()
	if flags.Changed("ffmpeg") {
		ov.FFmpeg = &f.ffmpeg
	}
	if flags.Changed("verbose") {
		ov.Verbose = &f.verbose
	}
	if flags.Changed("progress") {
		ov.Progress = &f.progress
	}
	if flags.Changed("log-level") {
		ov.LogLevel = &f.logLevel
	}
	if flags.Changed("metrics-file") {
		ov.MetricsFile = &f.metricsFile
	}
	if flags.Changed("poll-interval") {
		d, err := parseDuration(f.pollInterval)
		if err != nil {
			return ov, fmt.Errorf("invalid --poll-interval: %w", err)
		}
		ov.PollInterval = &d
	}
	ov.OutputArgs = outputArgs(args)
	return ov, nil
}

// outputArgs drops a leading "--" left over after flag parsing.
func outputArgs(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	return args
}

func run(cmd *cobra.Command, configPath string, ov config.Overrides, stdin io.Reader, stderr io.Writer) error {
	xglog.Configure(xglog.Config{Output: stderr, Service: "ffplaylist", Version: version.Version})

	cfg, err := config.NewLoader(configPath).Load(ov)
	if err != nil {
		return err
	}
	if len(cfg.OutputArgs) == 0 {
		return errNoOutput
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Output: stderr, Service: "ffplaylist", Version: version.Version})
	ctx := xglog.ContextWithRunID(cmd.Context(), uuid.NewString())
	logger := xglog.WithComponentFromContext(ctx, "cli")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("config_path", configPath).
		Str(xglog.FieldCommand, cfg.FFmpeg).
		Msg("starting")

	disp := display.New(display.Options{Verbose: cfg.Verbose, Progress: cfg.Progress, Out: stderr})
	defer disp.Close()

	m, err := feed.New(ctx, feed.Options{
		Supervisor: supervisor.Options{
			BinPath:     cfg.FFmpeg,
			OutputArgs:  cfg.OutputArgs,
			Verbose:     cfg.Verbose,
			GracePeriod: cfg.GracePeriod,
		},
		TempDir:      cfg.TempDir,
		PollInterval: cfg.PollInterval,
		Reporter:     disp,
	})
	if err != nil {
		return err
	}

	runErr := m.Run(stdin)
	disp.Close()

	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldPath, cfg.MetricsFile).Msg("metrics textfile not written")
	}
	return runErr
}
