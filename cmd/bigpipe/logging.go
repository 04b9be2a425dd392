package main

import (
	stderrors "errors"
	"io"
	"log/slog"
	"strings"

	"github.com/vango-dev/bigpipe/internal/config"
	"github.com/vango-dev/bigpipe/internal/errors"
)

// loadConfig reads the configuration named by --config, or the one found
// from the working directory. Without any file the defaults apply. Flag
// overrides for logging are applied before validation.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		var pe *errors.PipeError
		if stderrors.As(err, &pe) && pe.Code == "E141" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Log.Level = strings.ToLower(opts.logLevel)
	}
	if opts.logFormat != "" {
		cfg.Log.Format = strings.ToLower(opts.logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger described by cfg.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
