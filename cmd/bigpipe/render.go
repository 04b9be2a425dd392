package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pipe"
	"github.com/vango-dev/bigpipe/pkg/server"
)

// Render modes accepted by the render command.
const (
	modeAuto   = "auto"
	modeStream = "stream"
	modeSync   = "sync"
	modeDryRun = "dry-run"
)

// parseMode maps a render mode to the override it forces. Auto leaves the
// decision to the user agent policy.
func parseMode(mode string) (pipe.Override, error) {
	switch strings.ToLower(mode) {
	case modeAuto:
		return pipe.OverrideNone, nil
	case modeStream:
		return pipe.OverrideEnable, nil
	case modeSync:
		return pipe.OverrideDisable, nil
	case modeDryRun:
		return pipe.OverrideDryRun, nil
	default:
		return pipe.OverrideNone, errors.New("E140").Wrap(fmt.Errorf("unknown mode %q", mode))
	}
}

func renderCmd(opts *globalOptions) *cobra.Command {
	var (
		mode      string
		userAgent string
		counters  int
		delay     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the demo page to stdout",
		Long: `Render the demo page once and write the response body to stdout.

Useful for inspecting frames without a browser. In auto mode the user
agent policy decides; an empty user agent is treated as a bot.

Modes:
  auto     decide from --user-agent and the configuration
  stream   force streaming
  sync     force synchronous rendering
  dry-run  write placeholders but no frames

Examples:
  bigpipe render --mode=stream --counters=3
  bigpipe render --user-agent="Mozilla/5.0 ... Firefox/121.0"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := parseMode(mode)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("counters") {
				cfg.Demo.Counters = counters
			}
			if cmd.Flags().Changed("delay") {
				cfg.Demo.Delay = delay.String()
			}
			// A one-shot render has no scrape endpoint.
			cfg.Metrics.Enabled = false
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := background(cmd)
			logger := newLogger(cmd.ErrOrStderr(), cfg)

			resolver, err := server.LoadResolver(ctx, cfg.Assets)
			if err != nil {
				return err
			}
			srv := server.New(cfg, server.WithLogger(logger), server.WithResolver(resolver))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", userAgent)

			engineOpts := srv.EngineOptions()
			if override != pipe.OverrideNone {
				engineOpts = append(engineOpts, pipe.WithOverride(override))
			}
			e := pipe.New(cmd.OutOrStdout(), req, engineOpts...)

			start := time.Now()
			if err := srv.Demo().Render(ctx, e); err != nil {
				return errors.Classify(err)
			}
			logger.Info("page rendered",
				"response_id", e.ID(),
				"streamed", e.Terminated(),
				"pagelets", e.Registry().Count(),
				"duration", time.Since(start),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", modeAuto, "Render mode: auto, stream, sync or dry-run")
	cmd.Flags().StringVarP(&userAgent, "user-agent", "A", "", "User-Agent header used in auto mode")
	cmd.Flags().IntVar(&counters, "counters", 0, "Number of delayed counters (default from config)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay per counter (default from config)")

	return cmd
}
