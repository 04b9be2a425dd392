package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/bigpipe/pkg/server"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var (
		port     int
		host     string
		noStream bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the demo server",
		Long: `Start the BigPipe demo server.

The demo page streams a simple replace, a run of delayed counters and
pagelets carrying javascript. Append ?bigpipe=0 to any page URL for the
synchronous rendering, or connect to /ws for the websocket stream.

Examples:
  bigpipe serve
  bigpipe serve --port=8080
  bigpipe serve --config=deploy/bigpipe.yaml --no-stream`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if noStream {
				cfg.Pipe.Enabled = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg)

			ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			resolver, err := server.LoadResolver(ctx, cfg.Assets)
			if err != nil {
				return err
			}

			printBanner(cmd)
			success(cmd, "Serving %s", cfg.URL())
			info(cmd, "Metrics:   %v", cfg.Metrics.Enabled)
			info(cmd, "Streaming: %v", cfg.Pipe.Enabled)

			srv := server.New(cfg, server.WithLogger(logger), server.WithResolver(resolver))
			return srv.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Render every page synchronously")

	return cmd
}

// background is used when a command runs without a context, as in tests
// calling RunE directly.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
