// Package server serves the BigPipe demo page.
//
// The server mounts a chi router with request ids, panic recovery,
// Prometheus and OpenTelemetry middleware, and these routes:
//
//   - GET /          the demo page, streamed or rendered synchronously
//   - GET /ws        the demo page body streamed over a websocket
//   - GET /static/*  the client dispatcher and demo scripts
//   - GET /metrics   Prometheus metrics (when enabled)
//   - GET /healthz   liveness probe
//
// Every page response gets its own pipe.Engine from pipe.Middleware. The
// engine consults a useragent.Policy built from the configuration, so bots
// and old browsers get the synchronous page; ?bigpipe=0 and ?bigpipe=1
// force either mode and ?bigpipe=2 writes placeholders only.
//
// # Example Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resolver, err := server.LoadResolver(ctx, cfg.Assets)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := server.New(cfg, server.WithResolver(resolver))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// A Server is safe for concurrent use. Engines are not shared between
// requests; each response renders its pagelets sequentially.
package server
