package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/bigpipe/internal/config"
	"github.com/vango-dev/bigpipe/pkg/assets"
	"github.com/vango-dev/bigpipe/pkg/metrics"
	"github.com/vango-dev/bigpipe/pkg/middleware"
	"github.com/vango-dev/bigpipe/pkg/pipe"
	"github.com/vango-dev/bigpipe/pkg/useragent"
)

// ResponseIDHeader carries the engine's response id on page responses.
const ResponseIDHeader = "X-BigPipe-Response"

// Server is the HTTP/WebSocket server for the demo page.
type Server struct {
	config *config.Config
	demo   *Demo

	policy   pipe.Policy
	resolver assets.Resolver

	// Metrics
	registry  *prometheus.Registry
	collector *metrics.Collector

	tracerProvider trace.TracerProvider

	// WebSocket upgrader
	upgrader websocket.Upgrader

	handler    http.Handler
	httpServer *http.Server

	// base has no component attribute; engines add their own.
	base   *slog.Logger
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.base = l
	}
}

// WithRegistry sets the registry served at the metrics path.
// Default: a fresh registry per server.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithResolver sets the asset resolver. Default: the assets prefix of the
// configuration without a manifest.
func WithResolver(r assets.Resolver) Option {
	return func(s *Server) {
		s.resolver = r
	}
}

// WithPolicy replaces the user agent policy built from the configuration.
func WithPolicy(p pipe.Policy) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// WithTracerProvider sets the tracer provider used when tracing is
// enabled. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// New creates a Server. cfg must have been validated; nil uses the
// defaults.
func New(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.New()
	}

	s := &Server{
		config: cfg,
		demo: &Demo{
			Title:        cfg.Name,
			Counters:     cfg.Demo.Counters,
			Delay:        cfg.DemoDelay(),
			Padding:      cfg.Demo.Padding,
			ClientScript: cfg.Pipe.ClientScript,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.base == nil {
		s.base = slog.Default()
	}
	s.logger = s.base.With("component", "server")

	if s.policy == nil {
		s.policy = useragent.NewPolicy(
			useragent.WithFeature(func(*http.Request) bool { return cfg.Pipe.Enabled }),
			useragent.WithRules(cfg.BrowserRules()...),
		)
	}
	if s.resolver == nil {
		s.resolver = assets.NewPassthroughResolver(cfg.Assets.Prefix)
	}

	switch {
	case !cfg.Tracing.Enabled:
		s.tracerProvider = noop.NewTracerProvider()
	case s.tracerProvider == nil:
		s.tracerProvider = otel.GetTracerProvider()
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.Metrics.Enabled {
		s.collector = metrics.NewCollector(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(s.registry),
			metrics.WithThreshold(cfg.Pipe.Threshold),
		)
	}

	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if s.config.Metrics.Enabled {
		r.Use(middleware.Prometheus(
			middleware.WithNamespace(s.config.Metrics.Namespace),
			middleware.WithRegistry(s.registry),
		))
	}
	r.Use(middleware.OpenTelemetry(
		middleware.WithTracerName(s.config.Tracing.TracerName),
		middleware.WithTracerProvider(s.tracerProvider),
	))

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Method(http.MethodGet, staticPattern(s.config.Assets.Prefix), http.HandlerFunc(s.serveStatic))
	r.Method(http.MethodHead, staticPattern(s.config.Assets.Prefix), http.HandlerFunc(s.serveStatic))
	if s.config.Metrics.Enabled {
		r.Method(http.MethodGet, s.config.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			Registry: s.registry,
		}))
	}

	r.Group(func(r chi.Router) {
		r.Use(pipe.Middleware(s.EngineOptions()...))
		r.Get("/", s.handlePage)
	})
	return r
}

// EngineOptions returns the engine options every response of this server
// uses.
func (s *Server) EngineOptions() []pipe.Option {
	opts := []pipe.Option{
		pipe.WithPolicy(s.policy),
		pipe.WithResolver(s.resolver),
		pipe.WithThreshold(s.config.Pipe.Threshold),
		pipe.WithLogger(s.base),
		pipe.WithTracer(s.tracerProvider.Tracer(s.config.Tracing.TracerName)),
	}
	if s.collector != nil {
		opts = append(opts, pipe.WithRecorderFunc(s.collector.Recorder))
	}
	return opts
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the server and blocks until ctx is done, a shutdown signal
// arrives, or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", "address", s.config.Address(), "streaming", s.config.Pipe.Enabled)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server. In-flight streams get the
// configured shutdown timeout to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout())
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}

// Demo returns the demo page.
func (s *Server) Demo() *Demo {
	return s.demo
}

// Registry returns the metrics registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
