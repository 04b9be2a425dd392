// Package middleware provides net/http observability middleware for
// servers that stream pagelets.
//
// # OpenTelemetry
//
// OpenTelemetry starts a server span for each request and stores it in
// the request context, so the spans the pipe engine creates for finalize
// and for every pagelet become its children:
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(middleware.WithTracerName("shop")))
//
// # Prometheus Metrics
//
// Prometheus counts requests and observes their duration. Streamed
// responses stay flushable because the response writer is wrapped with
// chi's WrapResponseWriter, which keeps http.Flusher:
//
//	r.Use(middleware.Prometheus(middleware.WithNamespace("shop")))
//	r.Handle("/metrics", promhttp.Handler())
//
// Durations cover the whole response including every streamed frame, not
// only the time to first byte.
package middleware
