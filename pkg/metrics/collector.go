// Package metrics exports pagelet streaming metrics to Prometheus.
//
// A Collector is created once per process. Every response gets its own
// recorder from Collector.Recorder, which the engine feeds with its
// checkpoint, frame and finalize signals:
//
//	c := metrics.NewCollector(metrics.WithNamespace("shop"))
//	mw := pipe.Middleware(pipe.WithRecorderFunc(c.Recorder))
//
// Metrics collected:
//   - bigpipe_checkpoint_seconds: time until the first low priority pagelet starts
//   - bigpipe_frame_duration_seconds: producer plus encode time per frame, by priority class
//   - bigpipe_frames_total: frames written, by priority class
//   - bigpipe_finalize_total: finalize outcomes, by mode and status
//   - bigpipe_errors_total: aborted renders, by error type
//   - bigpipe_response_duration_seconds: time from engine creation to finalize
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "bigpipe").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Threshold splits frames into the "high" and "low" priority classes.
	// Default: pipe.HighPriorityThreshold
	Threshold int
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// WithThreshold sets the priority that separates high from low frames.
func WithThreshold(priority int) Option {
	return func(c *Config) {
		c.Threshold = priority
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "bigpipe",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
		Threshold: pipe.HighPriorityThreshold,
	}
}

// Collector owns the registered metrics.
type Collector struct {
	threshold int

	checkpoint       prometheus.Histogram
	frameDuration    *prometheus.HistogramVec
	framesTotal      *prometheus.CounterVec
	finalizeTotal    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	responseDuration prometheus.Histogram
}

// NewCollector registers the metrics with the configured registry. It
// panics if they are already registered there, like promauto does.
func NewCollector(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		threshold: config.Threshold,

		checkpoint: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "checkpoint_seconds",
			Help:        "Time from response start until the first low priority pagelet starts rendering",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		frameDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_duration_seconds",
			Help:        "Time spent producing and writing a single pagelet frame",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"class"}),

		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of pagelet frames streamed",
			ConstLabels: config.ConstLabels,
		}, []string{"class"}),

		finalizeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "finalize_total",
			Help:        "Total number of finalized responses by mode and status",
			ConstLabels: config.ConstLabels,
		}, []string{"mode", "status"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of aborted renders by error type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		responseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "response_duration_seconds",
			Help:        "Time from engine creation until finalize completed",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

// Recorder returns a recorder for one response. Its clock starts now, so
// call it when the response's engine is created. The signature matches
// pipe.WithRecorderFunc.
func (c *Collector) Recorder() pipe.Recorder {
	return &Recorder{c: c, start: time.Now()}
}

func (c *Collector) class(priority int) string {
	if priority >= c.threshold {
		return "high"
	}
	return "low"
}

// Recorder feeds one response's signals into its Collector.
type Recorder struct {
	c     *Collector
	start time.Time
}

var (
	_ pipe.FrameRecorder    = (*Recorder)(nil)
	_ pipe.FinalizeRecorder = (*Recorder)(nil)
)

// Checkpoint implements pipe.Recorder.
func (r *Recorder) Checkpoint() {
	r.c.checkpoint.Observe(time.Since(r.start).Seconds())
}

// RecordFrame implements pipe.FrameRecorder.
func (r *Recorder) RecordFrame(_ string, priority int, elapsed time.Duration) {
	class := r.c.class(priority)
	r.c.framesTotal.WithLabelValues(class).Inc()
	r.c.frameDuration.WithLabelValues(class).Observe(elapsed.Seconds())
}

// RecordFinalize implements pipe.FinalizeRecorder.
func (r *Recorder) RecordFinalize(mode string, _ int, err error) {
	status := "success"
	if err != nil {
		status = "error"
		r.c.errorsTotal.WithLabelValues(errorType(err)).Inc()
	}
	r.c.finalizeTotal.WithLabelValues(mode, status).Inc()
	r.c.responseDuration.Observe(time.Since(r.start).Seconds())
}

// errorType keeps the error label low-cardinality.
func errorType(err error) string {
	var producerErr *pipe.ProducerError
	var transportErr *pipe.TransportError
	switch {
	case errors.Is(err, pipe.ErrReentrant):
		return "reentrant"
	case errors.As(err, &producerErr):
		return "producer"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "internal"
	}
}
