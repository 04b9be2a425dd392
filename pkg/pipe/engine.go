package pipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/bigpipe/pkg/assets"
	"github.com/vango-dev/bigpipe/pkg/render"
)

const (
	// DefaultPriority is the priority of pagelets created without
	// WithPriority.
	DefaultPriority = 10

	// HighPriorityThreshold separates high-priority pagelets from the
	// rest. The recorder checkpoint fires when the first pagelet below it
	// starts rendering.
	HighPriorityThreshold = 10
)

const tracerName = "github.com/vango-dev/bigpipe/pkg/pipe"

// Finalize outcomes reported to a FinalizeRecorder.
const (
	ModeStreamed = "streamed"
	ModeSync     = "sync"
	ModeDryRun   = "dry_run"
	ModeEmpty    = "empty"
)

// State is the render state of a response.
type State int

const (
	StateUndecided State = iota
	StateEnabled
	StateDisabled
	StateRendering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUndecided:
		return "undecided"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateRendering:
		return "rendering"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FooterAssets collects external scripts the page emits in its footer.
// *assets.Footer implements it.
type FooterAssets interface {
	AddFooterScript(src string)
}

// Engine drives the pagelets of a single response. It decides once
// whether the response is streamed, registers pagelets and, on Finalize,
// either streams them in priority order or emits the scripts queued by
// synchronously rendered pagelets.
//
// An Engine belongs to one response and is not safe for concurrent use.
type Engine struct {
	id     string
	stream *render.Stream
	req    *http.Request

	policy   Policy
	override Override
	state    State

	registry *Registry
	guard    Guard
	scripts  ScriptQueue

	footer    FooterAssets
	ownFooter *assets.Footer
	resolver  assets.Resolver
	encoder   FrameEncoder

	recorder  Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
	threshold int

	frameSeq     int
	checkpointed bool
	terminated   bool
	finalized    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the capability policy. Without one, responses are
// rendered synchronously unless the request overrides it.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithOverride replaces the override parsed from the request.
func WithOverride(o Override) Option {
	return func(e *Engine) {
		e.override = o
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRecorderFunc creates a fresh recorder for every engine. Use it when
// an option set is shared by all requests, as with Middleware.
func WithRecorderFunc(fn func() Recorder) Option {
	return func(e *Engine) {
		e.recorder = fn()
	}
}

// WithFooter hands footer scripts to the page layout. Without it the
// engine keeps its own collector and writes the scripts itself when a
// synchronous response is finalized.
func WithFooter(f FooterAssets) Option {
	return func(e *Engine) {
		e.footer = f
	}
}

// WithResolver resolves pagelet asset references to URLs.
func WithResolver(r assets.Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithEncoder sets the frame encoder. Default: ScriptFrames.
func WithEncoder(enc FrameEncoder) Option {
	return func(e *Engine) {
		e.encoder = enc
	}
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithThreshold changes HighPriorityThreshold for this engine.
func WithThreshold(priority int) Option {
	return func(e *Engine) {
		e.threshold = priority
	}
}

// WithResponseID sets the id used in logs and spans instead of a
// generated UUIDv7.
func WithResponseID(id string) Option {
	return func(e *Engine) {
		e.id = id
	}
}

// New creates the engine for one response written to w. r may be nil when
// rendering outside of an HTTP request; the override then defaults to
// none and the policy receives nil.
func New(w io.Writer, r *http.Request, opts ...Option) *Engine {
	e := &Engine{
		stream:    render.NewStream(w),
		req:       r,
		override:  ParseOverride(r),
		registry:  NewRegistry(),
		encoder:   ScriptFrames{},
		threshold: HighPriorityThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.id == "" {
		e.id = uuid.Must(uuid.NewV7()).String()
	}
	if e.footer == nil {
		e.ownFooter = assets.NewFooter()
		e.footer = e.ownFooter
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "bigpipe", "response_id", e.id)
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// ID returns the response id.
func (e *Engine) ID() string { return e.id }

// State returns the current state without resolving it.
func (e *Engine) State() State { return e.state }

// Override returns the effective override.
func (e *Engine) Override() Override { return e.override }

// Registry returns the pagelet registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Logger returns the response-scoped logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Writer returns the flush-aware writer the engine streams to. Page code
// should write through it so that its bytes precede the frames.
func (e *Engine) Writer() *render.Stream { return e.stream }

// Terminated reports whether a stream wrote its end marker. Page layouts
// close the html element themselves only when it did not.
func (e *Engine) Terminated() bool { return e.terminated }

// Streaming reports whether pagelets are streamed. The first call
// resolves the mode; it stays fixed for the response except that a
// completed stream switches the engine to disabled.
func (e *Engine) Streaming() bool {
	if e.state == StateUndecided {
		e.resolve()
	}
	return e.state == StateEnabled || e.state == StateRendering
}

func (e *Engine) resolve() {
	var streaming bool
	source := "override"
	switch e.override {
	case OverrideEnable, OverrideDryRun:
		streaming = true
	case OverrideDisable:
		streaming = false
	default:
		source = "policy"
		if e.policy != nil {
			streaming = e.policy.ShouldStream(e.req)
		}
	}

	if streaming {
		e.state = StateEnabled
	} else {
		e.state = StateDisabled
	}
	e.logger.Debug("render mode resolved", "streaming", streaming, "source", source, "override", e.override.String())
}

// Disable switches the response to synchronous rendering. Pagelets created
// afterwards run immediately.
func (e *Engine) Disable() {
	if e.state == StateClosed || e.state == StateRendering {
		return
	}
	e.state = StateDisabled
}

// RegisterTopCaller adopts c as the outermost caller if none is set yet
// and reports whether it did.
func (e *Engine) RegisterTopCaller(c *Caller) bool {
	return e.guard.Register(c)
}

// TopCaller returns the outermost caller, or nil.
func (e *Engine) TopCaller() *Caller {
	return e.guard.Top()
}

// NewPagelet creates and registers a pagelet. When the response is not
// streamed the producer runs right away; if it fails the error is
// returned and the pagelet is not registered.
func (e *Engine) NewPagelet(ctx context.Context, id string, producer Producer, opts ...PageletOption) (*Pagelet, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if e.registry.Has(id) {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}

	p := &Pagelet{
		engine:   e,
		id:       id,
		priority: DefaultPriority,
		producer: producer,
	}
	for _, opt := range opts {
		opt(p)
	}

	if !e.Streaming() {
		if _, err := p.resolve(ctx); err != nil {
			e.logger.Error("pagelet producer failed", "pagelet", id, "error", err)
			return nil, err
		}
	}

	if err := e.registry.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Finalize completes the response.
//
// Calls from a caller other than the registered outermost one return
// immediately; calls with a nil caller always proceed. A synchronous
// response gets its footer scripts and queued inline scripts. A streamed
// response gets every pending pagelet as one flushed frame, in priority
// order, followed by EndMarker. After a stream the engine is disabled, so
// further calls are harmless.
//
// A producer error aborts the stream and is returned as *ProducerError;
// frames already flushed stay with the client.
func (e *Engine) Finalize(ctx context.Context, caller *Caller) (err error) {
	if !e.guard.Allows(caller) {
		e.logger.Debug("finalize skipped for nested caller", "caller", caller.String(), "top", e.guard.Top().String())
		return nil
	}
	if e.state == StateRendering {
		e.logger.Warn("finalize called while rendering", "caller", caller.String())
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "bigpipe.finalize",
		trace.WithAttributes(attribute.String("bigpipe.response_id", e.id)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !e.Streaming() {
		span.SetAttributes(attribute.String("bigpipe.mode", ModeSync))
		err = e.finishSync()
		e.recordFinalize(ModeSync, 0, err)
		return err
	}

	if e.override == OverrideDryRun {
		span.SetAttributes(attribute.String("bigpipe.mode", ModeDryRun))
		e.logger.Debug("dry run, nothing rendered", "pending", e.registry.Len())
		e.recordFinalize(ModeDryRun, 0, nil)
		return nil
	}

	start := time.Now()
	frames, err := e.streamPagelets(ctx)
	mode := ModeStreamed
	if e.state == StateClosed {
		mode = ModeEmpty
	}
	span.SetAttributes(
		attribute.String("bigpipe.mode", mode),
		attribute.Int("bigpipe.frames", frames),
	)
	e.recordFinalize(mode, frames, err)
	if err == nil {
		e.logger.Debug("stream finished", "frames", frames, "duration", time.Since(start))
	}
	return err
}

// finishSync writes the footer scripts collected by the engine and the
// queued inline scripts, in that order.
func (e *Engine) finishSync() error {
	if e.ownFooter != nil {
		for src := range e.ownFooter.Drain() {
			tag := `<script type="text/javascript" src="` + render.EscapeAttr(src) + `"></script>`
			if _, err := e.stream.WriteString(tag); err != nil {
				return &TransportError{Err: err}
			}
		}
	}
	for source := range e.scripts.Drain() {
		if _, err := e.stream.WriteString(ScriptElement(source)); err != nil {
			return &TransportError{Err: err}
		}
	}
	e.stream.Flush()
	return nil
}

func (e *Engine) streamPagelets(ctx context.Context) (int, error) {
	e.state = StateRendering

	// Everything the page wrote so far goes out before the first
	// producer runs.
	e.stream.Flush()

	total := e.registry.Len()
	if total == 0 {
		e.state = StateClosed
		return 0, nil
	}

	frames := 0
	for p := range e.registry.Drain() {
		if !e.checkpointed && p.priority < e.threshold {
			e.checkpoint()
		}

		start := time.Now()
		payload, err := e.renderPagelet(ctx, p)
		if err != nil {
			e.state = StateDisabled
			return frames, err
		}
		if frames+1 >= total {
			payload.IsLast = true
		}

		e.frameSeq++
		if err := e.encoder.EncodeFrame(e.stream, e.frameSeq, payload); err != nil {
			e.state = StateDisabled
			return frames, &TransportError{ID: p.id, Err: err}
		}
		e.stream.Flush()
		frames++

		if fr, ok := e.recorder.(FrameRecorder); ok {
			fr.RecordFrame(p.id, p.priority, time.Since(start))
		}
	}

	e.state = StateDisabled
	if n := e.registry.Len(); n > 0 {
		e.logger.Warn("pagelets registered during the stream were not rendered", "count", n)
	}

	if err := e.encoder.EncodeEnd(e.stream); err != nil {
		return frames, &TransportError{Err: err}
	}
	e.terminated = true
	e.stream.Flush()
	return frames, nil
}

func (e *Engine) renderPagelet(ctx context.Context, p *Pagelet) (Payload, error) {
	ctx, span := e.tracer.Start(ctx, "bigpipe.pagelet",
		trace.WithAttributes(
			attribute.String("bigpipe.pagelet.id", p.id),
			attribute.Int("bigpipe.pagelet.priority", p.priority),
		),
	)
	defer span.End()

	payload, err := p.Payload(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("pagelet producer failed", "pagelet", p.id, "error", err)
	}
	return payload, err
}

func (e *Engine) checkpoint() {
	e.checkpointed = true
	if e.recorder != nil {
		e.recorder.Checkpoint()
	}
}

// recordFinalize reports only the first finalize of a response; later
// calls, such as the one Middleware makes after the handler, are
// bookkeeping.
func (e *Engine) recordFinalize(mode string, frames int, err error) {
	if e.finalized {
		return
	}
	e.finalized = true
	if fr, ok := e.recorder.(FinalizeRecorder); ok {
		fr.RecordFinalize(mode, frames, err)
	}
}

func (e *Engine) asset(file string) string {
	if e.resolver == nil {
		return file
	}
	return e.resolver.Asset(file)
}

// assetList resolves files into a fresh, never nil, slice so that payloads
// always encode arrays.
func (e *Engine) assetList(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, e.asset(f))
	}
	return out
}
