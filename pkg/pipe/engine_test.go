package pipe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/bigpipe/pkg/assets"
	"github.com/vango-dev/bigpipe/pkg/render"
)

type eventRecorder struct {
	events []string
	mode   string
	frames int
	err    error
}

func (r *eventRecorder) Checkpoint() {
	r.events = append(r.events, "checkpoint")
}

func (r *eventRecorder) RecordFrame(id string, _ int, _ time.Duration) {
	r.events = append(r.events, "frame:"+id)
}

func (r *eventRecorder) RecordFinalize(mode string, frames int, err error) {
	r.mode, r.frames, r.err = mode, frames, err
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func countingProducer(n *int, html string) Producer {
	return func(context.Context) (Content, error) {
		*n++
		return PlainMarkup(html), nil
	}
}

func TestEngineStreamsInPriorityOrder(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil, WithPolicy(Always))
	ctx := context.Background()

	_, err := e.NewPagelet(ctx, "a", Static("A"), WithPriority(20))
	require.NoError(t, err)
	_, err = e.NewPagelet(ctx, "b", Static("B"))
	require.NoError(t, err)
	_, err = e.NewPagelet(ctx, "c", Static("C"))
	require.NoError(t, err)

	require.NoError(t, e.Finalize(ctx, nil))
	out := buf.String()

	ia := strings.Index(out, `<script id="a_1">`)
	ib := strings.Index(out, `<script id="b_2">`)
	ic := strings.Index(out, `<script id="c_3">`)
	require.True(t, ia >= 0 && ib >= 0 && ic >= 0, "missing frames in %q", out)
	assert.Less(t, ia, ib)
	assert.Less(t, ib, ic)

	assert.Equal(t, 1, strings.Count(out, `"isLast":true`))
	assert.Greater(t, strings.Index(out, `"isLast":true`), ic)
	assert.True(t, strings.HasSuffix(out, EndMarker))
	assert.True(t, e.Terminated())
	assert.Equal(t, StateDisabled, e.State())
}

func TestEngineFlushesEveryFrame(t *testing.T) {
	var buf bytes.Buffer
	fw := &render.FlushableWriter{Writer: &buf}
	e := New(fw, nil, WithPolicy(Always))
	ctx := context.Background()

	_, _ = e.Writer().WriteString("<body>")
	_, _ = e.NewPagelet(ctx, "a", Static("A"))
	_, _ = e.NewPagelet(ctx, "b", Static("B"))
	require.NoError(t, e.Finalize(ctx, nil))

	// Page prefix, one flush per frame, end marker.
	require.Equal(t, 4, fw.FlushCount)
	assert.Equal(t, len("<body>"), fw.Marks[0])
	assert.Less(t, fw.Marks[1], fw.Marks[2])
	assert.Equal(t, buf.Len(), fw.Marks[3])
}

func TestEngineProducerRunsOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("streamed", func(t *testing.T) {
		var calls int
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always))
		p, err := e.NewPagelet(ctx, "a", countingProducer(&calls, "x"))
		require.NoError(t, err)
		assert.False(t, p.Executed())

		for range 3 {
			_, err := p.Payload(ctx)
			require.NoError(t, err)
		}
		require.NoError(t, e.Finalize(ctx, nil))
		assert.Equal(t, 1, calls)
	})

	t.Run("synchronous", func(t *testing.T) {
		var calls int
		e := New(&bytes.Buffer{}, nil)
		p, err := e.NewPagelet(ctx, "a", countingProducer(&calls, "x"))
		require.NoError(t, err)
		assert.True(t, p.Executed())
		assert.Equal(t, 1, calls)

		_, err = p.Display(ctx)
		require.NoError(t, err)
		_, err = p.Payload(ctx)
		require.NoError(t, err)
		require.NoError(t, e.Finalize(ctx, nil))
		assert.Equal(t, 1, calls)
	})

	t.Run("failure is memoized", func(t *testing.T) {
		var calls int
		boom := errors.New("boom")
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always))
		p, err := e.NewPagelet(ctx, "a", func(context.Context) (Content, error) {
			calls++
			return nil, boom
		})
		require.NoError(t, err)

		_, err1 := p.Payload(ctx)
		_, err2 := p.Payload(ctx)
		assert.ErrorIs(t, err1, boom)
		assert.ErrorIs(t, err2, boom)
		assert.Equal(t, 1, calls)
	})
}

func TestEngineSynchronousDisplay(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil)
	ctx := context.Background()

	p, err := e.NewPagelet(ctx, "greeting", Static("<b>hi</b>"))
	require.NoError(t, err)
	p.AddInlineScript("x=1;")

	for range 2 {
		html, err := p.Display(ctx)
		require.NoError(t, err)
		assert.Equal(t, "<b>hi</b>", html)
		assert.NotContains(t, html, "<script")
		assert.NotContains(t, html, `id="greeting"`)
	}

	require.NoError(t, e.Finalize(ctx, nil))
	out := buf.String()

	assert.Equal(t, ScriptElement(WrapScript("x=1;")), out)
	assert.Equal(t, 1, strings.Count(out, "try { x=1;"))
	assert.Equal(t, 1, strings.Count(out, "<script"))
	assert.False(t, e.Terminated())
}

func TestEngineSynchronousDisplayIncludesStylesheets(t *testing.T) {
	e := New(&bytes.Buffer{}, nil, WithResolver(assets.NewPassthroughResolver("/static/")))
	ctx := context.Background()

	p, err := e.NewPagelet(ctx, "a", Static("body"))
	require.NoError(t, err)
	p.AddCSS("a.css")

	html, err := p.Display(ctx)
	require.NoError(t, err)
	assert.Equal(t, `<link rel="stylesheet" type="text/css" href="/static/a.css">body`, html)
}

func TestEngineComposedViewScriptOrder(t *testing.T) {
	e := New(&bytes.Buffer{}, nil, WithPolicy(Always))
	ctx := context.Background()

	p, err := e.NewPagelet(ctx, "view", func(context.Context) (Content, error) {
		return ComposedView{Markup: "<p>v</p>", Script: "view();"}, nil
	})
	require.NoError(t, err)
	p.AddContent("<i>more</i>")
	p.AddInlineScript("own();")

	payload, err := p.Payload(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<p>v</p><i>more</i>", payload.InnerHTML)
	assert.Equal(t, "view();own();", payload.JSCode)
	assert.NotNil(t, payload.CSSFiles)
	assert.NotNil(t, payload.JSFiles)
}

func TestEnginePlaceholders(t *testing.T) {
	e := New(&bytes.Buffer{}, nil, WithPolicy(Always))
	ctx := context.Background()

	block, _ := e.NewPagelet(ctx, "block", Static("x"))
	span, _ := e.NewPagelet(ctx, "span", Static("x"), InlineElement())

	html, err := block.Display(ctx)
	require.NoError(t, err)
	assert.Equal(t, `<div id="block"></div>`, html)

	html, err = span.Display(ctx)
	require.NoError(t, err)
	assert.Equal(t, `<span id="span"></span>`, html)

	span.SetInline(false)
	html, _ = span.Display(ctx)
	assert.Equal(t, `<div id="span"></div>`, html)
	assert.False(t, span.Executed())
}

func TestEngineNestedCallerSuppressed(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil, WithPolicy(Always))
	ctx := context.Background()

	outer := NewCaller("layout")
	inner := NewCaller("widget")
	require.True(t, e.RegisterTopCaller(outer))
	require.False(t, e.RegisterTopCaller(inner))
	assert.Same(t, outer, e.TopCaller())

	_, err := e.NewPagelet(ctx, "a", Static("A"))
	require.NoError(t, err)

	require.NoError(t, e.Finalize(ctx, inner))
	assert.Empty(t, buf.String())
	assert.Equal(t, 1, e.Registry().Len())

	require.NoError(t, e.Finalize(ctx, outer))
	assert.Contains(t, buf.String(), `<script id="a_1">`)
	assert.Equal(t, 0, e.Registry().Len())
}

func TestEngineOverride(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		policy    Policy
		streaming bool
	}{
		{"policy accepts", "/", Always, true},
		{"policy rejects", "/", Never, false},
		{"no policy", "/", nil, false},
		{"enable beats policy", "/?bigpipe=1", Never, true},
		{"disable beats policy", "/?bigpipe=0", Always, false},
		{"dry run streams", "/?bigpipe=2", Never, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			e := New(&bytes.Buffer{}, r, WithPolicy(tt.policy))
			assert.Equal(t, tt.streaming, e.Streaming())
		})
	}
}

func TestEnginePolicyConsultedOnce(t *testing.T) {
	var calls int
	policy := PolicyFunc(func(*http.Request) bool {
		calls++
		return true
	})
	e := New(&bytes.Buffer{}, nil, WithPolicy(policy))
	for range 5 {
		e.Streaming()
	}
	assert.Equal(t, 1, calls)
}

func TestEngineDryRun(t *testing.T) {
	var buf bytes.Buffer
	r := httptest.NewRequest(http.MethodGet, "/?bigpipe=2", nil)
	rec := &eventRecorder{}
	e := New(&buf, r, WithRecorder(rec))
	ctx := context.Background()

	var calls int
	p, err := e.NewPagelet(ctx, "a", countingProducer(&calls, "x"))
	require.NoError(t, err)

	html, err := p.Display(ctx)
	require.NoError(t, err)
	assert.Equal(t, `<div id="a"></div>`, html)

	require.NoError(t, e.Finalize(ctx, nil))
	assert.Empty(t, buf.String())
	assert.Zero(t, calls)
	assert.Equal(t, ModeDryRun, rec.mode)
}

func TestEngineEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	rec := &eventRecorder{}
	e := New(&buf, nil, WithPolicy(Always), WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, e.Finalize(ctx, nil))
	assert.Equal(t, StateClosed, e.State())
	assert.Empty(t, buf.String())
	assert.False(t, e.Terminated())
	assert.Equal(t, ModeEmpty, rec.mode)

	require.NoError(t, e.Finalize(ctx, nil))
	assert.Empty(t, buf.String())
}

func TestEngineSecondFinalizeIsNoop(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil, WithPolicy(Always))
	ctx := context.Background()

	_, _ = e.NewPagelet(ctx, "a", Static("A"))
	require.NoError(t, e.Finalize(ctx, nil))
	first := buf.String()

	require.NoError(t, e.Finalize(ctx, nil))
	assert.Equal(t, first, buf.String())
	assert.False(t, e.Streaming())
}

func TestEngineRecordsFirstFinalizeOnly(t *testing.T) {
	rec := &eventRecorder{}
	e := New(&bytes.Buffer{}, nil, WithPolicy(Always), WithRecorder(rec))
	ctx := context.Background()

	_, _ = e.NewPagelet(ctx, "a", Static("A"))
	require.NoError(t, e.Finalize(ctx, nil))
	require.NoError(t, e.Finalize(ctx, nil))

	assert.Equal(t, ModeStreamed, rec.mode)
	assert.Equal(t, 1, rec.frames)
}

func TestEngineCheckpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("fires before first low priority pagelet", func(t *testing.T) {
		rec := &eventRecorder{}
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always), WithRecorder(rec))
		_, _ = e.NewPagelet(ctx, "d", Static("D"), WithPriority(5))
		_, _ = e.NewPagelet(ctx, "c", Static("C"), WithPriority(10))
		_, _ = e.NewPagelet(ctx, "a", Static("A"), WithPriority(30))
		_, _ = e.NewPagelet(ctx, "e", Static("E"), WithPriority(1))
		_, _ = e.NewPagelet(ctx, "b", Static("B"), WithPriority(20))

		require.NoError(t, e.Finalize(ctx, nil))
		assert.Equal(t, []string{"frame:a", "frame:b", "frame:c", "checkpoint", "frame:d", "frame:e"}, rec.events)
		assert.Equal(t, ModeStreamed, rec.mode)
		assert.Equal(t, 5, rec.frames)
		assert.NoError(t, rec.err)
	})

	t.Run("never fires without low priority pagelets", func(t *testing.T) {
		rec := &eventRecorder{}
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always), WithRecorder(rec))
		_, _ = e.NewPagelet(ctx, "a", Static("A"), WithPriority(30))
		_, _ = e.NewPagelet(ctx, "b", Static("B"))

		require.NoError(t, e.Finalize(ctx, nil))
		assert.NotContains(t, rec.events, "checkpoint")
	})

	t.Run("custom threshold", func(t *testing.T) {
		rec := &eventRecorder{}
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always), WithRecorder(rec), WithThreshold(25))
		_, _ = e.NewPagelet(ctx, "a", Static("A"), WithPriority(30))
		_, _ = e.NewPagelet(ctx, "b", Static("B"), WithPriority(20))

		require.NoError(t, e.Finalize(ctx, nil))
		assert.Equal(t, []string{"frame:a", "checkpoint", "frame:b"}, rec.events)
	})
}

func TestEngineRecorderFunc(t *testing.T) {
	var made int
	opts := []Option{WithPolicy(Always), WithRecorderFunc(func() Recorder {
		made++
		return &eventRecorder{}
	})}
	New(&bytes.Buffer{}, nil, opts...)
	New(&bytes.Buffer{}, nil, opts...)
	assert.Equal(t, 2, made)
}

func TestEngineProducerErrorAbortsStream(t *testing.T) {
	var buf bytes.Buffer
	rec := &eventRecorder{}
	e := New(&buf, nil, WithPolicy(Always), WithRecorder(rec))
	ctx := context.Background()
	boom := errors.New("database down")

	_, _ = e.NewPagelet(ctx, "a", Static("A"), WithPriority(20))
	_, _ = e.NewPagelet(ctx, "b", func(context.Context) (Content, error) {
		return nil, boom
	})
	_, _ = e.NewPagelet(ctx, "c", Static("C"), WithPriority(5))

	err := e.Finalize(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var perr *ProducerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "b", perr.ID)

	out := buf.String()
	assert.Contains(t, out, `<script id="a_1">`)
	assert.NotContains(t, out, `id="c_`)
	assert.NotContains(t, out, EndMarker)
	assert.Equal(t, StateDisabled, e.State())
	assert.Equal(t, 1, rec.frames)
	assert.ErrorIs(t, rec.err, boom)
}

func TestEngineReentrantProducer(t *testing.T) {
	e := New(&bytes.Buffer{}, nil, WithPolicy(Always))
	ctx := context.Background()

	var self *Pagelet
	self, err := e.NewPagelet(ctx, "self", func(ctx context.Context) (Content, error) {
		_, err := self.Payload(ctx)
		return nil, err
	})
	require.NoError(t, err)

	err = e.Finalize(ctx, nil)
	assert.ErrorIs(t, err, ErrReentrant)
}

func TestEngineNewPageletErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty id", func(t *testing.T) {
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always))
		_, err := e.NewPagelet(ctx, "", Static("x"))
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("duplicate keeps first", func(t *testing.T) {
		var calls int
		e := New(&bytes.Buffer{}, nil)
		first, err := e.NewPagelet(ctx, "a", countingProducer(&calls, "first"))
		require.NoError(t, err)

		_, err = e.NewPagelet(ctx, "a", countingProducer(&calls, "second"))
		assert.ErrorIs(t, err, ErrDuplicateID)
		assert.Equal(t, 1, calls, "duplicate must be rejected before its producer runs")

		html, err := first.Display(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", html)
	})

	t.Run("eager producer failure", func(t *testing.T) {
		boom := errors.New("boom")
		e := New(&bytes.Buffer{}, nil)
		p, err := e.NewPagelet(ctx, "a", func(context.Context) (Content, error) {
			return nil, boom
		})
		assert.Nil(t, p)
		assert.ErrorIs(t, err, boom)
		assert.False(t, e.Registry().Has("a"))
	})

	t.Run("nil producer", func(t *testing.T) {
		e := New(&bytes.Buffer{}, nil)
		p, err := e.NewPagelet(ctx, "a", nil)
		require.NoError(t, err)
		p.AddContent("only content")

		html, err := p.Display(ctx)
		require.NoError(t, err)
		assert.Equal(t, "only content", html)
	})
}

func TestEngineJavaScriptRouting(t *testing.T) {
	ctx := context.Background()
	resolver := assets.NewPassthroughResolver("/static/")

	t.Run("streamed goes to payload", func(t *testing.T) {
		e := New(&bytes.Buffer{}, nil, WithPolicy(Always), WithResolver(resolver))
		p, _ := e.NewPagelet(ctx, "a", Static("A"))
		p.AddJavaScript("a.js")
		p.AddJavaScript("https://cdn.example.com/b.js")

		payload, err := p.Payload(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/static/a.js", "https://cdn.example.com/b.js"}, payload.JSFiles)
	})

	t.Run("synchronous goes to built-in footer", func(t *testing.T) {
		var buf bytes.Buffer
		e := New(&buf, nil, WithResolver(resolver))
		p, _ := e.NewPagelet(ctx, "a", Static("A"))
		p.AddJavaScript("a.js")
		p.AddJavaScript("a.js")
		p.AddInlineScript("init();")
		_, _ = p.Display(ctx)

		require.NoError(t, e.Finalize(ctx, nil))
		want := `<script type="text/javascript" src="/static/a.js"></script>` + ScriptElement(WrapScript("init();"))
		assert.Equal(t, want, buf.String())
	})

	t.Run("synchronous goes to page footer", func(t *testing.T) {
		var buf bytes.Buffer
		footer := assets.NewFooter()
		e := New(&buf, nil, WithResolver(resolver), WithFooter(footer))
		p, _ := e.NewPagelet(ctx, "a", Static("A"))
		p.AddJavaScript("a.js")

		require.NoError(t, e.Finalize(ctx, nil))
		assert.Empty(t, buf.String())
		assert.Equal(t, []string{"/static/a.js"}, footer.Scripts())
	})
}

func TestEngineLateRegistrationNotStreamed(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil, WithPolicy(Always))
	ctx := context.Background()

	_, err := e.NewPagelet(ctx, "a", func(ctx context.Context) (Content, error) {
		if _, err := e.NewPagelet(ctx, "late", Static("L")); err != nil {
			return nil, err
		}
		return PlainMarkup("A"), nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Finalize(ctx, nil))
	out := buf.String()
	assert.Contains(t, out, `"isLast":true`)
	assert.NotContains(t, out, "late_")
	assert.Equal(t, 1, e.Registry().Len())
}

func TestEngineTransportError(t *testing.T) {
	e := New(failingWriter{}, nil, WithPolicy(Always))
	ctx := context.Background()
	_, _ = e.NewPagelet(ctx, "a", Static("A"))

	err := e.Finalize(ctx, nil)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "a", terr.ID)
	assert.Equal(t, StateDisabled, e.State())
}

func TestEngineDisableAfterResolve(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, nil, WithPolicy(Always))
	ctx := context.Background()

	require.True(t, e.Streaming())
	e.Disable()
	assert.False(t, e.Streaming())

	var calls int
	_, err := e.NewPagelet(ctx, "a", countingProducer(&calls, "x"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEngineResponseID(t *testing.T) {
	e := New(&bytes.Buffer{}, nil)
	assert.Len(t, e.ID(), 36)

	e = New(&bytes.Buffer{}, nil, WithResponseID("req-1"))
	assert.Equal(t, "req-1", e.ID())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "undecided", StateUndecided.String())
	assert.Equal(t, "rendering", StateRendering.String())
	assert.Equal(t, "State(9)", State(9).String())
}
