package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/bigpipe/internal/config"
	"github.com/vango-dev/bigpipe/pkg/pipe"
)

const (
	chromeUA    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Demo.Counters = 2
	cfg.Demo.Delay = "0s"
	cfg.Demo.Padding = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	return New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func get(s *Server, target, ua string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func TestPageModes(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		ua       string
		disabled bool
		streamed bool
	}{
		{name: "modern browser", target: "/", ua: chromeUA, streamed: true},
		{name: "bot", target: "/", ua: googlebotUA, streamed: false},
		{name: "no user agent", target: "/", streamed: false},
		{name: "override enables for bot", target: "/?bigpipe=1", ua: googlebotUA, streamed: true},
		{name: "override disables", target: "/?bigpipe=0", ua: chromeUA, streamed: false},
		{name: "feature flag off", target: "/", ua: chromeUA, disabled: true, streamed: false},
		{name: "override beats feature flag", target: "/?bigpipe=yes", ua: chromeUA, disabled: true, streamed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Pipe.Enabled = !tt.disabled
			s := newTestServer(t, cfg)

			rr := get(s, tt.target, tt.ua)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
			assert.Len(t, rr.Header().Get(ResponseIDHeader), 36)

			body := rr.Body.String()
			if tt.streamed {
				assert.Equal(t, 2+fixedPagelets, strings.Count(body, "BigPipe.onArrive("))
				assert.True(t, strings.HasSuffix(body, pipe.EndMarker))
				assert.Contains(t, body, `"jsFiles":["/static/test.js"]`)
			} else {
				assert.NotContains(t, body, "BigPipe.onArrive(")
				assert.True(t, strings.HasSuffix(body, "</html>\n"))
				assert.Contains(t, body, `src="/static/test.js"`)
			}
		})
	}
}

func TestPageDryRun(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(s, "/?bigpipe=2", chromeUA)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "BigPipe.onArrive(")
	assert.Contains(t, rr.Body.String(), `<span id="counter0"></span>`)
}

func TestPageFlushesFrames(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(s, "/", chromeUA)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, rr.Flushed)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(s, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())
}

func TestStaticFiles(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(s, "/static/bigpipe.js", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "javascript")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rr.Body.String(), "onArrive")

	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/static/bigpipe.js", nil)
	req.Header.Set("If-None-Match", `W/`+etag)
	cached := httptest.NewRecorder()
	s.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)
	assert.Zero(t, cached.Body.Len())

	head := httptest.NewRecorder()
	s.ServeHTTP(head, httptest.NewRequest(http.MethodHead, "/static/test2.js", nil))
	assert.Equal(t, http.StatusOK, head.Code)
	assert.Zero(t, head.Body.Len())

	assert.Equal(t, http.StatusNotFound, get(s, "/static/missing.js", "").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/static/../embed.go", "").Code)
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"a", "b"`, `"b"`))
	assert.True(t, etagMatches(`W/"a"`, `"a"`))
	assert.False(t, etagMatches(`"a"`, `"b"`))
	assert.False(t, etagMatches("", `"a"`))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	require.Equal(t, http.StatusOK, get(s, "/", chromeUA).Code)

	rr := get(s, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `bigpipe_finalize_total{mode="streamed",status="success"} 1`)
	assert.Contains(t, body, "bigpipe_frames_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusNotFound, get(s, "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, get(s, "/", chromeUA).Code)
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t, testConfig())
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var messages []string
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		assert.Equal(t, websocket.TextMessage, kind)
		messages = append(messages, string(data))
	}

	// Markup, one message per pagelet, end marker.
	require.Len(t, messages, 1+2+fixedPagelets+1)
	assert.True(t, strings.HasPrefix(messages[0], "<h2>"))
	assert.Contains(t, messages[0], `<span id="counter1"></span>`)
	assert.Equal(t, "{\"end\":true}\n", messages[len(messages)-1])

	var ids []string
	for i, msg := range messages[1 : len(messages)-1] {
		var p pipe.Payload
		require.NoError(t, json.Unmarshal([]byte(msg), &p))
		ids = append(ids, p.ID)
		assert.Equal(t, i == 2+fixedPagelets-1, p.IsLast, p.ID)
	}
	assert.Equal(t, "content_replace", ids[0])
	assert.Equal(t, "final_ok", ids[len(ids)-1])
}

func TestWebSocketRejectsPlainRequest(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := get(s, "/ws", chromeUA)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoadResolver(t *testing.T) {
	ctx := context.Background()

	r, err := LoadResolver(ctx, config.AssetsConfig{Prefix: "/static/"})
	require.NoError(t, err)
	assert.Equal(t, "/static/test.js", r.Asset("test.js"))

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"test.js": "test.1a2b.js"}`), 0o644))

	r, err = LoadResolver(ctx, config.AssetsConfig{Manifest: path, Prefix: "/assets/"})
	require.NoError(t, err)
	assert.Equal(t, "/assets/test.1a2b.js", r.Asset("test.js"))
	assert.Equal(t, "https://cdn.example.com/x.js", r.Asset("https://cdn.example.com/x.js"))

	_, err = LoadResolver(ctx, config.AssetsConfig{Manifest: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "E150"), err.Error())
}

func TestServerUsesResolver(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"test.js": "test.1a2b.js"}`), 0o644))
	cfg.Assets.Manifest = path

	r, err := LoadResolver(context.Background(), cfg.Assets)
	require.NoError(t, err)
	s := New(cfg, WithResolver(r), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	rr := get(s, "/?bigpipe=0", chromeUA)
	assert.Contains(t, rr.Body.String(), `src="/static/test.1a2b.js"`)
}

func TestServerShutdown(t *testing.T) {
	s := newTestServer(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s.httpServer = &http.Server{Handler: s}

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpServer.Serve(ln) }()

	// Ensure Serve has started.
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))

	select {
	case err := <-serveErr:
		// http.Server.Serve returns ErrServerClosed on graceful shutdown.
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Serve() to return")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
