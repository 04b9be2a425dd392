package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// wsWriteTimeout bounds a single websocket message write.
const wsWriteTimeout = 10 * time.Second

// messageWriter buffers writes and sends everything written since the
// last flush as one text message, so each streamed frame arrives as its
// own message.
type messageWriter struct {
	conn    *websocket.Conn
	buf     bytes.Buffer
	timeout time.Duration
	sent    int

	// First send error. Writes fail with it afterwards, which is how the
	// engine learns the client is gone.
	err error
}

func (m *messageWriter) Write(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.buf.Write(p)
}

// Flush implements http.Flusher.
func (m *messageWriter) Flush() {
	if m.err != nil || m.buf.Len() == 0 {
		return
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.timeout))
	if err := m.conn.WriteMessage(websocket.TextMessage, m.buf.Bytes()); err != nil {
		m.err = err
		return
	}
	m.sent++
	m.buf.Reset()
}

// handleWebSocket streams the demo page body over a websocket. The first
// message is the markup with placeholders, each following message one
// JSON payload, and the last one {"end":true}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	mw := &messageWriter{conn: conn, timeout: wsWriteTimeout}
	opts := append(s.EngineOptions(),
		pipe.WithEncoder(pipe.JSONFrames{}),
		pipe.WithOverride(pipe.OverrideEnable),
	)
	e := pipe.New(mw, r, opts...)

	demo := s.demo
	if r.URL.Query().Has("disable_padding") {
		demo = demo.WithoutPadding()
	}

	ctx := r.Context()
	err = demo.RenderBody(ctx, e)
	if err == nil {
		err = e.Finalize(ctx, nil)
	}
	if err != nil {
		s.logRenderError(e, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "render failed"),
			time.Now().Add(wsWriteTimeout))
		return
	}

	e.Logger().Debug("websocket stream finished", "messages", mw.sent)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}
