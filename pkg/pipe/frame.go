package pipe

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/vango-dev/bigpipe/pkg/render"
)

const (
	// ClientEntryPoint is the client function every streamed frame calls.
	ClientEntryPoint = "BigPipe.onArrive"

	// EndMarker closes a streamed document. The page's own closing html
	// tag is never written when a stream has run.
	EndMarker = "</html><!--html end tag from bigpipe renderer-->"
)

// Payload is the wire form of a rendered pagelet.
type Payload struct {
	ID        string   `json:"id"`
	InnerHTML string   `json:"innerHTML"`
	CSSFiles  []string `json:"cssFiles"`
	JSFiles   []string `json:"jsFiles"`
	JSCode    string   `json:"jsCode"`
	IsLast    bool     `json:"isLast,omitempty"`
}

// FrameEncoder writes pagelet payloads to a transport.
type FrameEncoder interface {
	// EncodeFrame writes one payload. seq is unique within the response.
	EncodeFrame(w io.Writer, seq int, p Payload) error

	// EncodeEnd writes the marker that closes the stream.
	EncodeEnd(w io.Writer) error
}

// ScriptFrames is the default encoder for HTML responses. Each payload
// becomes a script element calling ClientEntryPoint:
//
//	<script id="profile_3">BigPipe.onArrive({...});</script>
//
// The element id combines the pagelet id with seq because the pagelet id
// itself already names the placeholder element.
type ScriptFrames struct{}

// EncodeFrame implements FrameEncoder.
func (ScriptFrames) EncodeFrame(w io.Writer, seq int, p Payload) error {
	// json.Marshal escapes <, > and &, so markup such as "</script>"
	// inside the payload cannot end the element early.
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + len(p.ID) + 64)
	buf.WriteString(`<script id="`)
	buf.WriteString(frameElementID(p.ID, seq))
	buf.WriteString(`">`)
	buf.WriteString(ClientEntryPoint)
	buf.WriteByte('(')
	buf.Write(data)
	buf.WriteString(");</script>\n")

	_, err = w.Write(buf.Bytes())
	return err
}

// EncodeEnd implements FrameEncoder.
func (ScriptFrames) EncodeEnd(w io.Writer) error {
	_, err := io.WriteString(w, EndMarker)
	return err
}

// JSONFrames writes each payload as a bare JSON document, for transports
// that already delimit messages (websocket). The stream ends with
// {"end":true}.
type JSONFrames struct{}

// EncodeFrame implements FrameEncoder.
func (JSONFrames) EncodeFrame(w io.Writer, _ int, p Payload) error {
	return json.NewEncoder(w).Encode(p)
}

// EncodeEnd implements FrameEncoder.
func (JSONFrames) EncodeEnd(w io.Writer) error {
	_, err := io.WriteString(w, "{\"end\":true}\n")
	return err
}

func frameElementID(id string, seq int) string {
	return render.EscapeAttr(id) + "_" + strconv.Itoa(seq)
}
