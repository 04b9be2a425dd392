package render

import (
	"io"
	"net/http"
)

// Stream wraps the response writer of a progressively rendered page.
// Writes go straight through; Flush pushes buffered bytes to the client
// when the underlying writer supports it and is a no-op otherwise.
type Stream struct {
	w       io.Writer
	flusher http.Flusher
	flushes int
}

// NewStream creates a Stream for w. If w implements http.Flusher (every
// net/http ResponseWriter and chi's wrapped writers do), content is
// flushed on each Flush call.
func NewStream(w io.Writer) *Stream {
	if s, ok := w.(*Stream); ok {
		return s
	}
	flusher, _ := w.(http.Flusher)
	return &Stream{w: w, flusher: flusher}
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// WriteString writes a string without an intermediate conversion when the
// underlying writer supports it.
func (s *Stream) WriteString(str string) (int, error) {
	return io.WriteString(s.w, str)
}

// Flush implements http.Flusher. Flush errors are not observable through
// http.Flusher, so a broken connection only surfaces on the next Write.
func (s *Stream) Flush() {
	s.flushes++
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Flushes returns how many times Flush has been called.
func (s *Stream) Flushes() int {
	return s.flushes
}

// CanFlush reports whether Flush reaches a real transport.
func (s *Stream) CanFlush() bool {
	return s.flusher != nil
}

// FlushableWriter wraps an io.Writer with flushing capability and records
// how much had been written at every flush.
// This is useful for testing streaming behavior without using http.ResponseWriter.
type FlushableWriter struct {
	io.Writer
	FlushCount int

	// Marks holds the number of bytes written when each flush happened.
	Marks []int

	written int
}

// Write implements io.Writer.
func (w *FlushableWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	w.written += n
	return n, err
}

// Flush implements http.Flusher.
func (w *FlushableWriter) Flush() {
	w.FlushCount++
	w.Marks = append(w.Marks, w.written)
}
