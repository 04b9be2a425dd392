// Package render provides the HTML page shell and the flush-aware writer
// used when a page is delivered progressively.
//
// A streamed page is written in three steps:
//
//	stream := render.NewStream(w)
//	render.WriteDocumentStart(stream, render.Document{Title: "Home"})
//	// ... layout markup and pagelet placeholders ...
//	render.WriteBodyEnd(stream)
//	// ... pagelet frames are written and flushed one by one ...
//
// The dispatcher script referenced by Document.ClientScript is loaded in
// the head, so it is defined before the first frame reaches the browser.
//
// # Streaming
//
// Stream passes writes through to the underlying writer and forwards Flush
// to http.Flusher when available. FlushableWriter records where each flush
// happened and is meant for tests.
//
// # Security
//
// EscapeHTML and EscapeAttr escape text for element content and attribute
// values. Pagelet markup itself is trusted and written as-is.
package render
