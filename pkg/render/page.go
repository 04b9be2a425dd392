package render

import (
	"fmt"
	"io"
)

// DefaultClientScript is where the pagelet dispatcher is served from.
const DefaultClientScript = "/static/bigpipe.js"

// Document describes the page shell that surrounds the pagelets.
type Document struct {
	// Title is the page title
	Title string

	// Lang is the language attribute for the html element
	// Defaults to "en" if not specified
	Lang string

	// Meta contains meta tags for the page
	Meta []MetaTag

	// StyleSheets contains paths to external stylesheets
	StyleSheets []string

	// Scripts contains script tags to include in the head
	Scripts []ScriptTag

	// ClientScript is the path to the dispatcher that receives streamed
	// pagelets. It is loaded synchronously in the head so that it exists
	// before the first frame arrives.
	// Defaults to DefaultClientScript if not specified
	ClientScript string
}

// MetaTag represents a meta element in the document head.
type MetaTag struct {
	Name      string // name attribute
	Content   string // content attribute
	HTTPEquiv string // http-equiv attribute
}

// ScriptTag represents a script element.
type ScriptTag struct {
	Src    string // src attribute
	Defer  bool   // defer attribute
	Async  bool   // async attribute
	Inline string // inline script content
}

// WriteDocumentStart writes everything up to and including the opening
// body tag.
func WriteDocumentStart(w io.Writer, doc Document) error {
	lang := doc.Lang
	if lang == "" {
		lang = "en"
	}

	if _, err := io.WriteString(w, "<!DOCTYPE html>\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, `<html lang="%s">`+"\n", EscapeAttr(lang)); err != nil {
		return err
	}
	if err := writeHead(w, doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "<body>\n")
	return err
}

// WriteBodyEnd closes the body element. Streamed frames follow it.
func WriteBodyEnd(w io.Writer) error {
	_, err := io.WriteString(w, "</body>\n")
	return err
}

// WriteDocumentEnd closes the html element. Pages finished by a streaming
// pass must not call it; the stream already wrote its own terminator.
func WriteDocumentEnd(w io.Writer) error {
	_, err := io.WriteString(w, "</html>\n")
	return err
}

func writeHead(w io.Writer, doc Document) error {
	if _, err := io.WriteString(w, "<head>\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `  <meta charset="utf-8">`+"\n"); err != nil {
		return err
	}

	if doc.Title != "" {
		if _, err := fmt.Fprintf(w, "  <title>%s</title>\n", EscapeHTML(doc.Title)); err != nil {
			return err
		}
	}

	for _, meta := range doc.Meta {
		if err := writeMetaTag(w, meta); err != nil {
			return err
		}
	}

	for _, href := range doc.StyleSheets {
		if _, err := fmt.Fprintf(w, `  <link rel="stylesheet" href="%s">`+"\n", EscapeAttr(href)); err != nil {
			return err
		}
	}

	clientPath := doc.ClientScript
	if clientPath == "" {
		clientPath = DefaultClientScript
	}
	if err := writeScriptTag(w, ScriptTag{Src: clientPath}); err != nil {
		return err
	}

	for _, script := range doc.Scripts {
		if err := writeScriptTag(w, script); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "</head>\n")
	return err
}

func writeMetaTag(w io.Writer, meta MetaTag) error {
	if _, err := io.WriteString(w, "  <meta"); err != nil {
		return err
	}
	if meta.Name != "" {
		if _, err := fmt.Fprintf(w, ` name="%s"`, EscapeAttr(meta.Name)); err != nil {
			return err
		}
	}
	if meta.HTTPEquiv != "" {
		if _, err := fmt.Fprintf(w, ` http-equiv="%s"`, EscapeAttr(meta.HTTPEquiv)); err != nil {
			return err
		}
	}
	if meta.Content != "" {
		if _, err := fmt.Fprintf(w, ` content="%s"`, EscapeAttr(meta.Content)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, ">\n")
	return err
}

func writeScriptTag(w io.Writer, script ScriptTag) error {
	if _, err := io.WriteString(w, `  <script type="text/javascript"`); err != nil {
		return err
	}
	if script.Src != "" {
		if _, err := fmt.Fprintf(w, ` src="%s"`, EscapeAttr(script.Src)); err != nil {
			return err
		}
	}
	if script.Defer {
		if _, err := io.WriteString(w, " defer"); err != nil {
			return err
		}
	}
	if script.Async {
		if _, err := io.WriteString(w, " async"); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, ">"); err != nil {
		return err
	}
	if script.Inline != "" {
		if _, err := io.WriteString(w, script.Inline); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</script>\n")
	return err
}
