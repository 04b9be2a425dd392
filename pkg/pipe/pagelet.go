package pipe

import (
	"context"
	"strings"

	"github.com/vango-dev/bigpipe/pkg/render"
)

// Pagelet is one independently computed fragment of a page.
//
// Pagelets are created through Engine.NewPagelet and belong to that
// engine's response. They are not safe for concurrent use.
type Pagelet struct {
	engine   *Engine
	id       string
	priority int
	inline   bool

	producer Producer
	content  strings.Builder
	script   strings.Builder
	css      []string
	js       []string

	// Memoized producer outcome.
	result  Content
	err     error
	done    bool
	running bool

	// Set once the inline script has been handed to the script queue.
	queued bool
}

// PageletOption configures a pagelet at creation.
type PageletOption func(*Pagelet)

// WithPriority sets the priority. Higher priorities are streamed first.
// The default is DefaultPriority.
func WithPriority(priority int) PageletOption {
	return func(p *Pagelet) {
		p.priority = priority
	}
}

// InlineElement makes the placeholder a span instead of a div.
func InlineElement() PageletOption {
	return func(p *Pagelet) {
		p.inline = true
	}
}

// ID returns the pagelet id, which is also its placeholder element id.
func (p *Pagelet) ID() string { return p.id }

// Priority returns the pagelet priority.
func (p *Pagelet) Priority() int { return p.priority }

// SetInline chooses between a span (true) and a div placeholder.
func (p *Pagelet) SetInline(inline bool) { p.inline = inline }

// Executed reports whether the producer has run.
func (p *Pagelet) Executed() bool { return p.done }

// AddCSS attaches a stylesheet that is loaded together with the pagelet.
func (p *Pagelet) AddCSS(file string) {
	p.css = append(p.css, file)
}

// AddJavaScript attaches an external script. When streaming, the client
// loads it once the pagelet arrives. Otherwise there is no arrival event,
// so the script goes to the page footer instead.
func (p *Pagelet) AddJavaScript(file string) {
	if p.engine.Streaming() {
		p.js = append(p.js, file)
		return
	}
	p.engine.footer.AddFooterScript(p.engine.asset(file))
}

// AddContent appends markup after the producer's output.
func (p *Pagelet) AddContent(html string) {
	p.content.WriteString(html)
}

// AddInlineScript appends script source that runs after the pagelet is
// inserted into the document.
func (p *Pagelet) AddInlineScript(code string) {
	p.script.WriteString(code)
}

// resolve runs the producer once and memoizes its outcome, failures
// included.
func (p *Pagelet) resolve(ctx context.Context) (Content, error) {
	if p.done {
		return p.result, p.err
	}
	if p.running {
		return nil, &ProducerError{ID: p.id, Err: ErrReentrant}
	}
	if p.producer == nil {
		p.result, p.done = PlainMarkup(""), true
		return p.result, nil
	}

	p.running = true
	result, err := p.producer(ctx)
	p.running = false
	p.done = true

	if err != nil {
		p.err = &ProducerError{ID: p.id, Err: err}
		return nil, p.err
	}
	if result == nil {
		result = PlainMarkup("")
	}
	p.result = result
	return result, nil
}

// Payload returns the wire form of the pagelet, running the producer if it
// has not run yet.
func (p *Pagelet) Payload(ctx context.Context) (Payload, error) {
	content, err := p.resolve(ctx)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		ID:        p.id,
		InnerHTML: content.markup() + p.content.String(),
		CSSFiles:  p.engine.assetList(p.css),
		JSFiles:   p.engine.assetList(p.js),
		JSCode:    content.script() + p.script.String(),
	}, nil
}

// Display returns what the page writes where the pagelet belongs.
//
// When streaming, that is an empty placeholder element the client fills
// in later. Otherwise it is the rendered markup itself, preceded by its
// stylesheet links; the inline script is queued for the end of the
// document rather than embedded here, so it runs after the whole page is
// in the DOM.
func (p *Pagelet) Display(ctx context.Context) (string, error) {
	if p.engine.Streaming() {
		return p.placeholder(), nil
	}

	payload, err := p.Payload(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, href := range payload.CSSFiles {
		b.WriteString(`<link rel="stylesheet" type="text/css" href="`)
		b.WriteString(render.EscapeAttr(href))
		b.WriteString(`">`)
	}
	b.WriteString(payload.InnerHTML)

	if payload.JSCode != "" && !p.queued {
		p.engine.scripts.Push(payload.JSCode)
		p.queued = true
	}
	return b.String(), nil
}

func (p *Pagelet) placeholder() string {
	tag := "div"
	if p.inline {
		tag = "span"
	}
	return "<" + tag + ` id="` + render.EscapeAttr(p.id) + `"></` + tag + ">"
}
