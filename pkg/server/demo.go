package server

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vango-dev/bigpipe/pkg/pipe"
	"github.com/vango-dev/bigpipe/pkg/render"
)

// pagePaddingFactor scales the per-pagelet padding up to the padding
// written once near the top of the page.
const pagePaddingFactor = 16

// Demo is the example page: a simple replace, a series of slow counters,
// and pagelets carrying inline and external javascript. Padding fills
// browser buffers so the progressive arrival is visible.
type Demo struct {
	// Title is the document title. Default: "BigPipe example".
	Title string

	// Counters is the number of delayed counter pagelets.
	Counters int

	// Delay is how long each counter takes to produce.
	Delay time.Duration

	// Padding is the number of spaces appended to every pagelet. Zero
	// disables padding.
	Padding int

	// ClientScript is the dispatcher URL written into the head.
	ClientScript string
}

// WithoutPadding returns a copy of d with padding disabled.
func (d *Demo) WithoutPadding() *Demo {
	c := *d
	c.Padding = 0
	return &c
}

// Render writes the whole document to the engine's writer and finalizes
// the engine as the outermost caller.
func (d *Demo) Render(ctx context.Context, e *pipe.Engine) error {
	top := pipe.NewCaller("demo.page")
	e.RegisterTopCaller(top)
	w := e.Writer()

	title := d.Title
	if title == "" {
		title = "BigPipe example"
	}
	err := render.WriteDocumentStart(w, render.Document{
		Title:        title,
		ClientScript: d.ClientScript,
	})
	if err != nil {
		return &pipe.TransportError{Err: err}
	}
	if err := d.writeIntro(w); err != nil {
		return &pipe.TransportError{Err: err}
	}
	if err := d.RenderBody(ctx, e); err != nil {
		return err
	}
	if err := render.WriteBodyEnd(w); err != nil {
		return &pipe.TransportError{Err: err}
	}

	if err := e.Finalize(ctx, top); err != nil {
		return err
	}
	if !e.Terminated() {
		if err := render.WriteDocumentEnd(w); err != nil {
			return &pipe.TransportError{Err: err}
		}
	}
	return nil
}

func (d *Demo) writeIntro(w io.Writer) error {
	var b strings.Builder
	b.WriteString("<h1 id=\"header\">BigPipe test.</h1>\n")
	if d.Padding > 0 {
		b.WriteString("<p>This version uses padding to fill out browser caches so that the delayed rendering effect can be seen easily. ")
		b.WriteString("Use <a href=\"?disable_padding=1\">this</a> link to disable the padding.</p>\n")
		b.WriteString("<!-- ")
		b.WriteString(strings.Repeat(" ", d.Padding*pagePaddingFactor))
		b.WriteString(" -->\n")
	} else {
		b.WriteString("<p>The padding has been disabled. Delayed pagelets may appear in larger batches.</p>\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderBody registers every demo pagelet and writes the body markup
// around their displays. It finalizes as a nested layer, which has no
// effect once an outer layer registered itself.
func (d *Demo) RenderBody(ctx context.Context, e *pipe.Engine) error {
	layer := pipe.NewCaller("demo.body")
	w := e.Writer()

	section := func(title string) error {
		_, err := fmt.Fprintf(w, "<h2>%s</h2>\n", render.EscapeHTML(title))
		return err
	}
	show := func(p *pipe.Pagelet) error {
		html, err := p.Display(ctx)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html+"\n")
		return err
	}

	if err := section("Simple content replace"); err != nil {
		return &pipe.TransportError{Err: err}
	}
	p, err := e.NewPagelet(ctx, "content_replace", d.replace("Ok"))
	if err != nil {
		return err
	}
	if err := show(p); err != nil {
		return err
	}

	if err := section(fmt.Sprintf("Test delayed rendering (%d times)", d.Counters)); err != nil {
		return &pipe.TransportError{Err: err}
	}
	for i := range d.Counters {
		p, err := e.NewPagelet(ctx, fmt.Sprintf("counter%d", i), d.delayed(fmt.Sprint(i)), pipe.InlineElement())
		if err != nil {
			return err
		}
		if err := show(p); err != nil {
			return err
		}
	}
	p, err = e.NewPagelet(ctx, "delayed_done", d.replace("Ok"), pipe.InlineElement())
	if err != nil {
		return err
	}
	if err := show(p); err != nil {
		return err
	}

	if err := section("Content replace with inline javascript"); err != nil {
		return &pipe.TransportError{Err: err}
	}
	p, err = e.NewPagelet(ctx, "inline_javascript_test", nil)
	if err != nil {
		return err
	}
	p.AddContent(`<div id="javascript_inline_test">Be patient, this will be completed in the end after delayed rendering</div>`)
	p.AddInlineScript(`document.getElementById('javascript_inline_test').innerHTML = 'Ok';`)
	if err := show(p); err != nil {
		return err
	}

	if err := section("Content replace with external javascript file"); err != nil {
		return &pipe.TransportError{Err: err}
	}
	if _, err := io.WriteString(w, `<div id="external_js">Be patient, this will be completed in the end after delayed rendering</div>`+"\n"); err != nil {
		return &pipe.TransportError{Err: err}
	}
	p, err = e.NewPagelet(ctx, "external_javascript_test", nil)
	if err != nil {
		return err
	}
	p.AddJavaScript("test.js")
	if err := show(p); err != nil {
		return err
	}

	if err := section("Content replace with external javascript and inline javascript"); err != nil {
		return &pipe.TransportError{Err: err}
	}
	if _, err := io.WriteString(w, `<div id="external_js2">Be patient, this will be completed in the end after delayed rendering</div>`+"\n"); err != nil {
		return &pipe.TransportError{Err: err}
	}
	p, err = e.NewPagelet(ctx, "external_javascript_test2", nil)
	if err != nil {
		return err
	}
	p.AddJavaScript("test2.js")
	p.AddInlineScript(`test2('external_js2', 'Ok');`)
	if err := show(p); err != nil {
		return err
	}

	p, err = e.NewPagelet(ctx, "final_ok", nil)
	if err != nil {
		return err
	}
	p.AddJavaScript("test.js")
	p.AddInlineScript(`document.getElementById('header').innerHTML = 'All done';`)
	if err := show(p); err != nil {
		return err
	}

	return e.Finalize(ctx, layer)
}

func (d *Demo) padding() string {
	return strings.Repeat(" ", d.Padding)
}

// delayed simulates a slow data source.
func (d *Demo) delayed(msg string) pipe.Producer {
	return func(ctx context.Context) (pipe.Content, error) {
		if err := sleep(ctx, d.Delay); err != nil {
			return nil, err
		}
		return pipe.PlainMarkup(msg + " <!-- " + d.padding() + " -->\n"), nil
	}
}

func (d *Demo) replace(msg string) pipe.Producer {
	return func(context.Context) (pipe.Content, error) {
		return pipe.PlainMarkup(msg + " <!-- " + d.padding() + " --><br>\n"), nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
