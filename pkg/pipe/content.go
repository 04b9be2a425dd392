package pipe

import "context"

// Content is what a Producer yields: either PlainMarkup or a ComposedView.
type Content interface {
	markup() string
	script() string
}

// PlainMarkup is trusted HTML inserted into the pagelet's placeholder.
type PlainMarkup string

func (m PlainMarkup) markup() string { return string(m) }
func (PlainMarkup) script() string   { return "" }

// ComposedView is a rendered view that carries its own script block next to
// its markup. The script runs before the pagelet's own inline script.
type ComposedView struct {
	Markup string
	Script string
}

func (v ComposedView) markup() string { return v.Markup }
func (v ComposedView) script() string { return v.Script }

// Producer computes a pagelet's base content. Arguments are captured by
// the closure when the pagelet is created.
type Producer func(ctx context.Context) (Content, error)

// Markup adapts a plain string function into a Producer.
func Markup(fn func() string) Producer {
	return func(context.Context) (Content, error) {
		return PlainMarkup(fn()), nil
	}
}

// Static returns a Producer that always yields html.
func Static(html string) Producer {
	return func(context.Context) (Content, error) {
		return PlainMarkup(html), nil
	}
}
