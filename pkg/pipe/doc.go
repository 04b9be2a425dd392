// Package pipe streams a page as independently computed fragments.
//
// A page registers pagelets with its response's Engine and writes each
// pagelet's Display output where the fragment belongs. When the response
// is streamed, Display yields an empty placeholder and Finalize later runs
// every producer in descending priority order, sending each result as a
// script frame the client dispatcher inserts into its placeholder:
//
//	e := pipe.New(w, r, pipe.WithPolicy(policy))
//	top := pipe.NewCaller("page")
//	e.RegisterTopCaller(top)
//
//	nav, _ := e.NewPagelet(ctx, "nav", renderNav, pipe.WithPriority(20))
//	feed, _ := e.NewPagelet(ctx, "feed", renderFeed)
//
//	html, _ := nav.Display(ctx)
//	io.WriteString(e.Writer(), html)
//	html, _ = feed.Display(ctx)
//	io.WriteString(e.Writer(), html)
//
//	e.Finalize(ctx, top)
//
// When the response is not streamed (bots, old browsers, or an explicit
// ?bigpipe=0), producers run as soon as their pagelet is created, Display
// yields the finished markup, and Finalize appends the inline scripts the
// pagelets queued.
//
// Finalize calls made by nested page layers with their own Caller are
// ignored, so every layer can finalize without coordinating with the
// others.
package pipe
