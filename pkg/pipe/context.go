package pipe

import (
	"context"
	"net/http"
)

type engineKey struct{}

// NewContext returns a copy of ctx carrying e.
func NewContext(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

// FromContext returns the engine stored in ctx, or nil.
func FromContext(ctx context.Context) *Engine {
	e, _ := ctx.Value(engineKey{}).(*Engine)
	return e
}

// Middleware creates one engine per request and makes it available to the
// wrapped handler through FromContext. opts are applied to every engine,
// so per-response state such as recorders must be passed with
// WithRecorderFunc.
//
// After the handler returns, the engine is finalized with a nil caller.
// Handlers that finalized themselves are unaffected since a second
// finalize emits nothing. Engines that were never consulted are left
// alone.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			e := New(w, r, opts...)
			ctx := NewContext(r.Context(), e)
			next.ServeHTTP(w, r.WithContext(ctx))

			if e.State() == StateUndecided {
				return
			}
			if err := e.Finalize(ctx, nil); err != nil {
				e.Logger().Error("finalize after handler failed", "path", r.URL.Path, "error", err)
			}
		})
	}
}
