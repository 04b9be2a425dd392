package server

import (
	"crypto/sha256"
	stderrors "errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	clientdist "github.com/vango-dev/bigpipe/client/dist"
	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// handlePage renders the demo page with the request's engine.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := pipe.FromContext(ctx)
	if e == nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	demo := s.demo
	if r.URL.Query().Has("disable_padding") {
		demo = demo.WithoutPadding()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")
	w.Header().Set(ResponseIDHeader, e.ID())

	if err := demo.Render(ctx, e); err != nil {
		s.logRenderError(e, err)
	}
}

// logRenderError reports a failed render. The status line is already on
// the wire, so the error only reaches the log.
func (s *Server) logRenderError(e *pipe.Engine, err error) {
	var transport *pipe.TransportError
	if stderrors.As(err, &transport) {
		e.Logger().Info("client went away", "error", err)
		return
	}
	pe := errors.Classify(err)
	e.Logger().Error("render failed", "code", pe.Code, "pagelet", pe.Pagelet, "error", err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// staticPattern turns the assets prefix into a router pattern. Prefixes
// that are not local paths (a CDN) fall back to /static/.
func staticPattern(prefix string) string {
	if !strings.HasPrefix(prefix, "/") || strings.HasPrefix(prefix, "//") {
		prefix = "/static/"
	}
	return strings.TrimSuffix(prefix, "/") + "/*"
}

var staticETags = func() map[string]string {
	tags := make(map[string]string)
	_ = fs.WalkDir(clientdist.Static, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(clientdist.Static, name)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		tags[name] = fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:]))
		return nil
	})
	return tags
}()

// serveStatic serves the embedded client files.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean(strings.TrimPrefix(r.URL.Path, strings.TrimSuffix(staticPattern(s.config.Assets.Prefix), "*")))
	etag, ok := staticETags[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	data, err := fs.ReadFile(clientdist.Static, name)
	if err != nil {
		http.Error(w, "Client script not available", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// ETag-based caching (safe even without a versioned URL).
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=0, must-revalidate")

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func etagMatches(ifNoneMatchHeader, etag string) bool {
	if ifNoneMatchHeader == "" || etag == "" {
		return false
	}
	// Handle lists: If-None-Match: "abc", W/"def"
	for _, part := range strings.Split(ifNoneMatchHeader, ",") {
		candidate := strings.TrimSpace(part)
		if candidate == etag {
			return true
		}
		if strings.HasPrefix(candidate, "W/") && strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
