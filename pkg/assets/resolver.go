package assets

import "strings"

// Resolver maps an asset reference attached to a pagelet to the URL the
// browser should load.
type Resolver interface {
	// Asset resolves a source asset path to its full URL path.
	//
	// Example:
	//   resolver.Asset("profile.css") → "/static/profile.e5f6g7h8.css"
	Asset(source string) string
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(source string) string

// Asset implements Resolver.
func (f ResolverFunc) Asset(source string) string {
	return f(source)
}

// manifestResolver wraps a Manifest to implement Resolver.
type manifestResolver struct {
	manifest *Manifest
	prefix   string
}

// NewResolver creates a Resolver from a Manifest with an optional path prefix.
//
// References that are already URLs ("https://cdn/x.js", "//cdn/x.js") or
// root-relative paths ("/vendor/x.js") are returned unchanged; everything
// else is looked up in the manifest and prefixed.
func NewResolver(m *Manifest, prefix string) Resolver {
	return &manifestResolver{
		manifest: m,
		prefix:   prefix,
	}
}

func (r *manifestResolver) Asset(source string) string {
	if isAbsolute(source) {
		return source
	}
	return r.prefix + r.manifest.Resolve(source)
}

// passthrough returns assets unchanged apart from the prefix.
type passthrough struct {
	prefix string
}

// NewPassthroughResolver creates a resolver that only applies the prefix.
// Use this in development mode where fingerprinting is disabled, so dev
// and prod paths stay consistent:
//
//	assets.NewPassthroughResolver("/static/").Asset("test.js") // "/static/test.js"
func NewPassthroughResolver(prefix string) Resolver {
	return &passthrough{prefix: prefix}
}

func (p *passthrough) Asset(source string) string {
	if isAbsolute(source) {
		return source
	}
	return p.prefix + source
}

func isAbsolute(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://")
}
