package pipe

import (
	"net/http"
	"strings"
)

// Policy decides whether the client of a request can handle streamed
// pagelets. It is consulted at most once per response.
type Policy interface {
	ShouldStream(r *http.Request) bool
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(r *http.Request) bool

// ShouldStream implements Policy.
func (f PolicyFunc) ShouldStream(r *http.Request) bool {
	return f(r)
}

var (
	// Always streams every response.
	Always Policy = PolicyFunc(func(*http.Request) bool { return true })

	// Never renders every response synchronously.
	Never Policy = PolicyFunc(func(*http.Request) bool { return false })
)

// OverrideParam is the request parameter that overrides the policy.
const OverrideParam = "bigpipe"

// Override is an explicit request-level mode choice.
type Override int

const (
	// OverrideNone defers to the policy.
	OverrideNone Override = iota

	// OverrideEnable forces streaming.
	OverrideEnable

	// OverrideDisable forces synchronous rendering.
	OverrideDisable

	// OverrideDryRun forces streaming but makes Finalize emit nothing.
	// Placeholders are written and never filled; used for diagnostics.
	OverrideDryRun
)

func (o Override) String() string {
	switch o {
	case OverrideNone:
		return "none"
	case OverrideEnable:
		return "enable"
	case OverrideDisable:
		return "disable"
	case OverrideDryRun:
		return "dry-run"
	default:
		return "unknown"
	}
}

// ParseOverride reads the bigpipe query parameter of r.
func ParseOverride(r *http.Request) Override {
	if r == nil || r.URL == nil {
		return OverrideNone
	}
	values, ok := r.URL.Query()[OverrideParam]
	if !ok || len(values) == 0 {
		return OverrideNone
	}
	return ParseOverrideValue(values[0])
}

// ParseOverrideValue interprets a present override parameter. "2" requests
// a dry run; "", "0", "false", "off" and "no" disable streaming; anything
// else enables it. The disabling words go beyond "" and "0" on purpose so
// ?bigpipe=false reads as it looks.
func ParseOverrideValue(v string) Override {
	v = strings.TrimSpace(v)
	if v == "2" {
		return OverrideDryRun
	}
	switch strings.ToLower(v) {
	case "", "0", "false", "off", "no":
		return OverrideDisable
	}
	return OverrideEnable
}
