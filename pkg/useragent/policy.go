package useragent

import (
	"net/http"

	"github.com/vango-dev/bigpipe/pkg/pipe"
)

// Rule admits a browser family from a minimum major version on.
type Rule struct {
	Browser    Browser
	MinVersion int
}

// DefaultRules lists the browsers known to handle streamed pagelets.
// Chromium-based Edge reports a Chrome token and is covered by the Chrome
// rule.
var DefaultRules = []Rule{
	{Browser: Firefox, MinVersion: 2},
	{Browser: Opera, MinVersion: 10},
	{Browser: IE, MinVersion: 7},
	{Browser: Chrome, MinVersion: 4},
}

// Policy is the default pipe.Policy. A request is streamed when the
// feature is on, the client is not a bot, and its browser satisfies one
// of the rules.
type Policy struct {
	feature func(*http.Request) bool
	rules   []Rule
}

var _ pipe.Policy = (*Policy)(nil)

// Option configures a Policy.
type Option func(*Policy)

// WithFeature gates streaming behind a feature flag. It is evaluated
// before anything else.
func WithFeature(enabled func(*http.Request) bool) Option {
	return func(p *Policy) {
		p.feature = enabled
	}
}

// WithRules replaces DefaultRules.
func WithRules(rules ...Rule) Option {
	return func(p *Policy) {
		p.rules = rules
	}
}

// NewPolicy creates a policy using DefaultRules.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{rules: DefaultRules}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldStream implements pipe.Policy.
func (p *Policy) ShouldStream(r *http.Request) bool {
	if r == nil {
		return false
	}
	if p.feature != nil && !p.feature(r) {
		return false
	}

	ua := r.UserAgent()
	if IsBot(ua) {
		return false
	}
	return p.Allows(Parse(ua))
}

// Allows reports whether a satisfies one of the policy's rules.
func (p *Policy) Allows(a Agent) bool {
	for _, rule := range p.rules {
		if a.Browser == rule.Browser && a.Version >= rule.MinVersion {
			return true
		}
	}
	return false
}
