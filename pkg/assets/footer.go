package assets

import (
	"iter"
	"slices"
)

// Footer collects external scripts that the page emits at the end of the
// document. Pagelets rendered synchronously have no arrival event to hang
// their script dependencies on, so they register them here instead.
//
// A Footer belongs to a single response and is not safe for concurrent use.
type Footer struct {
	scripts []string
}

// NewFooter creates an empty footer collector.
func NewFooter() *Footer {
	return &Footer{}
}

// AddFooterScript appends src unless it was already added.
func (f *Footer) AddFooterScript(src string) {
	if slices.Contains(f.scripts, src) {
		return
	}
	f.scripts = append(f.scripts, src)
}

// Scripts returns the collected sources in insertion order.
func (f *Footer) Scripts() []string {
	return slices.Clone(f.scripts)
}

// Len returns the number of pending scripts.
func (f *Footer) Len() int {
	return len(f.scripts)
}

// Drain returns the collected scripts in insertion order and empties the
// collector. The returned sequence can be ranged over once.
func (f *Footer) Drain() iter.Seq[string] {
	pending := f.scripts
	f.scripts = nil
	consumed := false
	return func(yield func(string) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, src := range pending {
			if !yield(src) {
				return
			}
		}
	}
}
