package pipe

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Registry holds the pagelets of one response grouped by priority.
// Within a priority tier pagelets keep their registration order.
type Registry struct {
	tiers   map[int][]*Pagelet
	ids     map[string]struct{}
	pending int
	count   int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tiers: make(map[int][]*Pagelet),
		ids:   make(map[string]struct{}),
	}
}

// Register adds p under its priority. Ids stay reserved for the whole
// response, including after Drain, since the placeholder with that id is
// already in the document.
func (r *Registry) Register(p *Pagelet) error {
	if _, dup := r.ids[p.id]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateID, p.id)
	}
	r.ids[p.id] = struct{}{}
	r.tiers[p.priority] = append(r.tiers[p.priority], p)
	r.pending++
	r.count++
	return nil
}

// Has reports whether id was ever registered in this response.
func (r *Registry) Has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

// Count returns the total number of registrations. It never decreases.
func (r *Registry) Count() int {
	return r.count
}

// Len returns the number of pagelets waiting to be drained.
func (r *Registry) Len() int {
	return r.pending
}

// Drain empties the registry and returns its pagelets ordered by
// descending priority, then by registration order. The sequence is a
// snapshot taken at call time and can be ranged over once; pagelets
// registered afterwards belong to the next drain.
func (r *Registry) Drain() iter.Seq[*Pagelet] {
	tiers := r.tiers
	r.tiers = make(map[int][]*Pagelet)
	r.pending = 0

	priorities := slices.Sorted(maps.Keys(tiers))
	slices.Reverse(priorities)

	consumed := false
	return func(yield func(*Pagelet) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, priority := range priorities {
			for _, p := range tiers[priority] {
				if !yield(p) {
					return
				}
			}
		}
	}
}
