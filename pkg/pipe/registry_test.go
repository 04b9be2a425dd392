package pipe

import (
	"errors"
	"slices"
	"testing"
)

func drainIDs(r *Registry) []string {
	var ids []string
	for p := range r.Drain() {
		ids = append(ids, p.ID())
	}
	return ids
}

func TestRegistryDrainOrder(t *testing.T) {
	tests := []struct {
		name     string
		pagelets []*Pagelet
		want     []string
	}{
		{
			name:     "empty",
			pagelets: nil,
			want:     nil,
		},
		{
			name: "descending tiers",
			pagelets: []*Pagelet{
				{id: "low", priority: 1},
				{id: "high", priority: 30},
				{id: "mid", priority: 10},
			},
			want: []string{"high", "mid", "low"},
		},
		{
			name: "stable within tier",
			pagelets: []*Pagelet{
				{id: "a", priority: 20},
				{id: "b", priority: 10},
				{id: "c", priority: 10},
				{id: "d", priority: 20},
				{id: "e", priority: 10},
			},
			want: []string{"a", "d", "b", "c", "e"},
		},
		{
			name: "negative priorities",
			pagelets: []*Pagelet{
				{id: "neg", priority: -5},
				{id: "zero", priority: 0},
			},
			want: []string{"zero", "neg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, p := range tt.pagelets {
				if err := r.Register(p); err != nil {
					t.Fatalf("Register(%q) error = %v", p.id, err)
				}
			}
			got := drainIDs(r)
			if !slices.Equal(got, tt.want) {
				t.Errorf("drain order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	first := &Pagelet{id: "x", priority: 10}
	if err := r.Register(first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := r.Register(&Pagelet{id: "x", priority: 50})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("Register(dup) error = %v, want ErrDuplicateID", err)
	}
	if r.Len() != 1 || r.Count() != 1 {
		t.Errorf("Len() = %d, Count() = %d, want 1, 1", r.Len(), r.Count())
	}

	var got []*Pagelet
	for p := range r.Drain() {
		got = append(got, p)
	}
	if len(got) != 1 || got[0] != first {
		t.Errorf("drained %v, want the first registration", got)
	}
}

func TestRegistryIDsReservedAfterDrain(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Pagelet{id: "x"})
	drainIDs(r)

	if !r.Has("x") {
		t.Error("Has(x) = false after drain")
	}
	if err := r.Register(&Pagelet{id: "x"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Register after drain error = %v, want ErrDuplicateID", err)
	}
}

func TestRegistryCounts(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Pagelet{id: "a"})
	_ = r.Register(&Pagelet{id: "b"})
	if r.Len() != 2 || r.Count() != 2 {
		t.Fatalf("Len() = %d, Count() = %d, want 2, 2", r.Len(), r.Count())
	}

	seq := r.Drain()
	if r.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", r.Len())
	}

	_ = r.Register(&Pagelet{id: "c"})
	if r.Len() != 1 || r.Count() != 3 {
		t.Errorf("Len() = %d, Count() = %d, want 1, 3", r.Len(), r.Count())
	}

	// The snapshot does not see c.
	var ids []string
	for p := range seq {
		ids = append(ids, p.ID())
	}
	if !slices.Equal(ids, []string{"a", "b"}) {
		t.Errorf("snapshot = %v, want [a b]", ids)
	}
}

func TestRegistryDrainSingleUse(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Pagelet{id: "a"})

	seq := r.Drain()
	n := 0
	for range seq {
		n++
	}
	for range seq {
		n++
	}
	if n != 1 {
		t.Errorf("yielded %d pagelets over two ranges, want 1", n)
	}
}
