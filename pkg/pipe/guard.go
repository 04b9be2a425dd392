package pipe

// Caller is an opaque handle identifying a layer of page-building code.
// Handles are compared by pointer, never by name.
type Caller struct {
	name string
}

// NewCaller creates a handle. The name is only used in logs.
func NewCaller(name string) *Caller {
	return &Caller{name: name}
}

func (c *Caller) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.name
}

// Guard remembers the outermost caller of a response so that nested
// layers can call Finalize defensively without flushing twice.
type Guard struct {
	top *Caller
}

// Register adopts c as the outermost caller unless one is already set.
// It reports whether c was adopted.
func (g *Guard) Register(c *Caller) bool {
	if g.top != nil || c == nil {
		return false
	}
	g.top = c
	return true
}

// Top returns the outermost caller, or nil.
func (g *Guard) Top() *Caller {
	return g.top
}

// Allows reports whether a finalize call from c should proceed. Calls
// without an identity always proceed.
func (g *Guard) Allows(c *Caller) bool {
	return c == nil || c == g.top
}
