package scheduler

// ContextTracker manages the per-query stack of named execution contexts
// (join contexts, correlation contexts) the scheduler pushes and pops
// while running a query (spec §4.11). A non-empty Residual() at the end of
// a run indicates a leak: some instruction pushed a context it never
// popped, surfaced as a warning rather than an error so a single bad
// instruction doesn't abort an otherwise-successful query.
type ContextTracker struct {
	stack []string
}

// NewContextTracker returns an empty tracker.
func NewContextTracker() *ContextTracker { return &ContextTracker{} }

// Push opens a new named context.
func (t *ContextTracker) Push(name string) { t.stack = append(t.stack, name) }

// Pop closes the most recently opened context matching name, if any.
func (t *ContextTracker) Pop(name string) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == name {
			t.stack = append(t.stack[:i], t.stack[i+1:]...)
			return
		}
	}
}

// Residual returns the names of contexts still open.
func (t *ContextTracker) Residual() []string {
	out := make([]string, len(t.stack))
	copy(out, t.stack)
	return out
}
