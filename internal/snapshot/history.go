package snapshot

// DefaultBound is the default maximum number of observations kept per
// history.
const DefaultBound = 1000

// History is a bounded, insertion-ordered sequence of observations.
// Appending past the bound evicts the oldest entries first.
type History[T any] struct {
	bound int
	items []T
}

func NewHistory[T any](bound int) *History[T] {
	if bound <= 0 {
		bound = DefaultBound
	}
	return &History[T]{bound: bound}
}

func (h *History[T]) Append(v T) {
	h.items = append(h.items, v)
	if len(h.items) > h.bound {
		h.items = h.items[len(h.items)-h.bound:]
	}
}

func (h *History[T]) Len() int {
	return len(h.items)
}

// Latest returns the most recent observation, if any.
func (h *History[T]) Latest() (T, bool) {
	if len(h.items) == 0 {
		var zero T
		return zero, false
	}
	return h.items[len(h.items)-1], true
}

// Last returns a copy of up to n most recent observations, oldest first.
func (h *History[T]) Last(n int) []T {
	if n > len(h.items) {
		n = len(h.items)
	}
	out := make([]T, n)
	copy(out, h.items[len(h.items)-n:])
	return out
}

// Snapshot returns a copy of the full history for external readers; the
// live sequence is never shared.
func (h *History[T]) Snapshot() []T {
	return h.Last(len(h.items))
}
