package term

import "sync"

// Heap is the explicit, caller-owned content-addressing store described in
// spec.md §9 ("the term heap is content-addressed; an implementation
// should intern terms by structural hash"). It is deliberately not a
// package global: every actor that needs sharing (the compiler's static
// data section, a long-lived interpreter) owns its own Heap, keeping the
// core free of global mutable state (spec.md §9, "Global mutable state —
// none in the core").
type Heap struct {
	mu      sync.Mutex
	entries map[uint64]*Term
}

// NewHeap returns an empty interning heap.
func NewHeap() *Heap {
	return &Heap{entries: make(map[uint64]*Term)}
}

// Intern returns the canonical instance for a term with the same
// structural id as t, inserting t if no such instance exists yet. Hash
// collisions between structurally distinct terms are resolved by deep
// comparison, falling back to returning t uninterned if it turns out not
// to match the cached collider (sharing is an optimization, not a
// correctness requirement — see spec.md §9).
func (h *Heap) Intern(t *Term) *Term {
	if t == nil {
		return nil
	}
	id := t.ID()
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.entries[id]; ok {
		if existing.deepEqual(t) {
			return existing
		}
		return t
	}
	h.entries[id] = t
	return t
}

// Len reports how many distinct terms are currently interned.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
