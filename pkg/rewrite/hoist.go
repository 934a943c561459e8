package rewrite

import (
	"sort"

	"github.com/reflex-run/reflex/pkg/term"
)

// HoistFreeVariables renumbers t's free variables into a compact,
// contiguous 0..k-1 range in ascending original-offset order, returning
// the original offsets (so a caller can bind them as explicit leading
// closure-capture parameters) alongside the rewritten term. This is the
// closure-conversion step a stack-machine target needs before compiling
// a lambda as a standalone function: unlike a tree-walking evaluator, the
// compiled code has no implicit access to an enclosing lexical
// environment, so every captured variable must become an explicit
// argument (SPEC_FULL.md §9/§12, grounded on
// reflex-lang/src/term/lambda.rs's `hoist_free_variables`).
func HoistFreeVariables(t *term.Term, heap *term.Heap) ([]term.StackOffset, *term.Term) {
	fv := term.FreeVariables(t)
	if len(fv) == 0 {
		return nil, t
	}
	offsets := make([]term.StackOffset, 0, len(fv))
	for off := range fv {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	entries := make([]NamedEntry, len(offsets))
	n := term.StackOffset(len(offsets))
	for i, off := range offsets {
		newOffset := n - 1 - term.StackOffset(i)
		entries[i] = NamedEntry{Offset: off, Replacement: term.NewVariable(newOffset)}
	}
	result, changed := SubstituteStatic(t, NewNamedSubstitutions(entries, nil), heap)
	if !changed {
		result = t
	}
	return offsets, result
}
