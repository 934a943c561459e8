package rewrite

import (
	"sort"

	"github.com/reflex-run/reflex/pkg/term"
)

// ShouldInlineValue decides whether an argument value should be
// substituted directly into a lambda body (inlined) rather than bound via
// a Let: a static value or a bare variable reference costs nothing to
// duplicate regardless of use count, and any value referenced at most
// once cannot be duplicated by inlining it. Anything else — any other
// value used two or more times — is Let-bound instead, so its (potentially expensive, or
// effect-bearing) evaluation happens exactly once (SPEC_FULL.md §9,
// grounded on `inline_lambda_arg_values`'s inlineability test in
// reflex-lang/src/term/lambda.rs).
func ShouldInlineValue(value *term.Term, usageCount int) bool {
	if term.IsStatic(value) || value.Kind == term.KindVariable {
		return true
	}
	return usageCount <= 1
}

// ArgSubstitution pairs one of lambda's bound-parameter offsets with the
// value to substitute for it.
type ArgSubstitution struct {
	Offset term.StackOffset
	Value  *term.Term
}

// InlineLambdaArgValues substitutes a subset of lambda's NumArgs
// parameters with concrete values and returns a smaller Lambda still
// binding whatever parameters were left unsubstituted — this is
// partial application of a lambda's free variable slots, independent of
// its call arity (SPEC_FULL.md §9, grounded on
// reflex-lang/src/term/lambda.rs's `inline_lambda_arg_values`, whose own
// test substitutes 1 of 4 parameters and gets back a 3-arg Lambda).
// Substitutions naming an offset outside [0,lambda.NumArgs) are ignored;
// an empty or fully-out-of-range substitution list returns lambda
// unchanged.
//
// Each substituted value is either inlined directly at its use sites, or
// bound through a Let so it evaluates exactly once, per ShouldInlineValue
// — the same duplication-vs-sharing tradeoff Reduce's applyLambda makes
// for a full application.
func InlineLambdaArgValues(lambda *term.Term, substitutions []ArgSubstitution, heap *term.Heap) *term.Term {
	n := int(lambda.NumArgs)
	body := lambda.Body

	valueFor := make(map[int]*term.Term, len(substitutions))
	for _, s := range substitutions {
		if int(s.Offset) >= 0 && int(s.Offset) < n {
			valueFor[int(s.Offset)] = s.Value
		}
	}
	if len(valueFor) == 0 {
		return lambda
	}

	inline := make(map[int]bool, len(valueFor))
	var letOffsets, lambdaOffsets []int
	for offset, value := range valueFor {
		usage := term.CountVariableUsages(body, term.StackOffset(offset))
		if ShouldInlineValue(value, usage) {
			inline[offset] = true
		} else {
			letOffsets = append(letOffsets, offset)
		}
	}
	for offset := 0; offset < n; offset++ {
		if _, substituted := valueFor[offset]; !substituted {
			lambdaOffsets = append(lambdaOffsets, offset)
		}
	}
	sort.Ints(letOffsets)
	sort.Ints(lambdaOffsets)

	numLets := len(letOffsets)
	numRemaining := len(lambdaOffsets)
	vanished := n - numLets - numRemaining // substituted-and-inlined: no binder survives for these

	letRank := make(map[int]int, numLets)
	for i, offset := range letOffsets {
		letRank[offset] = i
	}
	lambdaRank := make(map[int]int, numRemaining)
	for i, offset := range lambdaOffsets {
		lambdaRank[offset] = i
	}

	// The new Lambda's own binder wraps the Let chain, which wraps body,
	// so a surviving parameter must cross every Let to be reached from
	// body: its final offset is the Let count plus its rank among
	// surviving parameters. A Let-bound value's offset is just its rank
	// among Lets, innermost (smallest original offset) first. A substituted
	// value's own free variables refer to the scope outside lambda, so they
	// are shifted by the number of binders the value ends up under: all
	// Lets plus the new Lambda for an inlined value, and for a Let-bound
	// value the Lets outside its own Let plus the new Lambda.
	entries := make([]NamedEntry, n)
	for offset := 0; offset < n; offset++ {
		if inline[offset] {
			entries[offset] = NamedEntry{Offset: term.StackOffset(offset), Replacement: shiftFreeVariables(valueFor[offset], term.StackOffset(numLets+numRemaining))}
			continue
		}
		if rank, ok := letRank[offset]; ok {
			entries[offset] = NamedEntry{Offset: term.StackOffset(offset), Replacement: term.NewVariable(term.StackOffset(rank))}
			continue
		}
		entries[offset] = NamedEntry{Offset: term.StackOffset(offset), Replacement: term.NewVariable(term.StackOffset(numLets + lambdaRank[offset]))}
	}
	unwrap := Unwrap(term.StackOffset(vanished))
	subBody, changed := SubstituteStatic(body, NewNamedSubstitutions(entries, &unwrap), heap)
	if !changed {
		subBody = body
	}

	result := subBody
	for _, offset := range letOffsets {
		value := shiftFreeVariables(valueFor[offset], term.StackOffset(numRemaining+numLets-1-letRank[offset]))
		result = internIfPossible(term.NewLet(value, result), heap)
	}
	return internIfPossible(term.NewLambda(term.StackOffset(numRemaining), result), heap)
}
