package rewrite

import "github.com/reflex-run/reflex/pkg/term"

// EtaReduce collapses `\x1..xn -> f(x1, .., xn)` to `f` (with f's free
// variables shifted down by n) whenever f does not itself reference any
// of the n bound parameters and the application's argument list is
// exactly the bound parameters in binding order. It reports whether a
// reduction happened.
//
// Resolved design decision (an Open Question in the distilled
// specification): this always returns the reduct even when further
// normalizing it would yield nothing new — i.e. eta-reduction is applied
// greedily as its own rewrite step rather than only as a tie-breaker
// inside normalization, matching reflex-lang/src/term/lambda.rs's
// `apply_eta_reduction`, which performs the rewrite unconditionally once
// the structural pattern matches.
func EtaReduce(t *term.Term, heap *term.Heap) (*term.Term, bool) {
	if t.Kind != term.KindLambda {
		return t, false
	}
	body := t.Body
	if body.Kind != term.KindApplication {
		return t, false
	}
	n := t.NumArgs
	if term.StackOffset(len(body.Args)) != n {
		return t, false
	}
	for i, a := range body.Args {
		if a.Kind != term.KindVariable || a.Offset != n-1-term.StackOffset(i) {
			return t, false
		}
	}
	for off := range term.FreeVariables(body.Target) {
		if off < n {
			return t, false
		}
	}
	shifted, changed := SubstituteStatic(body.Target, NewScopeShiftSubstitutions(-int64(n), 0), heap)
	if !changed {
		return body.Target, true
	}
	return shifted, true
}
