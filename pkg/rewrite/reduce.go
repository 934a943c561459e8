package rewrite

import "github.com/reflex-run/reflex/pkg/term"

// BuiltinRegistry resolves a Builtin term's calling convention and
// performs its call. Reflex treats the standard library of concrete
// arithmetic/collection builtins as out of scope (SPEC_FULL.md §13 /
// spec.md Non-goals) — only this calling-convention surface matters to
// the rewriting and compiler layers, so rewrite depends on this narrow
// interface rather than any concrete builtin implementation.
type BuiltinRegistry interface {
	Arity(uid uint32) (term.Arity, bool)
	Apply(uid uint32, args []*term.Term) (*term.Term, error)
}

// IsReducible reports whether a single call to Reduce would change t.
// Let and Recursive are unconditionally reducible; an Application is
// reducible only once its target is already in weight-head-normal-form
// and is one of the Applicable kinds (spec.md §3.1, §4.1.2).
func IsReducible(t *term.Term, registry BuiltinRegistry) bool {
	switch t.Kind {
	case term.KindLet, term.KindRecursive:
		return true
	case term.KindApplication:
		return isApplicable(t.Target, registry)
	default:
		return false
	}
}

func isApplicable(target *term.Term, registry BuiltinRegistry) bool {
	switch target.Kind {
	case term.KindLambda, term.KindPartialApplication, term.KindConstructor:
		return true
	case term.KindBuiltin:
		if registry == nil {
			return false
		}
		_, ok := registry.Arity(target.BuiltinUID)
		return ok
	default:
		return false
	}
}

// Reduce performs exactly one rewriting step. It does not loop to a fixed
// point — callers that want weak-head-normal-form or full normalization
// should use Evaluate or Normalize instead, which drive this repeatedly
// and additionally handle signal short-circuiting.
func Reduce(t *term.Term, registry BuiltinRegistry, heap *term.Heap) (*term.Term, bool) {
	switch t.Kind {
	case term.KindLet:
		return reduceLet(t, heap), true
	case term.KindRecursive:
		return internIfPossible(term.NewApplication(t.Factory, []*term.Term{t}), heap), true
	case term.KindApplication:
		return reduceApplication(t, registry, heap)
	default:
		return t, false
	}
}

func reduceLet(t *term.Term, heap *term.Heap) *term.Term {
	unwrap := Unwrap(1)
	subs := NewNamedSubstitutions([]NamedEntry{{Offset: 0, Replacement: t.Init}}, &unwrap)
	result, _ := SubstituteStatic(t.Body, subs, heap)
	return result
}

func reduceApplication(t *term.Term, registry BuiltinRegistry, heap *term.Heap) (*term.Term, bool) {
	target, args := t.Target, t.Args
	switch target.Kind {
	case term.KindPartialApplication:
		merged := make([]*term.Term, 0, len(target.Args)+len(args))
		merged = append(merged, target.Args...)
		merged = append(merged, args...)
		return Reduce(internIfPossible(term.NewApplication(target.Target, merged), heap), registry, heap)

	case term.KindLambda:
		if min := int(target.NumArgs); len(args) < min {
			// Specialize immediately rather than deferring through an
			// opaque PartialApplication: the provided args bind the
			// leftmost len(args) parameters (offset counts down from
			// NumArgs-1, matching applyLambda's full-application mapping),
			// and InlineLambdaArgValues hands back a smaller Lambda still
			// binding whatever's left.
			subs := make([]ArgSubstitution, len(args))
			for i, a := range args {
				subs[i] = ArgSubstitution{Offset: term.StackOffset(min - 1 - i), Value: a}
			}
			return internIfPossible(InlineLambdaArgValues(target, subs, heap), heap), true
		}
		return applyArity(target, term.NewArity(int(target.NumArgs), 0, false, term.Lazy), args,
			func(exact []*term.Term) *term.Term { return applyLambda(target, exact, heap) },
			heap)

	case term.KindConstructor:
		required := len(target.Prototype.Keys)
		return applyArity(target, term.NewArity(required, 0, false, term.Eager), args,
			func(exact []*term.Term) *term.Term { return term.NewRecord(target.Prototype, exact) },
			heap)

	case term.KindBuiltin:
		arity, ok := registry.Arity(target.BuiltinUID)
		if !ok {
			return t, false
		}
		return applyArity(target, arity, args, func(exact []*term.Term) *term.Term {
			result, err := registry.Apply(target.BuiltinUID, exact)
			if err != nil {
				return errorSignal(err.Error())
			}
			return result
		}, heap)

	default:
		return t, false
	}
}

// applyArity handles the under/exact/over-application split common to
// Lambda, Constructor and Builtin targets: too few arguments curries into
// a PartialApplication, an exact count invokes apply, and surplus
// arguments are re-applied to apply's result (supporting a builtin or
// constructor that itself returns another Applicable value).
func applyArity(target *term.Term, arity term.Arity, args []*term.Term, apply func([]*term.Term) *term.Term, heap *term.Heap) (*term.Term, bool) {
	if len(args) < arity.Min() {
		return internIfPossible(term.NewPartialApplication(target, args), heap), true
	}
	max, bounded := arity.Max()
	if !bounded || len(args) <= max {
		return internIfPossible(apply(args), heap), true
	}
	head, tail := args[:max], args[max:]
	result := apply(head)
	return internIfPossible(term.NewApplication(result, tail), heap), true
}

func applyLambda(target *term.Term, args []*term.Term, heap *term.Heap) *term.Term {
	entries := make([]NamedEntry, len(args))
	for i, a := range args {
		entries[i] = NamedEntry{Offset: term.StackOffset(len(args) - 1 - i), Replacement: a}
	}
	unwrap := Unwrap(term.StackOffset(len(args)))
	subs := NewNamedSubstitutions(entries, &unwrap)
	result, _ := SubstituteStatic(target.Body, subs, heap)
	return result
}

func errorSignal(message string) *term.Term {
	return term.NewSignal(term.NewErrorCondition(term.NewString(message)))
}
