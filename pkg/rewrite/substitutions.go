// Package rewrite implements Reflex's term-rewriting algebra (spec.md
// §4.1, component C): static and dynamic substitution, reduction,
// η-reduction, free-variable hoisting, argument inlining, and
// normalization. Every operation returns (term, changed) rather than an
// Option-shaped pointer-or-nil, so that "no change" can be distinguished
// from "changed to something that happens to be nil" without relying on
// pointer identity games — term.Term is never nil for a well-formed node,
// but the boolean keeps intent explicit at call sites, matching the
// teacher's (pkg/minikanren) preference for an explicit success flag
// alongside a value (see unifyWithConstraints's (ConstraintStore, bool)).
package rewrite

import "github.com/reflex-run/reflex/pkg/term"

// ScopeOffsetKind selects how a Substitutions value adjusts variable
// offsets that were not matched by a named target (spec.md §4.1.1).
type ScopeOffsetKind uint8

const (
	scopeOffsetNone ScopeOffsetKind = iota
	// ScopeOffsetUnwrap decrements unmatched offsets by Amount — used when
	// a binder has just been removed (e.g. a reduced Let or Lambda).
	ScopeOffsetUnwrap
	// ScopeOffsetWrap increments unmatched offsets by Amount — used when a
	// value is being moved into a deeper scope.
	ScopeOffsetWrap
)

// ScopeOffset adjusts every substitution-set offset not explicitly named,
// to account for a binder having been added or removed around the term
// being substituted into.
type ScopeOffset struct {
	Kind   ScopeOffsetKind
	Amount term.StackOffset
}

// Unwrap decrements offsets by n (a binder was removed).
func Unwrap(n term.StackOffset) ScopeOffset { return ScopeOffset{Kind: ScopeOffsetUnwrap, Amount: n} }

// Wrap increments offsets by n (a binder was added).
func Wrap(n term.StackOffset) ScopeOffset { return ScopeOffset{Kind: ScopeOffsetWrap, Amount: n} }

func (s ScopeOffset) apply(offset term.StackOffset) term.StackOffset {
	switch s.Kind {
	case ScopeOffsetUnwrap:
		if offset < s.Amount {
			return offset // should not happen for well-formed programs; leave untouched
		}
		return offset - s.Amount
	case ScopeOffsetWrap:
		return offset + s.Amount
	default:
		return offset
	}
}

// NamedEntry maps a single stack offset to its replacement term.
type NamedEntry struct {
	Offset      term.StackOffset
	Replacement *term.Term
}

type substitutionKind uint8

const (
	substitutionNamed substitutionKind = iota
	substitutionScopeShift
	substitutionDynamic
)

// Substitutions is either a Named substitution list (with an optional
// ScopeOffset for every other offset), a pure Scope-shift, or a Dynamic
// state snapshot used to resolve Effect terms (spec.md §4.1.1).
type Substitutions struct {
	kind substitutionKind

	// Named
	named []NamedEntry
	scope *ScopeOffset

	// ScopeShift
	shiftAmount    int64
	shiftThreshold term.StackOffset

	// Dynamic
	state DynamicState
	deep  bool
}

// NewNamedSubstitutions builds a Named substitution set. scope, if
// non-nil, is applied to every offset not covered by entries.
func NewNamedSubstitutions(entries []NamedEntry, scope *ScopeOffset) Substitutions {
	return Substitutions{kind: substitutionNamed, named: entries, scope: scope}
}

// NewScopeShiftSubstitutions adds amount (which may be negative) to every
// offset >= threshold.
func NewScopeShiftSubstitutions(amount int64, threshold term.StackOffset) Substitutions {
	return Substitutions{kind: substitutionScopeShift, shiftAmount: amount, shiftThreshold: threshold}
}

// IncreaseScopeOffset is a convenience constructor matching the original
// `Substitutions::increase_scope_offset(amount, threshold)` used to push a
// value's free variables deeper before it is moved into a nested scope.
func IncreaseScopeOffset(amount term.StackOffset, threshold term.StackOffset) Substitutions {
	return NewScopeShiftSubstitutions(int64(amount), threshold)
}

// NewDynamicSubstitutions wraps a state snapshot used to resolve Effect
// terms during substitute_dynamic.
func NewDynamicSubstitutions(state DynamicState, deep bool) Substitutions {
	return Substitutions{kind: substitutionDynamic, state: state, deep: deep}
}

// Offset re-grounds a Named or ScopeShift substitution for use one binder
// deeper: every named target offset (and the scope-shift threshold) is
// bumped by `by`, and — since a replacement value now lands `by` binders
// deeper than where it was defined — every replacement's own free
// variables are shifted by `by` too, so that any reference it makes past
// its original insertion point still resolves correctly. This second half
// has no analogue in a naive offset-the-keys-only implementation, but is
// required for the substitution-associativity property in spec.md §8 to
// hold when a substituted value is carried across more than one binder in
// a single traversal (e.g. substituting into a lambda body that itself
// contains further nested lambdas).
func (s Substitutions) Offset(by term.StackOffset) Substitutions {
	if by == 0 {
		return s
	}
	switch s.kind {
	case substitutionNamed:
		entries := make([]NamedEntry, len(s.named))
		for i, e := range s.named {
			entries[i] = NamedEntry{Offset: e.Offset + by, Replacement: shiftFreeVariables(e.Replacement, by)}
		}
		return Substitutions{kind: substitutionNamed, named: entries, scope: s.scope}
	case substitutionScopeShift:
		return Substitutions{kind: substitutionScopeShift, shiftAmount: s.shiftAmount, shiftThreshold: s.shiftThreshold + by}
	default:
		return s
	}
}

// shiftFreeVariables bumps every free variable offset in t by `by`,
// returning t unchanged if it is closed or already collapses to the
// identity substitution.
func shiftFreeVariables(t *term.Term, by term.StackOffset) *term.Term {
	if term.CaptureDepth(t) == 0 {
		return t
	}
	shifted, changed := SubstituteStatic(t, NewScopeShiftSubstitutions(int64(by), 0), nil)
	if !changed {
		return t
	}
	return shifted
}

func (s Substitutions) lookupNamed(offset term.StackOffset) (*term.Term, bool) {
	for _, e := range s.named {
		if e.Offset == offset {
			return e.Replacement, true
		}
	}
	return nil, false
}
