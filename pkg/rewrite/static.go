package rewrite

import "github.com/reflex-run/reflex/pkg/term"

// SubstituteStatic applies a Named or ScopeShift substitution to every free
// variable (and effect payload) in t, returning the rewritten term and
// whether anything actually changed. It is a no-op pass-through for a
// Dynamic substitution set — those only affect Effect terms and are
// applied by SubstituteDynamic instead (spec.md §4.1.1 distinguishes the
// two passes so that a compiled function body can be rewritten once per
// call with static argument values, independently of whichever reactive
// state happens to be current when it runs).
func SubstituteStatic(t *term.Term, subs Substitutions, heap *term.Heap) (*term.Term, bool) {
	if subs.kind == substitutionDynamic {
		return t, false
	}
	switch t.Kind {
	case term.KindVariable:
		return substituteVariableStatic(t, subs)

	case term.KindLambda:
		newBody, changed := SubstituteStatic(t.Body, subs.Offset(t.NumArgs), heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewLambda(t.NumArgs, newBody), heap), true

	case term.KindLet:
		newInit, initChanged := SubstituteStatic(t.Init, subs, heap)
		newBody, bodyChanged := SubstituteStatic(t.Body, subs.Offset(1), heap)
		if !initChanged && !bodyChanged {
			return t, false
		}
		return internIfPossible(term.NewLet(newInit, newBody), heap), true

	case term.KindApplication, term.KindPartialApplication:
		newTarget, targetChanged := SubstituteStatic(t.Target, subs, heap)
		newArgs, argsChanged := substituteTermsStatic(t.Args, subs, heap)
		if !targetChanged && !argsChanged {
			return t, false
		}
		if t.Kind == term.KindApplication {
			return internIfPossible(term.NewApplication(newTarget, newArgs), heap), true
		}
		return internIfPossible(term.NewPartialApplication(newTarget, newArgs), heap), true

	case term.KindRecursive:
		newFactory, changed := SubstituteStatic(t.Factory, subs, heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewRecursive(newFactory), heap), true

	case term.KindList:
		newItems, changed := substituteTermsStatic(t.Items, subs, heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewList(newItems...), heap), true

	case term.KindHashSet:
		newItems, changed := substituteTermsStatic(t.Items, subs, heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewHashSet(newItems...), heap), true

	case term.KindRecord:
		newValues, changed := substituteTermsStatic(t.Values, subs, heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewRecord(t.Prototype, newValues), heap), true

	case term.KindHashMap:
		changed := false
		newEntries := make([]term.MapEntry, len(t.Entries))
		for i, e := range t.Entries {
			newKey, kc := SubstituteStatic(e.Key, subs, heap)
			newVal, vc := SubstituteStatic(e.Value, subs, heap)
			newEntries[i] = term.MapEntry{Key: newKey, Value: newVal}
			changed = changed || kc || vc
		}
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewHashMap(newEntries...), heap), true

	case term.KindLazyResult:
		newValue, changed := SubstituteStatic(t.Value, subs, heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewLazyResult(newValue, t.Deps), heap), true

	case term.KindEffect:
		newCond, changed := substituteConditionStatic(t.Condition, subs, heap)
		if !changed {
			return t, false
		}
		return internIfPossible(term.NewEffect(newCond), heap), true

	default:
		return t, false
	}
}

func substituteVariableStatic(t *term.Term, subs Substitutions) (*term.Term, bool) {
	switch subs.kind {
	case substitutionNamed:
		if replacement, ok := subs.lookupNamed(t.Offset); ok {
			return replacement, true
		}
		if subs.scope != nil {
			newOffset := subs.scope.apply(t.Offset)
			if newOffset == t.Offset {
				return t, false
			}
			return term.NewVariable(newOffset), true
		}
		return t, false
	case substitutionScopeShift:
		if t.Offset < subs.shiftThreshold {
			return t, false
		}
		shifted := int64(t.Offset) + subs.shiftAmount
		if shifted < 0 {
			shifted = 0
		}
		newOffset := term.StackOffset(shifted)
		if newOffset == t.Offset {
			return t, false
		}
		return term.NewVariable(newOffset), true
	default:
		return t, false
	}
}

func substituteTermsStatic(items []*term.Term, subs Substitutions, heap *term.Heap) ([]*term.Term, bool) {
	if len(items) == 0 {
		return items, false
	}
	changed := false
	result := make([]*term.Term, len(items))
	for i, item := range items {
		newItem, itemChanged := SubstituteStatic(item, subs, heap)
		result[i] = newItem
		changed = changed || itemChanged
	}
	if !changed {
		return items, false
	}
	return result, true
}

func substituteConditionStatic(c *term.Condition, subs Substitutions, heap *term.Heap) (*term.Condition, bool) {
	switch c.Kind {
	case term.ConditionCustom:
		newType, tc := SubstituteStatic(c.EffectType, subs, heap)
		newPayload, pc := SubstituteStatic(c.Payload, subs, heap)
		newToken, kc := SubstituteStatic(c.Token, subs, heap)
		if !tc && !pc && !kc {
			return c, false
		}
		return term.NewCustomCondition(newType, newPayload, newToken), true
	case term.ConditionError:
		newPayload, changed := SubstituteStatic(c.ErrorPayload, subs, heap)
		if !changed {
			return c, false
		}
		return term.NewErrorCondition(newPayload), true
	default:
		return c, false
	}
}

// internIfPossible interns t in heap when one is supplied, and is a no-op
// pass-through otherwise — substitution is used both inside a Heap-backed
// compiler pipeline and in bare unit tests that have no need of sharing.
func internIfPossible(t *term.Term, heap *term.Heap) *term.Term {
	if heap == nil {
		return t
	}
	return heap.Intern(t)
}
