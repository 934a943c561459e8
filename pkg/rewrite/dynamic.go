package rewrite

import "github.com/reflex-run/reflex/pkg/term"

// DynamicState is the read-only view of scheduler state substitute_dynamic
// needs: given a condition's state-token, report its current resolved
// value (if any). Implementations live in pkg/scheduler; rewrite only
// depends on this narrow interface to stay free of any scheduler import.
type DynamicState interface {
	Get(stateToken uint64) (*term.Term, bool)
}

// SubstituteDynamic replaces every reachable Effect node with its current
// resolved value from state (or a single-condition Pending signal if state
// has no entry yet), accumulating every touched state-token into the
// returned DependencyList regardless of whether it resolved — an
// unresolved effect is still a dependency, since the caller must be
// re-invoked when it eventually does resolve (spec.md §4.1.1, §4.4.2).
//
// deep controls whether substitution reaches inside a Lambda body or a
// data constructor's children: false leaves closures untouched since
// their effects are not incurred until applied; true fully resolves every
// effect in the term, for when a closed, effect-free snapshot is
// required. (The interpreter in pkg/vm does not call this; it resolves
// effects itself when it executes LoadEffect.)
func SubstituteDynamic(t *term.Term, state DynamicState, deep bool, heap *term.Heap) (*term.Term, term.DependencyList) {
	var deps term.DependencyList
	result := substituteDynamicRec(t, state, deep, heap, &deps)
	return result, deps
}

func substituteDynamicRec(t *term.Term, state DynamicState, deep bool, heap *term.Heap, deps *term.DependencyList) *term.Term {
	switch t.Kind {
	case term.KindEffect:
		token := t.Condition.ID()
		deps.Add(token)
		if value, ok := state.Get(token); ok {
			return value
		}
		return term.NewSignal(term.NewPendingCondition())

	case term.KindLazyResult:
		deps.Merge(t.Deps)
		return t

	case term.KindLambda:
		if !deep {
			return t
		}
		newBody := substituteDynamicRec(t.Body, state, deep, heap, deps)
		if newBody == t.Body {
			return t
		}
		return internIfPossible(term.NewLambda(t.NumArgs, newBody), heap)

	case term.KindLet:
		newInit := substituteDynamicRec(t.Init, state, deep, heap, deps)
		newBody := substituteDynamicRec(t.Body, state, deep, heap, deps)
		if newInit == t.Init && newBody == t.Body {
			return t
		}
		return internIfPossible(term.NewLet(newInit, newBody), heap)

	case term.KindApplication, term.KindPartialApplication:
		newTarget := substituteDynamicRec(t.Target, state, deep, heap, deps)
		newArgs, changed := substituteDynamicSlice(t.Args, state, deep, heap, deps)
		if newTarget == t.Target && !changed {
			return t
		}
		if t.Kind == term.KindApplication {
			return internIfPossible(term.NewApplication(newTarget, newArgs), heap)
		}
		return internIfPossible(term.NewPartialApplication(newTarget, newArgs), heap)

	case term.KindRecursive:
		newFactory := substituteDynamicRec(t.Factory, state, deep, heap, deps)
		if newFactory == t.Factory {
			return t
		}
		return internIfPossible(term.NewRecursive(newFactory), heap)

	case term.KindList:
		if !deep {
			return t
		}
		newItems, changed := substituteDynamicSlice(t.Items, state, deep, heap, deps)
		if !changed {
			return t
		}
		return internIfPossible(term.NewList(newItems...), heap)

	case term.KindHashSet:
		if !deep {
			return t
		}
		newItems, changed := substituteDynamicSlice(t.Items, state, deep, heap, deps)
		if !changed {
			return t
		}
		return internIfPossible(term.NewHashSet(newItems...), heap)

	case term.KindRecord:
		if !deep {
			return t
		}
		newValues, changed := substituteDynamicSlice(t.Values, state, deep, heap, deps)
		if !changed {
			return t
		}
		return internIfPossible(term.NewRecord(t.Prototype, newValues), heap)

	case term.KindHashMap:
		if !deep {
			return t
		}
		changed := false
		newEntries := make([]term.MapEntry, len(t.Entries))
		for i, e := range t.Entries {
			newKey := substituteDynamicRec(e.Key, state, deep, heap, deps)
			newVal := substituteDynamicRec(e.Value, state, deep, heap, deps)
			newEntries[i] = term.MapEntry{Key: newKey, Value: newVal}
			changed = changed || newKey != e.Key || newVal != e.Value
		}
		if !changed {
			return t
		}
		return internIfPossible(term.NewHashMap(newEntries...), heap)

	default:
		return t
	}
}

func substituteDynamicSlice(items []*term.Term, state DynamicState, deep bool, heap *term.Heap, deps *term.DependencyList) ([]*term.Term, bool) {
	if len(items) == 0 {
		return items, false
	}
	changed := false
	result := make([]*term.Term, len(items))
	for i, item := range items {
		newItem := substituteDynamicRec(item, state, deep, heap, deps)
		result[i] = newItem
		if newItem != item {
			changed = true
		}
	}
	if !changed {
		return items, false
	}
	return result, true
}
