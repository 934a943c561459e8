package rewrite

import "github.com/reflex-run/reflex/pkg/term"

// Evaluate drives Reduce and EtaReduce to a fixed point, producing t's
// weak-head-normal-form: a value, a Signal, or an irreducible shape
// (Lambda, PartialApplication, an Effect awaiting dynamic resolution,
// ...). It does not resolve Effect terms — that requires a DynamicState
// (see SubstituteDynamic; the interpreter in pkg/vm resolves effects
// itself when it executes LoadEffect). Evaluate eagerly evaluates an
// Application's arguments according to the target's arity (falling back
// to eager when the target has no declared arity); once every eager
// argument has been evaluated, any Signals among them are combined and
// returned in place of the application — spec.md §3.2's "a signal
// anywhere in an operator's arguments propagates".
func Evaluate(t *term.Term, registry BuiltinRegistry, heap *term.Heap) (*term.Term, bool) {
	changed := false
	for {
		switch t.Kind {
		case term.KindSignal:
			return t, changed

		case term.KindLet:
			t = reduceLet(t, heap)
			changed = true
			continue

		case term.KindRecursive:
			t = internIfPossible(term.NewApplication(t.Factory, []*term.Term{t}), heap)
			changed = true
			continue

		case term.KindLambda:
			if next, did := EtaReduce(t, heap); did {
				t = next
				changed = true
				continue
			}
			return t, changed

		case term.KindApplication, term.KindPartialApplication:
			newTarget, targetChanged := Evaluate(t.Target, registry, heap)
			if newTarget.Kind == term.KindSignal {
				return newTarget, true
			}

			arity, hasArity := arityOf(newTarget, registry)
			newArgs := make([]*term.Term, len(t.Args))
			var signals []*term.Term
			argsChanged := false
			for i, a := range t.Args {
				if hasArity && arity.EagernessFor(i) == term.Lazy {
					newArgs[i] = a
					continue
				}
				v, vc := Evaluate(a, registry, heap)
				if v.Kind == term.KindSignal {
					signals = append(signals, v)
				}
				newArgs[i] = v
				argsChanged = argsChanged || vc || v != a
			}
			if len(signals) > 0 {
				return term.CombineSignals(signals...), true
			}

			var rebuilt *term.Term
			if t.Kind == term.KindApplication {
				rebuilt = internIfPossible(term.NewApplication(newTarget, newArgs), heap)
			} else {
				rebuilt = internIfPossible(term.NewPartialApplication(newTarget, newArgs), heap)
			}

			if IsReducible(rebuilt, registry) {
				next, _ := Reduce(rebuilt, registry, heap)
				t = next
				changed = true
				continue
			}
			if targetChanged || argsChanged {
				t = rebuilt
				changed = true
			}
			return t, changed

		default:
			return t, changed
		}
	}
}

func arityOf(target *term.Term, registry BuiltinRegistry) (term.Arity, bool) {
	switch target.Kind {
	case term.KindLambda:
		return term.NewArity(int(target.NumArgs), 0, false, term.Eager), true
	case term.KindConstructor:
		return term.NewArity(len(target.Prototype.Keys), 0, false, term.Eager), true
	case term.KindBuiltin:
		if registry == nil {
			return term.Arity{}, false
		}
		return registry.Arity(target.BuiltinUID)
	default:
		return term.Arity{}, false
	}
}

// Normalize fully reduces t and every reachable subterm to normal form.
// It is used by the seed test scenarios, not by the interpreter's hot
// path, which only ever needs WHNF.
func Normalize(t *term.Term, registry BuiltinRegistry, heap *term.Heap) (*term.Term, bool) {
	whnf, changed := Evaluate(t, registry, heap)
	if whnf.Kind == term.KindSignal {
		return whnf, changed
	}
	switch whnf.Kind {
	case term.KindLambda:
		newBody, bc := Normalize(whnf.Body, registry, heap)
		if !bc {
			return whnf, changed
		}
		return internIfPossible(term.NewLambda(whnf.NumArgs, newBody), heap), true

	case term.KindApplication, term.KindPartialApplication:
		newTarget, tc := Normalize(whnf.Target, registry, heap)
		newArgs, ac := normalizeSlice(whnf.Args, registry, heap)
		if !tc && !ac {
			return whnf, changed
		}
		if whnf.Kind == term.KindApplication {
			return internIfPossible(term.NewApplication(newTarget, newArgs), heap), true
		}
		return internIfPossible(term.NewPartialApplication(newTarget, newArgs), heap), true

	case term.KindList:
		newItems, ic := normalizeSlice(whnf.Items, registry, heap)
		if !ic {
			return whnf, changed
		}
		return internIfPossible(term.NewList(newItems...), heap), true

	case term.KindHashSet:
		newItems, ic := normalizeSlice(whnf.Items, registry, heap)
		if !ic {
			return whnf, changed
		}
		return internIfPossible(term.NewHashSet(newItems...), heap), true

	case term.KindRecord:
		newValues, vc := normalizeSlice(whnf.Values, registry, heap)
		if !vc {
			return whnf, changed
		}
		return internIfPossible(term.NewRecord(whnf.Prototype, newValues), heap), true

	case term.KindHashMap:
		mapChanged := false
		newEntries := make([]term.MapEntry, len(whnf.Entries))
		for i, e := range whnf.Entries {
			nk, kc := Normalize(e.Key, registry, heap)
			nv, vc := Normalize(e.Value, registry, heap)
			newEntries[i] = term.MapEntry{Key: nk, Value: nv}
			mapChanged = mapChanged || kc || vc
		}
		if !mapChanged {
			return whnf, changed
		}
		return internIfPossible(term.NewHashMap(newEntries...), heap), true

	case term.KindLazyResult:
		newValue, vc := Normalize(whnf.Value, registry, heap)
		if !vc {
			return whnf, changed
		}
		return internIfPossible(term.NewLazyResult(newValue, whnf.Deps), heap), true

	default:
		return whnf, changed
	}
}

func normalizeSlice(items []*term.Term, registry BuiltinRegistry, heap *term.Heap) ([]*term.Term, bool) {
	if len(items) == 0 {
		return items, false
	}
	changed := false
	result := make([]*term.Term, len(items))
	for i, item := range items {
		n, c := Normalize(item, registry, heap)
		result[i] = n
		changed = changed || c
	}
	if !changed {
		return items, false
	}
	return result, true
}
