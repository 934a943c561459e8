package term

// CollectConditions walks every subterm reachable from t — crossing Lambda
// bodies, Let bindings, application targets/args, and every collection
// shape — and returns each distinct Custom condition found, keyed by its
// state-token id. It does not stop at reduction boundaries the way
// substitute_dynamic's shallow mode does (spec.md §4.1.1): it exists to let
// the evaluate handler (pkg/scheduler) recover the actual Condition value a
// dependency token refers to, since DependencyList (spec.md §4.3) only
// carries the bare token a LoadEffect touched, not the Condition object
// needed to build an EffectSubscribeAction's effects list (spec.md §4.4.3,
// §6.1).
func CollectConditions(t *Term) map[uint64]*Condition {
	out := make(map[uint64]*Condition)
	seen := make(map[uint64]bool)
	collectConditionsRec(t, out, seen)
	return out
}

func collectConditionsRec(t *Term, out map[uint64]*Condition, seen map[uint64]bool) {
	if t == nil {
		return
	}
	id := t.ID()
	if seen[id] {
		return
	}
	seen[id] = true

	switch t.Kind {
	case KindEffect:
		if t.Condition != nil && t.Condition.Kind == ConditionCustom {
			out[t.Condition.ID()] = t.Condition
		}
	case KindLambda:
		collectConditionsRec(t.Body, out, seen)
	case KindLet:
		collectConditionsRec(t.Init, out, seen)
		collectConditionsRec(t.Body, out, seen)
	case KindApplication, KindPartialApplication:
		collectConditionsRec(t.Target, out, seen)
		for _, a := range t.Args {
			collectConditionsRec(a, out, seen)
		}
	case KindRecursive:
		collectConditionsRec(t.Factory, out, seen)
	case KindList, KindHashSet:
		for _, it := range t.Items {
			collectConditionsRec(it, out, seen)
		}
	case KindRecord:
		for _, v := range t.Values {
			collectConditionsRec(v, out, seen)
		}
	case KindHashMap:
		for _, e := range t.Entries {
			collectConditionsRec(e.Key, out, seen)
			collectConditionsRec(e.Value, out, seen)
		}
	case KindSignal:
		for _, c := range t.Conditions {
			if c.Kind == ConditionCustom {
				out[c.ID()] = c
			}
		}
	}
}
