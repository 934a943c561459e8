package term

// This file implements the graph-node metrics of spec.md §3.3 (component
// B). As with hashing, every metric is a free function switching on Kind
// rather than a per-variant method, per the tagged-union design note.

// Size counts t's subterms including t itself.
func Size(t *Term) int {
	switch t.Kind {
	case KindLambda:
		return 1 + Size(t.Body)
	case KindLet:
		return 1 + Size(t.Init) + Size(t.Body)
	case KindApplication, KindPartialApplication:
		n := 1 + Size(t.Target)
		for _, a := range t.Args {
			n += Size(a)
		}
		return n
	case KindRecursive:
		return 1 + Size(t.Factory)
	case KindList, KindHashSet:
		n := 1
		for _, item := range t.Items {
			n += Size(item)
		}
		return n
	case KindRecord:
		n := 1
		for _, v := range t.Values {
			n += Size(v)
		}
		return n
	case KindHashMap:
		n := 1
		for _, e := range t.Entries {
			n += Size(e.Key) + Size(e.Value)
		}
		return n
	case KindLazyResult:
		return 1 + Size(t.Value)
	default:
		return 1
	}
}

func satSub(a, b StackOffset) StackOffset {
	if b >= a {
		return 0
	}
	return a - b
}

func maxOffset(a, b StackOffset) StackOffset {
	if a > b {
		return a
	}
	return b
}

// CaptureDepth returns 1 + the maximum free-variable offset referenced by
// t, or 0 if t is closed.
func CaptureDepth(t *Term) StackOffset {
	switch t.Kind {
	case KindVariable:
		return t.Offset + 1
	case KindLambda:
		return satSub(CaptureDepth(t.Body), t.NumArgs)
	case KindLet:
		return maxOffset(CaptureDepth(t.Init), satSub(CaptureDepth(t.Body), 1))
	case KindApplication, KindPartialApplication:
		d := CaptureDepth(t.Target)
		for _, a := range t.Args {
			d = maxOffset(d, CaptureDepth(a))
		}
		return d
	case KindRecursive:
		return CaptureDepth(t.Factory)
	case KindList, KindHashSet:
		var d StackOffset
		for _, item := range t.Items {
			d = maxOffset(d, CaptureDepth(item))
		}
		return d
	case KindRecord:
		var d StackOffset
		for _, v := range t.Values {
			d = maxOffset(d, CaptureDepth(v))
		}
		return d
	case KindHashMap:
		var d StackOffset
		for _, e := range t.Entries {
			d = maxOffset(d, CaptureDepth(e.Key))
			d = maxOffset(d, CaptureDepth(e.Value))
		}
		return d
	case KindLazyResult:
		return CaptureDepth(t.Value)
	default:
		return 0
	}
}

// FreeVariableSet is the set of stack offsets a term references without
// binding them itself.
type FreeVariableSet map[StackOffset]struct{}

func mergeSet(dst, src FreeVariableSet) {
	for k := range src {
		dst[k] = struct{}{}
	}
}

// FreeVariables computes the set of free variable offsets in t, relative
// to t's own scope.
func FreeVariables(t *Term) FreeVariableSet {
	result := FreeVariableSet{}
	switch t.Kind {
	case KindVariable:
		result[t.Offset] = struct{}{}
	case KindLambda:
		for off := range FreeVariables(t.Body) {
			if off >= t.NumArgs {
				result[off-t.NumArgs] = struct{}{}
			}
		}
	case KindLet:
		mergeSet(result, FreeVariables(t.Init))
		for off := range FreeVariables(t.Body) {
			if off >= 1 {
				result[off-1] = struct{}{}
			}
		}
	case KindApplication, KindPartialApplication:
		mergeSet(result, FreeVariables(t.Target))
		for _, a := range t.Args {
			mergeSet(result, FreeVariables(a))
		}
	case KindRecursive:
		mergeSet(result, FreeVariables(t.Factory))
	case KindList, KindHashSet:
		for _, item := range t.Items {
			mergeSet(result, FreeVariables(item))
		}
	case KindRecord:
		for _, v := range t.Values {
			mergeSet(result, FreeVariables(v))
		}
	case KindHashMap:
		for _, e := range t.Entries {
			mergeSet(result, FreeVariables(e.Key))
			mergeSet(result, FreeVariables(e.Value))
		}
	case KindLazyResult:
		mergeSet(result, FreeVariables(t.Value))
	}
	return result
}

// CountVariableUsages counts the occurrences of variable `offset` within t,
// relative to t's own scope.
func CountVariableUsages(t *Term, offset StackOffset) int {
	switch t.Kind {
	case KindVariable:
		if t.Offset == offset {
			return 1
		}
		return 0
	case KindLambda:
		return CountVariableUsages(t.Body, offset+t.NumArgs)
	case KindLet:
		return CountVariableUsages(t.Init, offset) + CountVariableUsages(t.Body, offset+1)
	case KindApplication, KindPartialApplication:
		n := CountVariableUsages(t.Target, offset)
		for _, a := range t.Args {
			n += CountVariableUsages(a, offset)
		}
		return n
	case KindRecursive:
		return CountVariableUsages(t.Factory, offset)
	case KindList, KindHashSet:
		n := 0
		for _, item := range t.Items {
			n += CountVariableUsages(item, offset)
		}
		return n
	case KindRecord:
		n := 0
		for _, v := range t.Values {
			n += CountVariableUsages(v, offset)
		}
		return n
	case KindHashMap:
		n := 0
		for _, e := range t.Entries {
			n += CountVariableUsages(e.Key, offset) + CountVariableUsages(e.Value, offset)
		}
		return n
	case KindLazyResult:
		return CountVariableUsages(t.Value, offset)
	default:
		return 0
	}
}

// HasDynamicDependencies reports whether evaluating t could require a
// state lookup. Reducible forms (Let, Application, Recursive) always
// recurse regardless of deep, since reducing them is unavoidable on the
// way to a value. Lambda always recurses into its body too (a closure's
// capacity to need state is a property of the body, independent of when
// it runs) but DynamicDependencies below only surfaces that body's actual
// token list when deep is set, since the body's effects aren't incurred
// until the lambda is applied. Data constructors (List/Record/HashMap/
// HashSet) only recurse when deep, matching "transitively, if deep" in
// spec.md §3.3.
func HasDynamicDependencies(t *Term, deep bool) bool {
	switch t.Kind {
	case KindEffect, KindLazyResult:
		return true
	case KindLambda:
		return HasDynamicDependencies(t.Body, deep)
	case KindLet:
		return HasDynamicDependencies(t.Init, deep) || HasDynamicDependencies(t.Body, deep)
	case KindApplication, KindPartialApplication:
		if HasDynamicDependencies(t.Target, deep) {
			return true
		}
		for _, a := range t.Args {
			if HasDynamicDependencies(a, deep) {
				return true
			}
		}
		return false
	case KindRecursive:
		return HasDynamicDependencies(t.Factory, deep)
	case KindList, KindHashSet:
		if !deep {
			return false
		}
		for _, item := range t.Items {
			if HasDynamicDependencies(item, deep) {
				return true
			}
		}
		return false
	case KindRecord:
		if !deep {
			return false
		}
		for _, v := range t.Values {
			if HasDynamicDependencies(v, deep) {
				return true
			}
		}
		return false
	case KindHashMap:
		if !deep {
			return false
		}
		for _, e := range t.Entries {
			if HasDynamicDependencies(e.Key, deep) || HasDynamicDependencies(e.Value, deep) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// DynamicDependencies returns the set of state-tokens evaluating t would
// touch, per the same traversal rules as HasDynamicDependencies.
func DynamicDependencies(t *Term, deep bool) DependencyList {
	var result DependencyList
	switch t.Kind {
	case KindEffect:
		result.Add(t.Condition.ID())
	case KindLazyResult:
		result.Merge(t.Deps)
	case KindLambda:
		if deep {
			result.Merge(DynamicDependencies(t.Body, deep))
		}
	case KindLet:
		result.Merge(DynamicDependencies(t.Init, deep))
		result.Merge(DynamicDependencies(t.Body, deep))
	case KindApplication, KindPartialApplication:
		result.Merge(DynamicDependencies(t.Target, deep))
		for _, a := range t.Args {
			result.Merge(DynamicDependencies(a, deep))
		}
	case KindRecursive:
		result.Merge(DynamicDependencies(t.Factory, deep))
	case KindList, KindHashSet:
		if deep {
			for _, item := range t.Items {
				result.Merge(DynamicDependencies(item, deep))
			}
		}
	case KindRecord:
		if deep {
			for _, v := range t.Values {
				result.Merge(DynamicDependencies(v, deep))
			}
		}
	case KindHashMap:
		if deep {
			for _, e := range t.Entries {
				result.Merge(DynamicDependencies(e.Key, deep))
				result.Merge(DynamicDependencies(e.Value, deep))
			}
		}
	}
	return result
}

// IsStatic reports whether t evaluates to itself without substitution:
// true for primitives, Lambda, PartialApplication, Constructor, Builtin
// and CompiledFunction (spec.md §3.3).
func IsStatic(t *Term) bool {
	switch t.Kind {
	case KindNil, KindBoolean, KindInt, KindFloat, KindString, KindSymbol, KindTimestamp,
		KindLambda, KindPartialApplication, KindConstructor, KindBuiltin, KindCompiledFunction:
		return true
	default:
		return false
	}
}

// IsAtomic reports whether t has no substructure.
func IsAtomic(t *Term) bool {
	switch t.Kind {
	case KindNil, KindBoolean, KindInt, KindFloat, KindString, KindSymbol, KindTimestamp,
		KindVariable, KindBuiltin, KindCompiledFunction, KindConstructor, KindEffect, KindSignal:
		return true
	default:
		return false
	}
}

// IsComplex reports whether t is a compound term with children reached via
// the rewriting traversal (the complement of IsAtomic).
func IsComplex(t *Term) bool { return !IsAtomic(t) }
