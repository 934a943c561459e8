package term

// The New* functions below are the sole way to build a Term. Each computes
// its structural id eagerly so that callers may use a freshly constructed
// term as a map key (e.g. for the compiler's data-section dedup) without an
// extra interning pass.

var nilTerm = &Term{Kind: KindNil}

// NewNil returns the singleton Nil term.
func NewNil() *Term { return nilTerm }

func NewBoolean(b bool) *Term { return finish(&Term{Kind: KindBoolean, Bool: b}) }

func NewInt(i int64) *Term { return finish(&Term{Kind: KindInt, Int: i}) }

func NewFloat(f float64) *Term { return finish(&Term{Kind: KindFloat, Float: f}) }

func NewString(s string) *Term { return finish(&Term{Kind: KindString, Str: s}) }

func NewSymbol(id uint32) *Term { return finish(&Term{Kind: KindSymbol, Sym: id}) }

func NewTimestamp(millis int64) *Term { return finish(&Term{Kind: KindTimestamp, Timestamp: millis}) }

// NewVariable constructs a reference to the binding `offset` scopes out from
// the point of use (0 = innermost enclosing binder).
func NewVariable(offset StackOffset) *Term {
	return finish(&Term{Kind: KindVariable, Offset: offset})
}

// NewLambda constructs an `numArgs`-ary function closing over `body`.
func NewLambda(numArgs StackOffset, body *Term) *Term {
	return finish(&Term{Kind: KindLambda, NumArgs: numArgs, Body: body})
}

// NewLet binds `init` at offset 0 within `body`.
func NewLet(init, body *Term) *Term {
	return finish(&Term{Kind: KindLet, Init: init, Body: body})
}

// NewApplication applies `target` to `args`, evaluated (or not) according
// to the compiler's eagerness rules for the target's arity.
func NewApplication(target *Term, args []*Term) *Term {
	return finish(&Term{Kind: KindApplication, Target: target, Args: args})
}

// NewPartialApplication pre-applies `preset` to `target`, deferring the
// remaining arguments to a later Application.
func NewPartialApplication(target *Term, preset []*Term) *Term {
	return finish(&Term{Kind: KindPartialApplication, Target: target, Args: preset})
}

// NewRecursive wraps a factory lambda that receives itself as its sole
// argument when reduced (a Y-combinator-style unrolling).
func NewRecursive(factory *Term) *Term {
	return finish(&Term{Kind: KindRecursive, Factory: factory})
}

func NewList(items ...*Term) *Term { return finish(&Term{Kind: KindList, Items: items}) }

func NewHashSet(members ...*Term) *Term { return finish(&Term{Kind: KindHashSet, Items: members}) }

func NewHashMap(entries ...MapEntry) *Term { return finish(&Term{Kind: KindHashMap, Entries: entries}) }

// NewConstructor builds a record factory for the given field prototype.
func NewConstructor(prototype *StructPrototype) *Term {
	return finish(&Term{Kind: KindConstructor, Prototype: prototype})
}

// NewRecord builds a concrete record. len(values) must equal
// len(prototype.Keys); callers normally only reach this via Constructor's
// Apply rather than constructing one directly.
func NewRecord(prototype *StructPrototype, values []*Term) *Term {
	return finish(&Term{Kind: KindRecord, Prototype: prototype, Values: values})
}

// NewSignal canonicalizes and wraps a nonempty condition set.
func NewSignal(conditions ...*Condition) *Term {
	canon := canonicalizeConditions(conditions)
	return finish(&Term{Kind: KindSignal, Conditions: canon})
}

// NewEffect constructs a term that forces a state lookup of `condition`
// when evaluated.
func NewEffect(condition *Condition) *Term {
	return finish(&Term{Kind: KindEffect, Condition: condition})
}

// NewLazyResult wraps an already-materialized evaluation result together
// with the dependencies that produced it.
func NewLazyResult(value *Term, deps DependencyList) *Term {
	return finish(&Term{Kind: KindLazyResult, Value: value, Deps: deps})
}

func NewBuiltin(uid uint32) *Term { return finish(&Term{Kind: KindBuiltin, BuiltinUID: uid}) }

// NewCompiledFunction references a lambda's compiled entry point by
// program address and the structural hash used to intern it.
func NewCompiledFunction(address uint32, hash uint64) *Term {
	return finish(&Term{Kind: KindCompiledFunction, CompiledAddress: address, CompiledHash: hash})
}

func finish(t *Term) *Term {
	t.id = hashTerm(t)
	return t
}
