package compiler

import (
	"fmt"

	"github.com/reflex-run/reflex/pkg/rewrite"
	"github.com/reflex-run/reflex/pkg/term"
)

// CompileError reports a term that cannot be lowered to bytecode: an
// arity mismatch (spec.md §4.2.3 step 2: "if fewer than required args,
// emit compile error") or a term of a kind compileInline has no case
// for. It is a distinguished type so a
// caller can tell a compile-time shape error apart from any other error
// (spec.md §7, SPEC_FULL.md §10).
type CompileError struct {
	Term *term.Term
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %s (term=%s)", e.Msg, e.Term)
}

// Compiler lowers terms into a single growing Program. It is explicitly
// caller-owned state, not a package global (spec.md §9's "no global
// mutable state in the core" applies here exactly as it did to
// pkg/term.Heap): a long-lived host process may keep one Compiler around
// across many top-level queries so the data section and function table
// accumulate shared structure.
type Compiler struct {
	prog *Program

	// dataSection maps an interned closed term's id to the code address
	// of its compiled chunk (spec.md §4.2.5).
	dataSection map[uint64]uint32

	// functions maps a Lambda's structural hash to its compiled Function
	// chunk's address (spec.md §4.2.4), and functionArity records the
	// matching calling convention so a later Application whose target is
	// a CompiledFunction referencing this hash can still resolve static
	// arity for eagerness/error-checking purposes.
	functions     map[uint64]uint32
	functionArity map[uint64]term.Arity

	registry rewrite.BuiltinRegistry
}

// NewCompiler returns a Compiler that resolves Builtin targets' calling
// conventions through registry (nil is allowed; a Builtin target then has
// no static arity, so every argument is compiled eagerly and the call is
// an Apply over however many arguments the site supplies — see
// staticArity).
func NewCompiler(registry rewrite.BuiltinRegistry) *Compiler {
	return &Compiler{
		prog:          NewProgram(),
		dataSection:   make(map[uint64]uint32),
		functions:     make(map[uint64]uint32),
		functionArity: make(map[uint64]term.Arity),
		registry:      registry,
	}
}

// Compile lowers t as a top-level expression (Eager, stack_offset=0) and
// returns the program together with t's entry address.
func (c *Compiler) Compile(t *term.Term) (*Program, uint32, error) {
	entry := c.prog.Len()
	if err := c.compileTerm(t, 0, true); err != nil {
		return nil, 0, err
	}
	c.prog.emit(Instruction{Op: OpReturn})
	return c.prog, entry, nil
}

// Program returns the program built so far, for incremental compilation
// (e.g. compiling a Lambda once and later compiling further expressions
// that reference its already-interned address).
func (c *Compiler) Program() *Program { return c.prog }

// compileTerm is the should_intern-aware entry point every subterm goes
// through: static, closed terms get compiled once into the data section
// and referenced by LoadStaticData afterwards (spec.md §4.2.5).
func (c *Compiler) compileTerm(t *term.Term, stackOffset term.StackOffset, eager bool) error {
	if shouldIntern(t, eager) {
		addr, ok := c.dataSection[t.ID()]
		if !ok {
			var err error
			addr, err = c.compileChunk(t)
			if err != nil {
				return err
			}
			c.dataSection[t.ID()] = addr
		}
		c.prog.emit(Instruction{Op: OpLoadStaticData, Address: addr})
		return nil
	}
	return c.compileInline(t, stackOffset, eager)
}

func (c *Compiler) compileChunk(t *term.Term) (uint32, error) {
	addr := c.prog.Len()
	if err := c.compileInline(t, 0, true); err != nil {
		return 0, err
	}
	c.prog.emit(Instruction{Op: OpReturn})
	return addr, nil
}

// shouldIntern decides whether t is worth hoisting into the data section.
// Primitives always are (trivial, frequently repeated, and identical
// regardless of surrounding eagerness). A closed (capture_depth == 0)
// data shape — List, HashSet, HashMap, Record, Constructor — is interned
// only in eager context and only when it carries no nested dynamic
// dependency (term.HasDynamicDependencies): a Lazy construction is
// deliberately re-evaluated at each use site, and even an Eager one must
// not be permanently cached if an Effect is buried inside it (a List
// element, say) — caching that would freeze a reactive value forever at
// whatever it first resolved to. Lambda, Application/PartialApplication,
// Let and Effect are never interned here: a Lambda already gets its own
// dedup-by-hash function table entry (compileLambda), and the others
// either have runtime evaluation behavior the data section isn't meant to
// short-circuit or (Effect) depend on state the term's own structure
// doesn't capture (spec.md §4.2.1, §4.2.5).
func shouldIntern(t *term.Term, eager bool) bool {
	switch t.Kind {
	case term.KindNil, term.KindBoolean, term.KindInt, term.KindFloat, term.KindString,
		term.KindSymbol, term.KindTimestamp, term.KindBuiltin, term.KindCompiledFunction:
		return true
	case term.KindList, term.KindHashSet, term.KindHashMap, term.KindRecord, term.KindConstructor:
		return eager && term.CaptureDepth(t) == 0 && !term.HasDynamicDependencies(t, true)
	default:
		return false
	}
}

func (c *Compiler) compileInline(t *term.Term, stackOffset term.StackOffset, eager bool) error {
	switch t.Kind {
	case term.KindNil:
		c.prog.emit(Instruction{Op: OpPushNil})
		return nil
	case term.KindBoolean:
		c.prog.emit(Instruction{Op: OpPushBoolean, Bool: t.Bool})
		return nil
	case term.KindInt:
		c.prog.emit(Instruction{Op: OpPushInt, Int: t.Int})
		return nil
	case term.KindFloat:
		c.prog.emit(Instruction{Op: OpPushFloat, Float: t.Float})
		return nil
	case term.KindString:
		c.prog.emit(Instruction{Op: OpPushString, Str: t.Str})
		return nil
	case term.KindSymbol:
		c.prog.emit(Instruction{Op: OpPushSymbol, UID: t.Sym})
		return nil
	case term.KindTimestamp:
		c.prog.emit(Instruction{Op: OpPushTimestamp, Int: t.Timestamp})
		return nil
	case term.KindVariable:
		c.prog.emit(Instruction{Op: OpPushLocal, Count: int(t.Offset + stackOffset)})
		return nil
	case term.KindBuiltin:
		c.prog.emit(Instruction{Op: OpPushBuiltin, UID: t.BuiltinUID})
		return nil
	case term.KindCompiledFunction:
		c.prog.emit(Instruction{Op: OpPushFunction, Address: t.CompiledAddress, Hash: t.CompiledHash})
		return nil
	case term.KindLambda:
		addr, hash, captures, err := c.compileLambda(t)
		if err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpPushFunction, Address: addr, Hash: hash})
		if len(captures) == 0 {
			return nil
		}
		// A closed function value can't carry its captures implicitly, so
		// it is wrapped as a PartialApplication over them right here,
		// matching the target-then-args stack layout every other
		// ConstructPartialApplication site uses.
		for i, off := range captures {
			c.prog.emit(Instruction{Op: OpPushLocal, Count: int(off+stackOffset) + i + 1})
		}
		c.prog.emit(Instruction{Op: OpConstructPartialApplication, Count: len(captures)})
		return nil
	case term.KindLet:
		return c.compileLet(t, stackOffset, eager)
	case term.KindRecursive:
		return c.compileRecursive(t, stackOffset, eager)
	case term.KindApplication:
		return c.compileApplication(t, stackOffset, eager, false)
	case term.KindPartialApplication:
		return c.compileApplication(t, stackOffset, eager, true)
	case term.KindList:
		if err := c.compileSequence(t.Items, stackOffset, true); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpConstructList, Count: len(t.Items)})
		return nil
	case term.KindHashSet:
		if err := c.compileSequence(t.Items, stackOffset, true); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpConstructHashSet, Count: len(t.Items)})
		return nil
	case term.KindHashMap:
		for i, e := range t.Entries {
			if err := c.compileTerm(e.Key, stackOffset+term.StackOffset(2*i), true); err != nil {
				return err
			}
			if err := c.compileTerm(e.Value, stackOffset+term.StackOffset(2*i+1), true); err != nil {
				return err
			}
		}
		c.prog.emit(Instruction{Op: OpConstructHashMap, Count: len(t.Entries)})
		return nil
	case term.KindConstructor:
		c.prog.emit(Instruction{Op: OpConstructConstructor, Keys: t.Prototype.Keys})
		return nil
	case term.KindRecord:
		// A literal Record compiles as its Constructor applied to its
		// field values (spec.md §4.2.7: "ConstructRecord (via Apply on a
		// Constructor)") — there is no dedicated record-literal opcode.
		// The constructor is pushed first (as the call target), then the
		// field values, matching the target-then-args stack layout every
		// other Apply site uses.
		c.prog.emit(Instruction{Op: OpConstructConstructor, Keys: t.Prototype.Keys})
		if err := c.compileSequence(t.Values, stackOffset+1, true); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpApply, Count: len(t.Values)})
		return nil
	case term.KindSignal:
		// Each compiled condition nets exactly one value on the operand
		// stack (its sub-terms are consumed by the ConstructXCondition
		// instruction that ends it), so the running offset advances by
		// one per condition regardless of how many sub-terms that
		// condition's own kind happens to push internally.
		for i, cond := range t.Conditions {
			if err := c.compileCondition(cond, stackOffset+term.StackOffset(i)); err != nil {
				return err
			}
		}
		c.prog.emit(Instruction{Op: OpCombineSignals, Count: len(t.Conditions)})
		return nil
	case term.KindEffect:
		if err := c.compileCondition(t.Condition, stackOffset); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpLoadEffect})
		return nil
	case term.KindLazyResult:
		// Only ever synthesized by the interpreter's own result cache
		// (spec.md §4.3); a term arriving from source never constructs
		// one directly, so compiling it just compiles the wrapped value.
		return c.compileTerm(t.Value, stackOffset, eager)
	default:
		return &CompileError{Term: t, Msg: fmt.Sprintf("cannot compile term of kind %s", t.Kind)}
	}
}

func (c *Compiler) compileSequence(items []*term.Term, stackOffset term.StackOffset, eager bool) error {
	for i, item := range items {
		if err := c.compileTerm(item, stackOffset+term.StackOffset(i), eager); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileCondition(cond *term.Condition, stackOffset term.StackOffset) error {
	switch cond.Kind {
	case term.ConditionCustom:
		if err := c.compileTerm(cond.EffectType, stackOffset, true); err != nil {
			return err
		}
		if err := c.compileTerm(cond.Payload, stackOffset+1, true); err != nil {
			return err
		}
		if err := c.compileTerm(cond.Token, stackOffset+2, true); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpConstructCustomCondition})
		return nil
	case term.ConditionPending:
		c.prog.emit(Instruction{Op: OpConstructPendingCondition})
		return nil
	case term.ConditionError:
		if err := c.compileTerm(cond.ErrorPayload, stackOffset, true); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpConstructErrorCondition})
		return nil
	default:
		return fmt.Errorf("unknown condition kind %d", cond.Kind)
	}
}

// compileLet implements spec.md §4.2.2's stack-offset discipline.
// Body is compiled at the SAME stackOffset as Init, not stackOffset+1:
// a variable reference's own de-Bruijn index already counts every
// enclosing binder below it, Let's included, so Body's Variable(0) —
// addressing the value Init just pushed — resolves correctly as soon as
// Body's own instructions start, with no extra slots to account for yet.
// stackOffset only ever needs to grow to track transient pushes that are
// NOT already counted by a binder index (e.g. a Builtin pushed ahead of
// its own arguments within one application, in compileArgs); crossing a
// Let boundary introduces no such untracked push, so nothing is added
// here.
//
// The bound value is popped again with Squash(1) once the body has
// produced its result, exactly as a Lambda's own Squash(required) pops
// its arguments after its body runs: every scope that pushes a binding
// is responsible for removing it again, so that a function's single
// trailing Squash(required) only ever has to account for its own
// parameters, never for however many Lets happened to run along the
// path its body took.
func (c *Compiler) compileLet(t *term.Term, stackOffset term.StackOffset, eager bool) error {
	if err := c.compileTerm(t.Init, stackOffset, true); err != nil {
		return err
	}
	if err := c.compileTerm(t.Body, stackOffset, eager); err != nil {
		return err
	}
	c.prog.emit(Instruction{Op: OpSquash, Count: 1})
	return nil
}

// compileRecursive has no dedicated opcode (spec.md §4.2.7 lists none):
// it unrolls one step via the same reduction rule the interpreter would
// apply at runtime and compiles the result, letting ordinary Application/
// Lambda compilation (including the function table's dedup-by-hash) take
// it from there.
func (c *Compiler) compileRecursive(t *term.Term, stackOffset term.StackOffset, eager bool) error {
	unrolled, _ := rewrite.Reduce(t, c.registry, nil)
	return c.compileTerm(unrolled, stackOffset, eager)
}

// compileLambda implements spec.md §4.2.4, deduplicating by structural
// hash so a lambda referenced from multiple call sites (or appearing
// identically after alpha-equivalent rewriting) is compiled exactly once.
//
// Unlike the tree-walking evaluator, compiled code has no implicit access
// to an enclosing lexical environment: a nested Lambda's free variables —
// references reaching past its own NumArgs into whatever scope it was
// written in — must become explicit leading parameters before it can be
// compiled as its own standalone function chunk (SPEC_FULL.md §9/§12).
// rewrite.HoistFreeVariables does the renumbering; the returned capture
// offsets describe, in the caller's own scope, the values an occurrence
// of t must supply alongside its own arguments.
func (c *Compiler) compileLambda(t *term.Term) (addr uint32, hash uint64, captures []term.StackOffset, err error) {
	captures, hoisted := rewrite.HoistFreeVariables(t, nil)
	fn := hoisted
	if len(captures) > 0 {
		fn = term.NewLambda(hoisted.NumArgs+term.StackOffset(len(captures)), hoisted.Body)
	}

	hash = fn.ID()
	if addr, ok := c.functions[hash]; ok {
		return addr, hash, captures, nil
	}
	addr = c.prog.Len()
	c.functions[hash] = addr
	c.functionArity[hash] = term.NewArity(int(t.NumArgs), 0, false, term.Lazy)

	c.prog.emit(Instruction{Op: OpFunction, Hash: hash, Required: int(fn.NumArgs), Optional: 0})
	if err := c.compileTerm(fn.Body, 0, true); err != nil {
		return 0, 0, nil, err
	}
	if fn.NumArgs > 0 {
		c.prog.emit(Instruction{Op: OpSquash, Count: int(fn.NumArgs)})
	}
	c.prog.emit(Instruction{Op: OpReturn})
	return addr, hash, captures, nil
}

// staticArity resolves a call target's arity at compile time when
// possible, so application compilation can choose eager/lazy per
// argument and detect an under-application compile error (spec.md
// §4.2.3 steps 2-3). User lambdas default every parameter to Lazy,
// matching Reflex's call-by-need default; a Constructor's fields must be
// concrete values to build a Record, so they are Eager; a Builtin's
// convention comes from the registry.
func (c *Compiler) staticArity(target *term.Term) (term.Arity, bool) {
	switch target.Kind {
	case term.KindLambda:
		return term.NewArity(int(target.NumArgs), 0, false, term.Lazy), true
	case term.KindConstructor:
		return term.NewArity(len(target.Prototype.Keys), 0, false, term.Eager), true
	case term.KindBuiltin:
		if c.registry == nil {
			return term.Arity{}, false
		}
		return c.registry.Arity(target.BuiltinUID)
	case term.KindCompiledFunction:
		a, ok := c.functionArity[target.CompiledHash]
		return a, ok
	default:
		return term.Arity{}, false
	}
}

// compileApplication implements spec.md §4.2.3 (partial=false) and its
// PartialApplication analogue (partial=true, which always emits
// ConstructPartialApplication regardless of arity — a partial application
// term is by definition deferring the remaining call, so it is always
// built as data rather than dispatched).
func (c *Compiler) compileApplication(t *term.Term, stackOffset term.StackOffset, eager, partial bool) error {
	args := t.Args
	arity, hasArity := c.staticArity(t.Target)
	if hasArity && len(args) < arity.Min() {
		return &CompileError{Term: t, Msg: "too few arguments for target arity"}
	}

	// Target, when pushed at all, is emitted before any argument, so its
	// own variable references see only the stackOffset locals already on
	// the stack at that point — not the arguments about to follow. Each
	// argument, once its turn comes, sees the target's pushed value (if
	// any) plus every earlier argument already pushed ahead of it.
	if partial {
		if err := c.compileTerm(t.Target, stackOffset, eager); err != nil {
			return err
		}
		if err := c.compileArgs(args, arity, hasArity, stackOffset+1); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpConstructPartialApplication, Count: len(args)})
		return nil
	}

	if eager && t.Target.Kind == term.KindLambda {
		addr, hash, captures, err := c.compileLambda(t.Target)
		if err != nil {
			return err
		}
		// Call references the function by address/hash, so no target
		// value occupies the stack ahead of the arguments — but any
		// captures the target hoisted must still be pushed, ahead of the
		// call's own arguments, since the compiled function now expects
		// them as its own leading parameters.
		for i, off := range captures {
			c.prog.emit(Instruction{Op: OpPushLocal, Count: int(off+stackOffset) + i})
		}
		if err := c.compileArgs(args, arity, hasArity, stackOffset+term.StackOffset(len(captures))); err != nil {
			return err
		}
		c.prog.emit(Instruction{Op: OpCall, Address: addr, Hash: hash, Count: len(captures) + len(args)})
		return nil
	}

	if err := c.compileTerm(t.Target, stackOffset, eager); err != nil {
		return err
	}
	if err := c.compileArgs(args, arity, hasArity, stackOffset+1); err != nil {
		return err
	}

	if !eager {
		c.prog.emit(Instruction{Op: OpConstructApplication, Count: len(args)})
		return nil
	}
	if t.Target.Kind != term.KindBuiltin && t.Target.Kind != term.KindLambda && t.Target.Kind != term.KindConstructor {
		c.prog.emit(Instruction{Op: OpEvaluate})
	}
	c.prog.emit(Instruction{Op: OpApply, Count: len(args)})
	return nil
}

func (c *Compiler) compileArgs(args []*term.Term, arity term.Arity, hasArity bool, stackOffset term.StackOffset) error {
	for i, a := range args {
		eager := true
		if hasArity {
			eager = arity.EagernessFor(i) == term.Eager
		}
		if err := c.compileTerm(a, stackOffset+term.StackOffset(i), eager); err != nil {
			return err
		}
	}
	return nil
}
