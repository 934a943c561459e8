// Package vm implements the bytecode interpreter described in spec.md
// §4.3 (component F): an operand-stack machine that executes a
// pkg/compiler.Program against a snapshot of dynamic state, producing a
// term and the set of state-tokens the evaluation depended on.
//
// Grounded on reflex-interpreter/src/term.rs for the per-instruction
// signal short-circuit/unwind semantics, and on the teacher's
// pkg/minikanren/stream.go for the explicit, single-goroutine-per-
// evaluation call-frame bookkeeping style this package follows (no
// shared mutable state between concurrent Run calls — each gets its own
// Interpreter.Run invocation with its own stack and call stack). The
// opcode-dispatch loop shape (switch on Op in a for{} loop, one case per
// instruction) follows other_examples' go-ethereum EVM interpreter
// excerpt, the pack's only real Go stack-machine reference.
package vm

import (
	"fmt"

	"github.com/reflex-run/reflex/pkg/compiler"
	"github.com/reflex-run/reflex/pkg/rewrite"
	"github.com/reflex-run/reflex/pkg/term"
)

// StateView is the dynamic state snapshot an evaluation runs against. It
// extends rewrite.DynamicState (reused unchanged from the pure term
// evaluator) with an identity so the interpreter's result cache can key
// on which snapshot produced a cached result (spec.md §4.3's "state-id").
type StateView interface {
	rewrite.DynamicState
	ID() uint64
}

// CacheKey identifies a memoizable evaluation: the same program, entry
// point, and state snapshot always reduce to the same result, so the
// interpreter never re-runs one it has already computed (spec.md §4.3).
// A Signal result is not cached (see Run), so that evaluation runs again.
type CacheKey struct {
	ProgramHash uint64
	Entry       uint32
	StateID     uint64
}

// value is whatever the operand stack holds: either a Term or a
// Condition under construction (a Condition is not itself a Term — it
// only becomes one wrapped in an Effect or a Signal — so the stack needs
// to carry both shapes between a Construct*Condition instruction and the
// CombineSignals/LoadEffect instruction that consumes it).
type value interface{}

type frame struct {
	returnAddr  uint32
	basePointer int
}

// RuntimeError reports a malformed bytecode stream or a structural
// mismatch the compiler should never produce (e.g. applying Apply/Call to
// a value of the wrong shape). It is distinguished from the signal
// short-circuit path, which is not an error: an unresolved or failed
// computation is valid data (a Signal term), not a Go error.
type RuntimeError struct {
	Addr uint32
	Msg  string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("vm: %s (at %d)", e.Msg, e.Addr)
}

// Interpreter runs compiled programs. It is caller-owned, matching
// pkg/compiler.Compiler and pkg/term.Heap: no package-level mutable
// state, so a host can run many interpreters (e.g. one per worker) over
// the same immutable Program concurrently as long as each uses its own
// Interpreter value — only the result cache is per-Interpreter mutable
// state, and it is never shared across instances.
type Interpreter struct {
	prog     *compiler.Program
	registry rewrite.BuiltinRegistry
	heap     *term.Heap

	dataCache   map[uint32]*term.Term
	resultCache map[CacheKey]*term.Term
}

// NewInterpreter returns an Interpreter bound to prog. registry resolves
// Builtin calling conventions the same way it does during compilation;
// heap may be nil (interning is an optimization, not a correctness
// requirement — see pkg/term.Heap).
func NewInterpreter(prog *compiler.Program, registry rewrite.BuiltinRegistry, heap *term.Heap) *Interpreter {
	return &Interpreter{
		prog:        prog,
		registry:    registry,
		heap:        heap,
		dataCache:   make(map[uint32]*term.Term),
		resultCache: make(map[CacheKey]*term.Term),
	}
}

// Run executes prog starting at entry against state, returning the
// resulting term (a value, or a Signal if the computation is pending or
// failed) and the dependency set collected along the way.
func (vm *Interpreter) Run(entry uint32, state StateView) (*term.Term, term.DependencyList, error) {
	key := CacheKey{ProgramHash: vm.prog.Hash(), Entry: entry, StateID: state.ID()}
	if cached, ok := vm.resultCache[key]; ok {
		return cached, term.DependencyList{}, nil
	}

	r := &run{vm: vm, state: state}
	result, err := r.exec(entry)
	if err != nil {
		return nil, term.DependencyList{}, err
	}
	if result.Kind != term.KindSignal {
		vm.resultCache[key] = result
	}
	return result, r.deps, nil
}

// run holds the per-invocation mutable machine state: the operand stack,
// call stack, and dependency accumulator (spec.md §4.3). A fresh run is
// created per Interpreter.Run call so concurrent evaluations never share
// a stack.
type run struct {
	vm    *Interpreter
	state StateView

	stack []value
	calls []frame
	deps  term.DependencyList
}

func (r *run) push(v value)    { r.stack = append(r.stack, v) }
func (r *run) pop() value {
	v := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	return v
}

func (r *run) popTerm(addr uint32) (*term.Term, error) {
	v := r.pop()
	t, ok := v.(*term.Term)
	if !ok {
		return nil, &RuntimeError{Addr: addr, Msg: "expected a term on the operand stack, found a condition"}
	}
	return t, nil
}

func (r *run) popCondition(addr uint32) (*term.Condition, error) {
	v := r.pop()
	c, ok := v.(*term.Condition)
	if !ok {
		return nil, &RuntimeError{Addr: addr, Msg: "expected a condition on the operand stack, found a term"}
	}
	return c, nil
}

// popTerms pops n terms and returns them in their original push order
// (index 0 is the one pushed first / deepest).
func (r *run) popTerms(addr uint32, n int) ([]*term.Term, error) {
	out := make([]*term.Term, n)
	for i := n - 1; i >= 0; i-- {
		t, err := r.popTerm(addr)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// exec runs the machine from ip until a Return with an empty call stack
// produces the final result.
func (r *run) exec(ip uint32) (*term.Term, error) {
	for {
		if int(ip) >= len(r.vm.prog.Code) {
			return nil, &RuntimeError{Addr: ip, Msg: "instruction pointer ran off the end of the program"}
		}
		ins := r.vm.prog.Code[ip]
		switch ins.Op {
		case compiler.OpPushNil:
			r.push(term.NewNil())
		case compiler.OpPushBoolean:
			r.push(term.NewBoolean(ins.Bool))
		case compiler.OpPushInt:
			r.push(term.NewInt(ins.Int))
		case compiler.OpPushFloat:
			r.push(term.NewFloat(ins.Float))
		case compiler.OpPushString:
			r.push(term.NewString(ins.Str))
		case compiler.OpPushSymbol:
			r.push(term.NewSymbol(ins.UID))
		case compiler.OpPushTimestamp:
			r.push(term.NewTimestamp(ins.Int))
		case compiler.OpPushLocal:
			idx := len(r.stack) - 1 - ins.Count
			if idx < 0 || idx >= len(r.stack) {
				return nil, &RuntimeError{Addr: ip, Msg: "PushLocal index out of range"}
			}
			r.push(r.stack[idx])
		case compiler.OpPushBuiltin:
			r.push(term.NewBuiltin(ins.UID))
		case compiler.OpPushFunction:
			r.push(term.NewCompiledFunction(ins.Address, ins.Hash))

		case compiler.OpLoadStaticData:
			cached, ok := r.vm.dataCache[ins.Address]
			if !ok {
				sub := &run{vm: r.vm, state: r.state}
				val, err := sub.exec(ins.Address)
				if err != nil {
					return nil, err
				}
				cached = val
				r.vm.dataCache[ins.Address] = val
			}
			r.push(cached)

		case compiler.OpConstructList:
			items, err := r.popTerms(ip, ins.Count)
			if err != nil {
				return nil, err
			}
			r.push(termIntern(r.vm.heap, term.NewList(items...)))
		case compiler.OpConstructHashSet:
			items, err := r.popTerms(ip, ins.Count)
			if err != nil {
				return nil, err
			}
			r.push(termIntern(r.vm.heap, term.NewHashSet(items...)))
		case compiler.OpConstructHashMap:
			flat, err := r.popTerms(ip, ins.Count*2)
			if err != nil {
				return nil, err
			}
			entries := make([]term.MapEntry, ins.Count)
			for i := 0; i < ins.Count; i++ {
				entries[i] = term.MapEntry{Key: flat[2*i], Value: flat[2*i+1]}
			}
			r.push(termIntern(r.vm.heap, term.NewHashMap(entries...)))
		case compiler.OpConstructConstructor:
			r.push(term.NewConstructor(term.NewStructPrototype(ins.Keys...)))

		case compiler.OpConstructApplication:
			args, err := r.popTerms(ip, ins.Count)
			if err != nil {
				return nil, err
			}
			target, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			r.push(termIntern(r.vm.heap, term.NewApplication(target, args)))
		case compiler.OpConstructPartialApplication:
			args, err := r.popTerms(ip, ins.Count)
			if err != nil {
				return nil, err
			}
			target, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			r.push(termIntern(r.vm.heap, term.NewPartialApplication(target, args)))

		case compiler.OpConstructCustomCondition:
			token, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			payload, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			effectType, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			r.push(term.NewCustomCondition(effectType, payload, token))
		case compiler.OpConstructPendingCondition:
			r.push(term.NewPendingCondition())
		case compiler.OpConstructErrorCondition:
			payload, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			r.push(term.NewErrorCondition(payload))
		case compiler.OpConstructLazyResult:
			v, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			r.push(termIntern(r.vm.heap, term.NewLazyResult(v, r.deps)))

		case compiler.OpCombineSignals:
			conds := make([]*term.Condition, ins.Count)
			for i := ins.Count - 1; i >= 0; i-- {
				c, err := r.popCondition(ip)
				if err != nil {
					return nil, err
				}
				conds[i] = c
			}
			r.push(term.NewSignal(conds...))

		case compiler.OpLoadEffect:
			cond, err := r.popCondition(ip)
			if err != nil {
				return nil, err
			}
			r.deps.Add(cond.ID())
			if val, ok := r.state.Get(cond.ID()); ok {
				r.push(val)
			} else {
				r.push(term.NewSignal(term.NewPendingCondition()))
			}

		case compiler.OpEvaluate:
			t, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			whnf, _ := rewrite.Evaluate(t, r.vm.registry, r.vm.heap)
			r.push(whnf)

		case compiler.OpApply:
			args, err := r.popTerms(ip, ins.Count)
			if err != nil {
				return nil, err
			}
			target, err := r.popTerm(ip)
			if err != nil {
				return nil, err
			}
			if sig := collectSignals(append([]*term.Term{target}, args...)); sig != nil {
				result, done, nextIP := r.unwind(sig)
				if done {
					return result, nil
				}
				r.push(result)
				ip = nextIP
				continue
			}
			result, jumpAddr, jumpArgs := r.apply(target, args)
			if jumpAddr != nil {
				r.calls = append(r.calls, frame{returnAddr: ip + 1, basePointer: len(r.stack)})
				for _, a := range jumpArgs {
					r.push(a)
				}
				ip = *jumpAddr
				continue
			}
			r.push(result)

		case compiler.OpCall:
			args, err := r.popTerms(ip, ins.Count)
			if err != nil {
				return nil, err
			}
			r.calls = append(r.calls, frame{returnAddr: ip + 1, basePointer: len(r.stack)})
			for _, a := range args {
				r.push(a)
			}
			ip = ins.Address
			continue

		case compiler.OpSquash:
			result := r.pop()
			if len(r.stack) < ins.Count {
				return nil, &RuntimeError{Addr: ip, Msg: "Squash depth exceeds stack size"}
			}
			r.stack = r.stack[:len(r.stack)-ins.Count]
			r.push(result)

		case compiler.OpFunction:
			// Marker only; execution falls through into the body.

		case compiler.OpReturn:
			result := r.pop()
			if len(r.calls) == 0 {
				t, ok := result.(*term.Term)
				if !ok {
					return nil, &RuntimeError{Addr: ip, Msg: "program returned a condition, not a term"}
				}
				return t, nil
			}
			f := r.calls[len(r.calls)-1]
			r.calls = r.calls[:len(r.calls)-1]
			r.push(result)
			ip = f.returnAddr
			continue

		default:
			return nil, &RuntimeError{Addr: ip, Msg: fmt.Sprintf("unknown opcode %s", ins.Op)}
		}
		ip++
	}
}

// collectSignals returns the combined Signal if any of ts is itself a
// Signal term, or nil if all are plain values (spec.md §3.2: a signal
// anywhere in an operator's arguments propagates).
func collectSignals(ts []*term.Term) *term.Term {
	var signals []*term.Term
	for _, t := range ts {
		if t.Kind == term.KindSignal {
			signals = append(signals, t)
		}
	}
	if len(signals) == 0 {
		return nil
	}
	return term.CombineSignals(signals...)
}

// unwind implements spec.md §4.3's "pops a Signal where a value was
// expected" rule: the current call frame is abandoned (its portion of
// the operand stack discarded) and sig becomes that frame's result,
// exactly as if the frame had executed Return early. If there is no
// enclosing frame, sig is the program's final result.
func (r *run) unwind(sig *term.Term) (result *term.Term, done bool, resumeAt uint32) {
	if len(r.calls) == 0 {
		return sig, true, 0
	}
	f := r.calls[len(r.calls)-1]
	r.calls = r.calls[:len(r.calls)-1]
	if f.basePointer <= len(r.stack) {
		r.stack = r.stack[:f.basePointer]
	}
	return sig, false, f.returnAddr
}

// apply implements Apply's dynamic dispatch (spec.md §4.2.3 step 6 /
// §4.3's "Apply invokes the term on top"). A CompiledFunction target has
// a known bytecode address, so apply reports it — and the args to push
// ahead of the jump — for the caller to act on directly.
//
// A PartialApplication wrapping a CompiledFunction needs the same
// treatment but can't go through pkg/rewrite's generic reduceApplication:
// that function only knows how to re-apply a PartialApplication's target
// through the tree-walking evaluator, which has no way to invoke a
// CompiledFunction at all (it has no body left to walk, only a bytecode
// address). So this merges the closure's captured args with the new ones
// here, and either jumps if that reaches the compiled function's own
// required arity (read directly off the OpFunction marker at its
// address — compileLambda already embeds it there) or re-wraps as a
// still-partial application otherwise.
//
// Every other target shape (Lambda, Constructor, Builtin) has no
// bytecode of its own to jump into — this is exactly the "compiling on
// the fly" case spec.md §4.3 describes, and since pkg/rewrite's
// Reduce/Evaluate already implement this calling convention over raw
// terms, apply delegates to them rather than re-implementing
// substitution-based application a second time here.
func (r *run) apply(target *term.Term, args []*term.Term) (result *term.Term, jumpAddr *uint32, jumpArgs []*term.Term) {
	if target.Kind == term.KindCompiledFunction {
		addr := target.CompiledAddress
		return nil, &addr, args
	}
	if target.Kind == term.KindPartialApplication && target.Target.Kind == term.KindCompiledFunction {
		fn := target.Target
		merged := make([]*term.Term, 0, len(target.Args)+len(args))
		merged = append(merged, target.Args...)
		merged = append(merged, args...)
		required := r.vm.prog.Code[fn.CompiledAddress].Required
		if len(merged) < required {
			return termIntern(r.vm.heap, term.NewPartialApplication(fn, merged)), nil, nil
		}
		addr := fn.CompiledAddress
		return nil, &addr, merged
	}
	built := termIntern(r.vm.heap, term.NewApplication(target, args))
	whnf, _ := rewrite.Evaluate(built, r.vm.registry, r.vm.heap)
	return whnf, nil, nil
}

func termIntern(heap *term.Heap, t *term.Term) *term.Term {
	if heap == nil {
		return t
	}
	return heap.Intern(t)
}
