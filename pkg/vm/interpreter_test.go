package vm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflex-run/reflex/pkg/compiler"
	"github.com/reflex-run/reflex/pkg/term"
)

// fakeBuiltins mirrors pkg/rewrite's and pkg/compiler's test registries:
// uid 1 is eager binary integer addition, uid 2 is a lazy two-armed "if".
type fakeBuiltins struct{}

func (fakeBuiltins) Arity(uid uint32) (term.Arity, bool) {
	switch uid {
	case 1:
		return term.NewArity(2, 0, false, term.Eager), true
	case 2:
		return term.NewArityWithEagerness(3, 0, false, []term.Eagerness{term.Eager, term.Lazy, term.Lazy}), true
	}
	return term.Arity{}, false
}

func (fakeBuiltins) Apply(uid uint32, args []*term.Term) (*term.Term, error) {
	switch uid {
	case 1:
		if args[0].Kind != term.KindInt || args[1].Kind != term.KindInt {
			return nil, fmt.Errorf("add: expected ints")
		}
		return term.NewInt(args[0].Int + args[1].Int), nil
	case 2:
		if args[0].Kind != term.KindBoolean {
			return nil, fmt.Errorf("if: expected bool condition")
		}
		if args[0].Bool {
			return args[1], nil
		}
		return args[2], nil
	}
	return nil, fmt.Errorf("unknown builtin %d", uid)
}

func add(args ...*term.Term) *term.Term {
	return term.NewApplication(term.NewBuiltin(1), args)
}

// fakeState is a minimal StateView: a fixed map of resolved values keyed
// by condition id, plus a fixed identity for the result cache.
type fakeState struct {
	id     uint64
	values map[uint64]*term.Term
}

func (s fakeState) Get(token uint64) (*term.Term, bool) {
	v, ok := s.values[token]
	return v, ok
}

func (s fakeState) ID() uint64 { return s.id }

func runProgram(t *testing.T, term_ *term.Term, state StateView) (*term.Term, term.DependencyList, error) {
	t.Helper()
	c := compiler.NewCompiler(fakeBuiltins{})
	prog, entry, err := c.Compile(term_)
	require.NoError(t, err)
	interp := NewInterpreter(prog, fakeBuiltins{}, nil)
	return interp.Run(entry, state)
}

func TestRunConstantReturnsItself(t *testing.T) {
	result, _, err := runProgram(t, term.NewInt(42), fakeState{id: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Int)
}

func TestRunLambdaCallInvokesCompiledFunction(t *testing.T) {
	// (\x -> x + 1)(41)
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewInt(1)))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(41)})

	result, _, err := runProgram(t, app, fakeState{id: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.Int)
}

func TestRunNestedLetsAddressVariablesAndSquashCorrectly(t *testing.T) {
	// (\x -> let a = x + 1 in let b = a + 1 in b + x)(10) == 12+10 == 22.
	// Exercises both that a doubly-nested Let still resolves the
	// outermost variable (x, two binders away) correctly and that the
	// two Lets' bindings are fully unwound by the time the lambda's own
	// Squash(1) runs.
	body := term.NewLet(
		add(term.NewVariable(0), term.NewInt(1)),
		term.NewLet(
			add(term.NewVariable(0), term.NewInt(1)),
			add(term.NewVariable(0), term.NewVariable(2)),
		),
	)
	lambda := term.NewLambda(1, body)
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(10)})

	result, _, err := runProgram(t, app, fakeState{id: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(22), result.Int)
}

func TestRunBuiltinApplicationUsesApplyFallback(t *testing.T) {
	// A free-variable argument keeps this application out of the data
	// section, forcing the Apply/rewrite.Evaluate fallback path to run at
	// interpretation time rather than everything folding at compile time.
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewInt(2)))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(3)})

	result, _, err := runProgram(t, app, fakeState{id: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Int)
}

func TestRunSignalPropagatesThroughNestedCall(t *testing.T) {
	// (\x -> x + 1)(effect) where the effect never resolves: the Signal
	// produced by LoadEffect must unwind all the way out to the program
	// result instead of being added to like an ordinary int.
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	effect := term.NewEffect(cond)
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewInt(1)))
	app := term.NewApplication(lambda, []*term.Term{effect})

	result, deps, err := runProgram(t, app, fakeState{id: 1})
	require.NoError(t, err)
	require.Equal(t, term.KindSignal, result.Kind)
	assert.True(t, deps.Has(cond.ID()))
}

func TestRunLoadEffectResolvesFromState(t *testing.T) {
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	effect := term.NewEffect(cond)
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewInt(1)))
	app := term.NewApplication(lambda, []*term.Term{effect})

	state := fakeState{id: 1, values: map[uint64]*term.Term{cond.ID(): term.NewInt(9)}}
	result, deps, err := runProgram(t, app, state)
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Int)
	assert.True(t, deps.Has(cond.ID()))
}

func TestRunUntakenThunkBranchNeverExecutes(t *testing.T) {
	// if(true, \()->7, \()->effect)() — this instruction set has no
	// conditional jump, so a bare value passed directly as a "lazy"
	// builtin argument still gets pushed unconditionally before Apply
	// fires. The only way an argument's code genuinely never runs is for
	// it to live inside an uncalled Lambda body: if(...) picks a
	// zero-arg thunk without invoking it, and only the caller's own
	// trailing Apply(0) decides which thunk's Call address is ever
	// jumped into.
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	thunkA := term.NewLambda(0, term.NewInt(7))
	thunkB := term.NewLambda(0, term.NewEffect(cond))
	ifCall := term.NewApplication(term.NewBuiltin(2), []*term.Term{term.NewBoolean(true), thunkA, thunkB})
	forced := term.NewApplication(ifCall, []*term.Term{})

	result, deps, err := runProgram(t, forced, fakeState{id: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Int)
	assert.Equal(t, 0, deps.Len(), "thunkB's body, and the effect inside it, must never run")
}

func TestRunNestedLambdaCapturesOuterArgsAcrossTwoCalls(t *testing.T) {
	// Lambda(3, Lambda(0, Add(Add(Var(0),Var(1)),Var(2)))) applied to
	// [1,2,3], then the resulting closure applied to [] — the inner
	// lambda's body is entirely free variables bound by the outer one, so
	// compiling it as a standalone function requires hoisting those three
	// captures into its own leading parameters and reconstructing them as
	// a PartialApplication at the call site.
	inner := term.NewLambda(0, add(add(term.NewVariable(0), term.NewVariable(1)), term.NewVariable(2)))
	outer := term.NewLambda(3, inner)
	applyOuter := term.NewApplication(outer, []*term.Term{term.NewInt(1), term.NewInt(2), term.NewInt(3)})
	applyInner := term.NewApplication(applyOuter, []*term.Term{})

	result, _, err := runProgram(t, applyInner, fakeState{id: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Int)
}

func TestRunResultCacheReturnsSameTermWithoutRecompute(t *testing.T) {
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewInt(1)))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(41)})

	c := compiler.NewCompiler(fakeBuiltins{})
	prog, entry, err := c.Compile(app)
	require.NoError(t, err)
	interp := NewInterpreter(prog, fakeBuiltins{}, nil)

	state := fakeState{id: 7}
	first, _, err := interp.Run(entry, state)
	require.NoError(t, err)

	second, deps, err := interp.Run(entry, state)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 0, deps.Len(), "a cache hit reports no freshly collected dependencies")
}

func TestRunUnresolvedSignalIsNeverCached(t *testing.T) {
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	effect := term.NewEffect(cond)

	c := compiler.NewCompiler(fakeBuiltins{})
	prog, entry, err := c.Compile(effect)
	require.NoError(t, err)
	interp := NewInterpreter(prog, fakeBuiltins{}, nil)

	state := fakeState{id: 3}
	first, _, err := interp.Run(entry, state)
	require.NoError(t, err)
	require.Equal(t, term.KindSignal, first.Kind)

	resolved := fakeState{id: 3, values: map[uint64]*term.Term{cond.ID(): term.NewInt(5)}}
	second, _, err := interp.Run(entry, resolved)
	require.NoError(t, err)
	assert.Equal(t, int64(5), second.Int, "a later state with the effect resolved must not be masked by a cached Pending signal")
}
