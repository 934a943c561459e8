package rewrite

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflex-run/reflex/pkg/term"
)

// fakeBuiltins provides just enough of a BuiltinRegistry to exercise
// reduction and evaluation in tests: uid 1 is binary integer addition,
// uid 2 is a lazy two-armed "if".
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

func TestReduceLetSubstitutesAndUnwraps(t *testing.T) {
	// let x = 5 in x + 1
	letTerm := term.NewLet(term.NewInt(5), add(term.NewVariable(0), term.NewInt(1)))
	result, changed := Reduce(letTerm, fakeBuiltins{}, nil)
	require.True(t, changed)
	assert.Equal(t, term.KindApplication, result.Kind)

	normalized, _ := Normalize(letTerm, fakeBuiltins{}, nil)
	assert.Equal(t, int64(6), normalized.Int)
}

func TestReduceApplicationExactArity(t *testing.T) {
	// (\x y -> x + y)(2, 3)
	lambda := term.NewLambda(2, add(term.NewVariable(1), term.NewVariable(0)))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(2), term.NewInt(3)})
	result, _ := Normalize(app, fakeBuiltins{}, nil)
	assert.Equal(t, int64(5), result.Int)
}

func TestReduceApplicationUnderAritySpecializesIntoSmallerLambda(t *testing.T) {
	lambda := term.NewLambda(2, add(term.NewVariable(1), term.NewVariable(0)))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(2)})
	result, changed := Reduce(app, fakeBuiltins{}, nil)
	require.True(t, changed)
	require.Equal(t, term.KindLambda, result.Kind)
	require.Equal(t, term.StackOffset(1), result.NumArgs)

	full := term.NewApplication(result, []*term.Term{term.NewInt(3)})
	final, _ := Normalize(full, fakeBuiltins{}, nil)
	assert.Equal(t, int64(5), final.Int)
}

func TestLambdaHoistingSquashesFreeVariables(t *testing.T) {
	// body references offsets 0 and 2, relative to its own scope
	body := add(term.NewVariable(0), term.NewVariable(2))
	offsets, rewritten := HoistFreeVariables(body, nil)
	require.Equal(t, []term.StackOffset{0, 2}, offsets)
	assert.Equal(t, term.StackOffset(2), term.CaptureDepth(rewritten), "two distinct captures compact into offsets 0..1")
}

func TestEtaReduceCollapsesIdentityWrapper(t *testing.T) {
	// \x -> f(x)  where f is free (offset 1 relative to the lambda body)
	f := term.NewVariable(1)
	lambda := term.NewLambda(1, term.NewApplication(f, []*term.Term{term.NewVariable(0)}))
	reduced, did := EtaReduce(lambda, nil)
	require.True(t, did)
	assert.Equal(t, term.KindVariable, reduced.Kind)
	assert.Equal(t, term.StackOffset(0), reduced.Offset, "f's offset shifts down by the removed binder")
}

func TestEtaReduceDoesNotFireWhenTargetCapturesBoundVariable(t *testing.T) {
	// \x -> x(x) is not an eta-redex: the target itself uses the bound variable
	lambda := term.NewLambda(1, term.NewApplication(term.NewVariable(0), []*term.Term{term.NewVariable(0)}))
	_, did := EtaReduce(lambda, nil)
	assert.False(t, did)
}

func TestSignalPropagatesThroughApplicationArguments(t *testing.T) {
	signal := term.NewSignal(term.NewPendingCondition())
	app := add(term.NewInt(1), signal)
	result, changed := Evaluate(app, fakeBuiltins{}, nil)
	require.True(t, changed)
	require.Equal(t, term.KindSignal, result.Kind)
	assert.True(t, result.IsUnresolved())
}

func TestEvaluateLeavesLazyArgumentsUnevaluated(t *testing.T) {
	// if(true, 1+1, <signal>) must not evaluate the signal-producing else-branch
	signal := term.NewSignal(term.NewErrorCondition(term.NewString("should not run")))
	ifApp := term.NewApplication(term.NewBuiltin(2), []*term.Term{
		term.NewBoolean(true),
		add(term.NewInt(1), term.NewInt(1)),
		signal,
	})
	result, _ := Normalize(ifApp, fakeBuiltins{}, nil)
	assert.Equal(t, int64(2), result.Int)
}

func TestInlineLambdaArgValuesLetBindsMultiplyUsedNonStaticArg(t *testing.T) {
	effect := term.NewEffect(term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil()))
	// \x -> x + x, fully substituted with a non-static, multiply-used effect term
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewVariable(0)))
	result := InlineLambdaArgValues(lambda, []ArgSubstitution{{Offset: 0, Value: effect}}, nil)
	require.Equal(t, term.KindLambda, result.Kind, "InlineLambdaArgValues always returns a Lambda, even fully applied")
	require.Equal(t, term.StackOffset(0), result.NumArgs)
	require.Equal(t, term.KindLet, result.Body.Kind, "non-static arg used twice must be let-bound, not duplicated")
	assert.True(t, result.Body.Init.Equal(effect))
}

func TestInlineLambdaArgValuesInlinesSingleUseArg(t *testing.T) {
	effect := term.NewEffect(term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil()))
	lambda := term.NewLambda(1, add(term.NewVariable(0), term.NewInt(1)))
	result := InlineLambdaArgValues(lambda, []ArgSubstitution{{Offset: 0, Value: effect}}, nil)
	require.Equal(t, term.KindLambda, result.Kind)
	assert.NotEqual(t, term.KindLet, result.Body.Kind, "single-use arg should be inlined directly")
}

func TestInlineLambdaArgValuesPartialSubstitutionKeepsSmallerLambda(t *testing.T) {
	// \w x y z -> ((w+x) + (y+y)) + z, matching inline_lambda_arg_values's
	// own reflex-lang test: substitute 1 of 4 args and get back a 3-arg lambda.
	body := add(add(add(term.NewVariable(3), term.NewVariable(2)), add(term.NewVariable(1), term.NewVariable(1))), term.NewVariable(0))
	lambda := term.NewLambda(4, body)

	// offset 2 corresponds to the second parameter from the left (x), per
	// the n-1-i call-order convention applyLambda also uses.
	result := InlineLambdaArgValues(lambda, []ArgSubstitution{{Offset: 2, Value: term.NewInt(10)}}, nil)
	require.Equal(t, term.KindLambda, result.Kind)
	require.Equal(t, term.StackOffset(3), result.NumArgs, "3 parameters remain unbound")

	// surviving lambda is \a b c -> ((a+10) + (b+b)) + c
	full := term.NewApplication(result, []*term.Term{term.NewInt(1), term.NewInt(2), term.NewInt(3)})
	final, _ := Normalize(full, fakeBuiltins{}, nil)
	assert.Equal(t, int64(18), final.Int)
}

func TestDynamicSubstitutionResolvesEffectAndTracksDependency(t *testing.T) {
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil())
	effect := term.NewEffect(cond)
	state := fakeState{values: map[uint64]*term.Term{cond.ID(): term.NewInt(42)}}

	result, deps := SubstituteDynamic(effect, state, false, nil)
	assert.Equal(t, int64(42), result.Int)
	assert.True(t, deps.Has(cond.ID()))
}

func TestDynamicSubstitutionPendingWhenUnresolved(t *testing.T) {
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil())
	effect := term.NewEffect(cond)
	state := fakeState{}

	result, deps := SubstituteDynamic(effect, state, false, nil)
	assert.Equal(t, term.KindSignal, result.Kind)
	assert.True(t, result.IsUnresolved())
	assert.True(t, deps.Has(cond.ID()))
}

type fakeState struct {
	values map[uint64]*term.Term
}

func (s fakeState) Get(token uint64) (*term.Term, bool) {
	v, ok := s.values[token]
	return v, ok
}
