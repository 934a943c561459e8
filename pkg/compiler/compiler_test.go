package compiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflex-run/reflex/pkg/term"
)

// fakeBuiltins mirrors pkg/rewrite's test registry: uid 1 is eager binary
// integer addition, uid 2 is a three-arg lazy-branch "if".
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
	return nil, fmt.Errorf("fakeBuiltins.Apply not used by compiler tests")
}

func findOp(t *testing.T, code []Instruction, op Op) int {
	t.Helper()
	for i, ins := range code {
		if ins.Op == op {
			return i
		}
	}
	return -1
}

func TestCompileIntLiteralInternsIntoDataSection(t *testing.T) {
	c := NewCompiler(fakeBuiltins{})
	prog, entry, err := c.Compile(term.NewInt(42))
	require.NoError(t, err)

	require.Equal(t, OpLoadStaticData, prog.Code[entry].Op)
	chunkAddr := prog.Code[entry].Address
	require.Equal(t, OpPushInt, prog.Code[chunkAddr].Op)
	assert.Equal(t, int64(42), prog.Code[chunkAddr].Int)
	assert.Equal(t, OpReturn, prog.Code[chunkAddr+1].Op)

	// Compiling the same literal again must reuse the interned chunk
	// rather than emitting a duplicate.
	prog2, entry2, err := c.Compile(term.NewInt(42))
	require.NoError(t, err)
	assert.Same(t, prog, prog2)
	assert.Equal(t, chunkAddr, prog.Code[entry2].Address)
}

func TestCompileLambdaCallCompilesToCall(t *testing.T) {
	// (\x -> x)(5)
	lambda := term.NewLambda(1, term.NewVariable(0))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(5)})

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(app)
	require.NoError(t, err)

	idx := findOp(t, c.Program().Code, OpCall)
	require.GreaterOrEqual(t, idx, 0, "expected a Call instruction somewhere in the program")
	assert.Equal(t, 1, c.Program().Code[idx].Count)

	fnIdx := findOp(t, c.Program().Code, OpFunction)
	require.GreaterOrEqual(t, fnIdx, 0)
	assert.Equal(t, 1, c.Program().Code[fnIdx].Required)
}

func TestCompileEagerBuiltinApplicationCompilesToApply(t *testing.T) {
	// \x -> add(x, 2): an Application is never interned into the data
	// section, so the call compiles to an Apply inside the function body.
	app := term.NewApplication(term.NewBuiltin(1), []*term.Term{term.NewVariable(0), term.NewInt(2)})
	lambda := term.NewLambda(1, app)

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(lambda)
	require.NoError(t, err)

	code := c.Program().Code
	applyIdx := findOp(t, code, OpApply)
	require.GreaterOrEqual(t, applyIdx, 0)
	assert.Equal(t, 2, code[applyIdx].Count)
	// Both arguments are eager for uid 1, so no ConstructApplication should
	// appear for this call site.
	assert.Equal(t, -1, findOp(t, code, OpConstructApplication))
}

func TestCompileLazyBuiltinArgumentSkipsEagerEvaluation(t *testing.T) {
	// if(true, add(1,2), add(3,4)) — branches are lazy, so their Apply
	// instructions must not appear unconditionally ahead of the branch
	// dispatch; both branch bodies still compile (to be run on demand),
	// but they are not wrapped in an eager Evaluate before the call.
	branchA := term.NewApplication(term.NewBuiltin(1), []*term.Term{term.NewInt(1), term.NewInt(2)})
	branchB := term.NewApplication(term.NewBuiltin(1), []*term.Term{term.NewInt(3), term.NewInt(4)})
	ifCall := term.NewApplication(term.NewBuiltin(2), []*term.Term{term.NewBoolean(true), branchA, branchB})

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(ifCall)
	require.NoError(t, err)

	idx := findOp(t, c.Program().Code, OpApply)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 3, c.Program().Code[idx].Count)
}

func TestCompileUnderArityApplicationIsCompileError(t *testing.T) {
	lambda := term.NewLambda(2, term.NewVariable(0))
	app := term.NewApplication(lambda, []*term.Term{term.NewInt(1)})

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(app)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
}

func TestCompileListConstructsAllElements(t *testing.T) {
	list := term.NewList(term.NewInt(1), term.NewInt(2), term.NewInt(3))

	c := NewCompiler(fakeBuiltins{})
	_, entry, err := c.Compile(list)
	require.NoError(t, err)

	// A closed eager List interns to the data section too.
	require.Equal(t, OpLoadStaticData, c.Program().Code[entry].Op)
	chunkAddr := c.Program().Code[entry].Address
	idx := findOp(t, c.Program().Code[chunkAddr:], OpConstructList)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 3, c.Program().Code[chunkAddr+uint32(idx)].Count)
}

func TestCompileRecursiveUnrollsBeforeCompiling(t *testing.T) {
	// A recursive value whose factory ignores its argument and always
	// returns 7: Recursive(\self -> 7). One Reduce step turns this into
	// an Application of the factory to itself, which this test merely
	// checks compiles without error and produces the constant somewhere
	// in the program.
	factory := term.NewLambda(1, term.NewInt(7))
	rec := term.NewRecursive(factory)

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(rec)
	require.NoError(t, err)

	idx := findOp(t, c.Program().Code, OpPushInt)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, int64(7), c.Program().Code[idx].Int)
}

func TestCompileSignalEmitsCombineSignals(t *testing.T) {
	sig := term.NewSignal(term.NewErrorCondition(term.NewString("boom")))

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(sig)
	require.NoError(t, err)

	idx := findOp(t, c.Program().Code, OpCombineSignals)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 1, c.Program().Code[idx].Count)

	errIdx := findOp(t, c.Program().Code, OpConstructErrorCondition)
	require.GreaterOrEqual(t, errIdx, 0)
}

func TestCompileEffectEmitsLoadEffect(t *testing.T) {
	effect := term.NewEffect(term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok")))

	c := NewCompiler(fakeBuiltins{})
	_, _, err := c.Compile(effect)
	require.NoError(t, err)

	idx := findOp(t, c.Program().Code, OpLoadEffect)
	require.GreaterOrEqual(t, idx, 0)
	condIdx := findOp(t, c.Program().Code, OpConstructCustomCondition)
	require.GreaterOrEqual(t, condIdx, 0)
	assert.Less(t, condIdx, idx)
}
