package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLambdaCaptureDepthAndFreeVariables(t *testing.T) {
	// \x y -> x + z   (z is free at offset 0 relative to the lambda's own scope: offset 2)
	body := NewApplication(NewBuiltin(1), []*Term{NewVariable(1), NewVariable(2)})
	lambda := NewLambda(2, body)

	assert.Equal(t, StackOffset(1), CaptureDepth(lambda))
	fv := FreeVariables(lambda)
	_, ok := fv[0]
	assert.True(t, ok)
	assert.Len(t, fv, 1)
}

func TestClosedLambdaHasZeroCaptureDepth(t *testing.T) {
	id := NewLambda(1, NewVariable(0))
	assert.Equal(t, StackOffset(0), CaptureDepth(id))
	assert.Empty(t, FreeVariables(id))
}

func TestCountVariableUsages(t *testing.T) {
	body := NewApplication(NewBuiltin(1), []*Term{NewVariable(0), NewVariable(0), NewVariable(1)})
	assert.Equal(t, 2, CountVariableUsages(body, 0))
	assert.Equal(t, 1, CountVariableUsages(body, 1))
}

func TestIsStaticIsAtomicIsComplex(t *testing.T) {
	assert.True(t, IsStatic(NewInt(1)))
	assert.True(t, IsStatic(NewLambda(0, NewNil())))
	assert.False(t, IsStatic(NewVariable(0)))
	assert.False(t, IsStatic(NewApplication(NewBuiltin(1), nil)))

	assert.True(t, IsAtomic(NewVariable(0)))
	assert.False(t, IsAtomic(NewLambda(0, NewNil())))

	assert.True(t, IsComplex(NewLambda(0, NewNil())))
	assert.False(t, IsComplex(NewVariable(0)))
}

func TestDynamicDependencies(t *testing.T) {
	cond := NewCustomCondition(NewString("fetch"), NewNil(), NewNil())
	effect := NewEffect(cond)
	lambda := NewLambda(1, effect)

	assert.True(t, HasDynamicDependencies(effect, false))
	assert.True(t, HasDynamicDependencies(lambda, false), "lambda body is always inspected")
	assert.Empty(t, DynamicDependencies(lambda, false).Tokens(), "but its deps aren't surfaced unless deep")
	deps := DynamicDependencies(lambda, true)
	assert.Equal(t, []uint64{cond.ID()}, deps.Tokens())
}
