package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStability(t *testing.T) {
	a := NewApplication(NewLambda(1, NewVariable(0)), []*Term{NewInt(5)})
	b := NewApplication(NewLambda(1, NewVariable(0)), []*Term{NewInt(5)})
	require.Equal(t, a.ID(), b.ID(), "structurally identical terms must hash identically")

	c := NewApplication(NewLambda(1, NewVariable(0)), []*Term{NewInt(6)})
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestEqualUsesStructuralIdentity(t *testing.T) {
	x := NewList(NewInt(1), NewInt(2), NewInt(3))
	y := NewList(NewInt(1), NewInt(2), NewInt(3))
	assert.True(t, x.Equal(y))

	z := NewList(NewInt(1), NewInt(2))
	assert.False(t, x.Equal(z))
}

func TestSignalIdentityIsOrderIndependent(t *testing.T) {
	c1 := NewCustomCondition(NewString("foo"), NewInt(1), NewNil())
	c2 := NewCustomCondition(NewString("bar"), NewInt(2), NewNil())

	s1 := NewSignal(c1, c2)
	s2 := NewSignal(c2, c1)
	assert.Equal(t, s1.ID(), s2.ID(), "signal identity must not depend on construction order")
}

func TestConditionErrorDominatesPending(t *testing.T) {
	errCond := NewErrorCondition(NewString("boom"))
	pending := NewPendingCondition()

	resolved := NewSignal(errCond)
	assert.False(t, resolved.IsUnresolved())

	mixed := NewSignal(errCond, pending)
	assert.True(t, mixed.IsUnresolved(), "pending alongside error keeps the signal unresolved")
}

func TestCombineSignalsUnionsConditions(t *testing.T) {
	c1 := NewPendingCondition()
	c2 := NewErrorCondition(NewInt(1))
	s1 := NewSignal(c1)
	s2 := NewSignal(c2)

	combined := CombineSignals(s1, s2)
	require.Equal(t, KindSignal, combined.Kind)
	assert.Len(t, combined.Conditions, 2)
}
