package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflex-run/reflex/pkg/term"
)

func offset(n MessageOffset) *MessageOffset { return &n }

func TestUpdatesSinceNilIncludesEveryBatch(t *testing.T) {
	c := NewGlobalStateCache()
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil())
	c.apply(0, []StateUpdate{{Condition: cond, Value: term.NewInt(1)}})

	keep := map[uint64]*term.Condition{cond.ID(): cond}
	got := c.updatesSince(nil, keep)

	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Value.Int)
}

func TestUpdatesSinceExcludesObservedBatch(t *testing.T) {
	c := NewGlobalStateCache()
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil())
	c.apply(0, []StateUpdate{{Condition: cond, Value: term.NewInt(1)}})

	keep := map[uint64]*term.Condition{cond.ID(): cond}
	got := c.updatesSince(offset(0), keep)

	assert.Empty(t, got, "a worker that has already observed index 0 should not see it again")
}

func TestGCRetainsBatchesNeededByUnsnapshottedWorker(t *testing.T) {
	c := NewGlobalStateCache()
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewNil(), term.NewNil())
	c.apply(0, []StateUpdate{{Condition: cond, Value: term.NewInt(1)}})

	c.gc(nil)
	assert.Len(t, c.batches, 1, "a nil minIndex means some worker has taken no snapshot yet, so nothing may be dropped")

	c.gc(offset(0))
	assert.Empty(t, c.batches)
}

func TestRetainDropsUnreferencedCombinedState(t *testing.T) {
	c := NewGlobalStateCache()
	keep := term.NewCustomCondition(term.NewString("fetch"), term.NewString("a"), term.NewNil())
	drop := term.NewCustomCondition(term.NewString("fetch"), term.NewString("b"), term.NewNil())
	c.apply(0, []StateUpdate{
		{Condition: keep, Value: term.NewInt(1)},
		{Condition: drop, Value: term.NewInt(2)},
	})

	c.retain(map[uint64]struct{}{keep.ID(): {}})

	_, stillThere := c.Get(keep.ID())
	_, gone := c.Get(drop.ID())
	assert.True(t, stillThere)
	assert.False(t, gone)
}
