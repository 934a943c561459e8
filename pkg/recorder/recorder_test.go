package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflex-run/reflex/pkg/scheduler"
	"github.com/reflex-run/reflex/pkg/term"
)

func TestRecordCachesRepeatedConditionAsHit(t *testing.T) {
	r := New(nil)
	cond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))

	ev1 := r.Record("evaluate-handler", &scheduler.EffectSubscribeAction{
		EffectType: cond.EffectType,
		Effects:    []*term.Condition{cond},
	}, nil)
	require.Equal(t, []uint64{cond.ID()}, ev1.NewConditions)
	assert.Empty(t, ev1.CacheHitConditions)

	ev2 := r.Record("evaluate-handler", &scheduler.EffectUnsubscribeAction{
		EffectType: cond.EffectType,
		Effects:    []*term.Condition{cond},
	}, nil)
	assert.Empty(t, ev2.NewConditions)
	assert.Equal(t, []uint64{cond.ID()}, ev2.CacheHitConditions)

	assert.Len(t, r.Events(), 2)
}

func TestRecordTracksDistinctSessions(t *testing.T) {
	r1 := New(nil)
	r2 := New(nil)
	assert.NotEqual(t, r1.SessionID, r2.SessionID)
}

func TestRecordCachesEvaluateResultValue(t *testing.T) {
	r := New(nil)
	cacheKey := term.NewCustomCondition(term.NewString("reflex::core::evaluate"), term.NewNil(), term.NewNil())
	result := term.NewEvaluationResult(term.NewInt(7), term.NewDependencyList())

	ev := r.Record("w1", &scheduler.EvaluateResultAction{CacheKey: cacheKey, Result: result}, map[string]string{"label": "q1"})
	assert.Contains(t, ev.NewConditions, cacheKey.ID())
	assert.Contains(t, ev.NewTerms, result.Result.ID())
}
