package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflex-run/reflex/pkg/metrics"
	"github.com/reflex-run/reflex/pkg/term"
)

func newTestHandler() *Handler {
	return NewHandler(DefaultConfig(), metrics.Noop{}, DefaultMetricNames(), nil)
}

// subscribe sends a single EffectSubscribeAction for one evaluate-effect
// query and returns the condition the handler assigns as the worker's
// cache_key plus whatever actions the subscribe produced.
func subscribe(t *testing.T, h *Handler, state *EvaluateHandlerState, label string, query *term.Term, mode EvaluationMode, strategy InvalidationStrategy) (*term.Condition, []Action) {
	t.Helper()
	cond := CreateEvaluateEffect(label, query, mode, strategy)
	out, err := h.Handle(state, &EffectSubscribeAction{EffectType: evaluateEffectType, Effects: []*term.Condition{cond}})
	require.NoError(t, err)
	return cond, out
}

func TestSubscribeNewWorkerEmitsEvaluateStart(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()

	fetchCond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	query := term.NewEffect(fetchCond)

	cacheKey, out := subscribe(t, h, state, "q1", query, EvaluationModeQuery, InvalidationCombineUpdates)

	require.Len(t, out, 1)
	start, ok := out[0].(*EvaluateStartAction)
	require.True(t, ok)
	assert.True(t, start.CacheKey.Equal(cacheKey))
	assert.Equal(t, "q1", start.Label)
	assert.True(t, query.Equal(start.Query))
	assert.Len(t, state.Workers, 1)
}

func TestSubscribeExistingWorkerIncrementsRefcount(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()
	query := term.NewInt(1)

	cacheKey, _ := subscribe(t, h, state, "q1", query, EvaluationModeStandalone, InvalidationCombineUpdates)
	_, out := subscribe(t, h, state, "q1", query, EvaluationModeStandalone, InvalidationCombineUpdates)

	assert.Empty(t, out, "a second subscribe to an unresolved worker emits nothing until it has a cached result")
	assert.Equal(t, 2, state.Workers[cacheKey.ID()].SubscriptionCount)
}

func TestEvaluateResultSubscribesToNewlyDiscoveredDependency(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()

	fetchCond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	query := term.NewEffect(fetchCond)
	cacheKey, _ := subscribe(t, h, state, "q1", query, EvaluationModeQuery, InvalidationCombineUpdates)

	unresolved := term.NewEvaluationResult(term.NewSignal(term.NewPendingCondition()), term.NewDependencyList(fetchCond.ID()))
	out, err := h.Handle(state, &EvaluateResultAction{CacheKey: cacheKey, Result: unresolved})
	require.NoError(t, err)

	require.Len(t, out, 1)
	sub, ok := out[0].(*EffectSubscribeAction)
	require.True(t, ok)
	require.Len(t, sub.Effects, 1)
	assert.True(t, sub.Effects[0].Equal(fetchCond))

	w := state.Workers[cacheKey.ID()]
	assert.Equal(t, WorkerIdle, w.Status)
	assert.Contains(t, w.ActiveEffects, fetchCond.ID())
}

func TestEffectEmitResolvesWorkerAndUpdatesStateValues(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()

	fetchCond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	query := term.NewEffect(fetchCond)
	cacheKey, _ := subscribe(t, h, state, "q1", query, EvaluationModeQuery, InvalidationCombineUpdates)

	unresolved := term.NewEvaluationResult(term.NewSignal(term.NewPendingCondition()), term.NewDependencyList(fetchCond.ID()))
	_, err := h.Handle(state, &EvaluateResultAction{CacheKey: cacheKey, Result: unresolved})
	require.NoError(t, err)

	out, err := h.Handle(state, &EffectEmitAction{EffectTypes: []EffectUpdateBatch{{
		EffectType: fetchCond.EffectType,
		Updates:    []StateUpdate{{Condition: fetchCond, Value: term.NewInt(42)}},
	}}})
	require.NoError(t, err)

	require.Len(t, out, 1)
	upd, ok := out[0].(*EvaluateUpdateAction)
	require.True(t, ok)
	assert.True(t, upd.CacheKey.Equal(cacheKey))
	require.Len(t, upd.StateUpdates, 1)
	assert.Equal(t, int64(42), upd.StateUpdates[0].Value.Int)

	w := state.Workers[cacheKey.ID()]
	assert.Equal(t, WorkerBusy, w.Status, "a state update for an active dependency re-arms the worker")
	assert.Equal(t, int64(42), w.StateValues[fetchCond.ID()].Int)
}

func TestEffectEmitDropsUnchangedValue(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()
	fetchCond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))

	out1, err := h.Handle(state, &EffectEmitAction{EffectTypes: []EffectUpdateBatch{{
		EffectType: fetchCond.EffectType,
		Updates:    []StateUpdate{{Condition: fetchCond, Value: term.NewInt(1)}},
	}}})
	require.NoError(t, err)
	assert.Empty(t, out1, "no worker is subscribed yet, so apply_batch has nothing to notify")

	out2, err := h.Handle(state, &EffectEmitAction{EffectTypes: []EffectUpdateBatch{{
		EffectType: fetchCond.EffectType,
		Updates:    []StateUpdate{{Condition: fetchCond, Value: term.NewInt(1)}},
	}}})
	require.NoError(t, err)
	assert.Empty(t, out2, "resending the identical value must not commit a second batch")
}

func TestUnsubscribeRemovesWorkerAndUnsubscribesDependencies(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()

	fetchCond := term.NewCustomCondition(term.NewString("fetch"), term.NewString("url"), term.NewString("tok"))
	query := term.NewEffect(fetchCond)
	cacheKey, _ := subscribe(t, h, state, "q1", query, EvaluationModeQuery, InvalidationCombineUpdates)

	unresolved := term.NewEvaluationResult(term.NewSignal(term.NewPendingCondition()), term.NewDependencyList(fetchCond.ID()))
	_, err := h.Handle(state, &EvaluateResultAction{CacheKey: cacheKey, Result: unresolved})
	require.NoError(t, err)

	out, err := h.Handle(state, &EffectUnsubscribeAction{EffectType: evaluateEffectType, Effects: []*term.Condition{cacheKey}})
	require.NoError(t, err)

	var sawStop, sawUnsub bool
	for _, a := range out {
		switch v := a.(type) {
		case *EvaluateStopAction:
			sawStop = v.CacheKey.Equal(cacheKey)
		case *EffectUnsubscribeAction:
			sawUnsub = len(v.Effects) == 1 && v.Effects[0].Equal(fetchCond)
		}
	}
	assert.True(t, sawStop)
	assert.True(t, sawUnsub)
	assert.Empty(t, state.Workers)
}

func TestForeignEffectTypeSubscribeIsForwardedVerbatim(t *testing.T) {
	h := newTestHandler()
	state := NewEvaluateHandlerState()

	other := term.NewString("reflex::other::thing")
	cond := term.NewCustomCondition(other, term.NewNil(), term.NewNil())
	action := &EffectSubscribeAction{EffectType: other, Effects: []*term.Condition{cond}}

	out, err := h.Handle(state, action)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, action, out[0])
	assert.Empty(t, state.Workers)
}
