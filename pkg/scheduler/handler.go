package scheduler

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/reflex-run/reflex/pkg/metrics"
	"github.com/reflex-run/reflex/pkg/term"
)

// Config holds the evaluate handler's tunables, constructed explicitly by
// the caller rather than read from a package global (SPEC_FULL.md §10).
type Config struct {
	ThrottleDuration time.Duration
}

// DefaultConfig returns the handler's defaults.
func DefaultConfig() Config {
	return Config{ThrottleDuration: 50 * time.Millisecond}
}

// EvaluateHandlerState is the evaluate-handler actor's entire mutable
// state (spec.md §3.6). It is owned exclusively by whichever goroutine
// drives the handler's actor mailbox (spec.md §5); Handle mutates it
// in place and returns it back to the caller alongside the actions it
// produced, which is this package's reading of the "pure handle(state,
// action) -> (state, []action)" model in a language without persistent
// data structures in the standard library — a fresh copy per message
// would cost an allocation proportional to the whole worker set for no
// semantic benefit, since the actor model already guarantees exclusive
// access.
type EvaluateHandlerState struct {
	Workers          map[uint64]*Worker
	StateCache       *GlobalStateCache
	ImmediateEffects map[uint64]struct{}
	DeferredUpdates  map[uint64]StateUpdate
	ThrottleRunning  bool
	NextIndex        MessageOffset
	EffectRefCounts  map[uint64]int
}

// NewEvaluateHandlerState returns an empty handler state.
func NewEvaluateHandlerState() *EvaluateHandlerState {
	return &EvaluateHandlerState{
		Workers:          make(map[uint64]*Worker),
		StateCache:       NewGlobalStateCache(),
		ImmediateEffects: make(map[uint64]struct{}),
		DeferredUpdates:  make(map[uint64]StateUpdate),
		EffectRefCounts:  make(map[uint64]int),
	}
}

// Handler runs the evaluate-handler's state-transition logic against an
// EvaluateHandlerState. It carries no state of its own beyond its
// dependencies (config, metrics sink, logger), so one Handler can safely
// drive many independent EvaluateHandlerStates (e.g. one per test).
type Handler struct {
	Config      Config
	Metrics     metrics.Metrics
	MetricNames MetricNames
	Log         *logrus.Entry
}

// NewHandler builds a Handler. metricsSink and log may be nil, in which
// case metrics.Noop{} and a discarding logrus.Entry are used.
func NewHandler(cfg Config, metricsSink metrics.Metrics, names MetricNames, log *logrus.Entry) *Handler {
	if metricsSink == nil {
		metricsSink = metrics.Noop{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Handler{Config: cfg, Metrics: metricsSink, MetricNames: names, Log: log}
}

// Handle is the single entry point for every inbound Action (spec.md
// §4.4.2-§4.4.6): it mutates state and returns the actions this message
// produced, in the order spec.md's per-operation steps describe them.
func (h *Handler) Handle(state *EvaluateHandlerState, action Action) ([]Action, error) {
	switch a := action.(type) {
	case *EffectSubscribeAction:
		return h.effectSubscribe(state, a), nil
	case *EffectUnsubscribeAction:
		return h.effectUnsubscribe(state, a), nil
	case *EffectEmitAction:
		return h.effectEmit(state, a), nil
	case *EvaluateResultAction:
		return h.evaluateResult(state, a), nil
	case EffectThrottleEmitAction:
		return h.effectThrottleEmit(state), nil
	default:
		return nil, fmt.Errorf("scheduler: unhandled action type %T", action)
	}
}

// effectSubscribe implements spec.md §4.4.2.
func (h *Handler) effectSubscribe(state *EvaluateHandlerState, action *EffectSubscribeAction) []Action {
	if !IsEvaluateEffectType(action.EffectType) {
		return []Action{action}
	}

	var out []Action
	for _, cond := range action.Effects {
		label, query, mode, strategy, ok := ParseEvaluateEffectQuery(cond)
		if !ok {
			h.Log.WithField("condition", cond.ID()).Warn("scheduler: malformed evaluate-effect subscription, dropping")
			continue
		}
		if strategy == InvalidationExact {
			state.ImmediateEffects[cond.ID()] = struct{}{}
		}

		key := cond.ID()
		if w, exists := state.Workers[key]; exists {
			w.SubscriptionCount++
			if w.Status == WorkerIdle && w.LatestResult != nil && w.LatestResult.IsResolved() {
				out = append(out, &EffectEmitAction{EffectTypes: []EffectUpdateBatch{{
					EffectType: evaluateEffectType,
					Updates:    []StateUpdate{{Condition: cond, Value: serializeEvaluateResult(*w.LatestResult)}},
				}}})
			}
			continue
		}

		labels := map[string]string{"effect_type": evaluateEffectType.Str, "worker_id": uuid.NewString()}
		w := newWorker(cond, label, query, mode, strategy, labels)
		state.Workers[key] = w
		out = append(out, &EvaluateStartAction{CacheKey: cond, Label: label, Query: query, EvaluationMode: mode, InvalidationPolicy: strategy})
	}
	h.recordWorkerCount(state)
	return out
}

// evaluateResult implements spec.md §4.4.3.
func (h *Handler) evaluateResult(state *EvaluateHandlerState, action *EvaluateResultAction) []Action {
	w, ok := state.Workers[action.CacheKey.ID()]
	if !ok {
		return nil
	}
	if action.StateIndex != nil && w.LatestIndex != nil && *w.LatestIndex > *action.StateIndex {
		h.Log.WithField("worker", w.Effect.ID()).Debug("scheduler: discarding stale evaluate_result")
		return nil
	}

	conditionsInQuery := term.CollectConditions(w.Query)
	newActive := make(map[uint64]*term.Condition)
	for _, tok := range action.Result.Dependencies.Tokens() {
		if cond, found := conditionsInQuery[tok]; found {
			newActive[tok] = cond
		}
	}
	if action.Result.Result != nil && action.Result.Result.Kind == term.KindSignal {
		for _, c := range action.Result.Result.Conditions {
			if c.Kind == term.ConditionCustom {
				newActive[c.ID()] = c
			}
		}
	}

	previousActive := w.ActiveEffects
	added, removed := diffConditions(previousActive, newActive)

	var out []Action
	out = append(out, h.groupSubscribe(state, added)...)
	out = append(out, h.groupUnsubscribe(state, removed)...)

	isFirst := w.LatestResult == nil
	w.ActiveEffects = newActive
	w.LatestResult = &action.Result
	w.Status = WorkerIdle

	if action.Result.IsResolved() {
		out = append(out, &EffectEmitAction{EffectTypes: []EffectUpdateBatch{{
			EffectType: evaluateEffectType,
			Updates:    []StateUpdate{{Condition: w.Effect, Value: serializeEvaluateResult(action.Result)}},
		}}})
	}

	var updateAction *EvaluateUpdateAction
	if isFirst {
		updateAction = h.workerStateUpdate(state, w, updateFirstResult, nil, action.StateIndex)
	} else {
		updateAction = h.workerStateUpdate(state, w, updateSubsequentResult, previousActive, action.StateIndex)
	}
	if updateAction != nil {
		out = append(out, updateAction)
	}
	h.recordWorkerCount(state)
	return out
}

// effectEmit implements spec.md §4.4.4.
func (h *Handler) effectEmit(state *EvaluateHandlerState, action *EffectEmitAction) []Action {
	var immediate, deferred []StateUpdate
	for _, batch := range action.EffectTypes {
		for _, u := range batch.Updates {
			tok := u.Condition.ID()
			cur, had := state.StateCache.combined[tok]
			if had && cur.Value.ID() == u.Value.ID() {
				continue
			}
			_, exact := state.ImmediateEffects[tok]
			isImmediate := exact || !had || cur.Value.Kind == term.KindSignal
			if isImmediate {
				immediate = append(immediate, u)
			} else {
				deferred = append(deferred, u)
			}
		}
	}

	var out []Action
	if len(deferred) > 0 {
		for _, u := range deferred {
			state.DeferredUpdates[u.Condition.ID()] = u
		}
		if !state.ThrottleRunning {
			state.ThrottleRunning = true
		}
	}
	for _, u := range immediate {
		delete(state.DeferredUpdates, u.Condition.ID())
	}
	if len(immediate) > 0 {
		index := state.NextIndex
		state.NextIndex++
		out = append(out, h.applyBatch(state, index, immediate)...)
	}
	h.Metrics.GaugeSet(h.MetricNames.ThrottledUpdateCount, map[string]string{}, float64(len(state.DeferredUpdates)))
	return out
}

// effectThrottleEmit implements spec.md §4.4.4's timer branch: drain
// deferred_updates and apply them as one batch.
func (h *Handler) effectThrottleEmit(state *EvaluateHandlerState) []Action {
	state.ThrottleRunning = false
	if len(state.DeferredUpdates) == 0 {
		return nil
	}
	updates := make([]StateUpdate, 0, len(state.DeferredUpdates))
	for _, u := range state.DeferredUpdates {
		updates = append(updates, u)
	}
	state.DeferredUpdates = make(map[uint64]StateUpdate)
	index := state.NextIndex
	state.NextIndex++
	return h.applyBatch(state, index, updates)
}

// applyBatch implements spec.md §4.4.5, fanning the per-worker dependency
// scan out across an errgroup (SPEC_FULL.md §11): each goroutine only
// touches the one Worker it was assigned, so no synchronization beyond the
// errgroup's own join is needed.
func (h *Handler) applyBatch(state *EvaluateHandlerState, index MessageOffset, updates []StateUpdate) []Action {
	state.StateCache.apply(index, updates)

	touched := make(map[uint64]struct{}, len(updates))
	for _, u := range updates {
		touched[u.Condition.ID()] = struct{}{}
	}

	keys := make([]uint64, 0, len(state.Workers))
	for k := range state.Workers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	results := make([]*EvaluateUpdateAction, len(keys))
	var g errgroup.Group
	for i, k := range keys {
		w := state.Workers[k]
		if w.Status != WorkerIdle || !intersectsTokens(w.ActiveEffects, touched) {
			continue
		}
		i, w, idx := i, w, index
		g.Go(func() error {
			results[i] = h.workerStateUpdate(state, w, updateDependencyUpdate, nil, &idx)
			return nil
		})
	}
	_ = g.Wait()

	var out []Action
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}

	min := state.minWorkerIndex()
	state.StateCache.gc(min)
	return out
}

// effectUnsubscribe implements spec.md §4.4.6.
func (h *Handler) effectUnsubscribe(state *EvaluateHandlerState, action *EffectUnsubscribeAction) []Action {
	var out []Action
	for _, cond := range action.Effects {
		key := cond.ID()
		w, ok := state.Workers[key]
		if !ok {
			continue
		}
		w.SubscriptionCount--
		if w.SubscriptionCount > 0 {
			continue
		}
		delete(state.Workers, key)
		delete(state.ImmediateEffects, key)
		delete(state.DeferredUpdates, key)
		out = append(out, &EvaluateStopAction{CacheKey: cond})
		_, removed := h.groupUnsubscribeEffects(state, w.ActiveEffects)
		out = append(out, removed...)
	}

	retained := make(map[uint64]struct{})
	for _, w := range state.Workers {
		retained[w.Effect.ID()] = struct{}{}
		for tok := range w.ActiveEffects {
			retained[tok] = struct{}{}
		}
	}
	state.StateCache.retain(retained)
	h.recordWorkerCount(state)
	return out
}

type updateKind uint8

const (
	updateFirstResult updateKind = iota
	updateSubsequentResult
	updateDependencyUpdate
)

// workerStateUpdate implements the worker-state-update algorithm of
// spec.md §4.4.5's closing paragraphs, shared by evaluate_result and
// apply_batch.
func (h *Handler) workerStateUpdate(state *EvaluateHandlerState, w *Worker, kind updateKind, previousActive map[uint64]*term.Condition, index *MessageOffset) *EvaluateUpdateAction {
	var candidates []StateUpdate
	switch kind {
	case updateFirstResult:
		for tok, cond := range w.ActiveEffects {
			if val, ok := state.StateCache.Get(tok); ok {
				candidates = append(candidates, StateUpdate{Condition: cond, Value: val})
			}
		}
	case updateSubsequentResult:
		for tok, cond := range w.ActiveEffects {
			if _, wasPresent := previousActive[tok]; wasPresent {
				continue
			}
			if val, ok := state.StateCache.Get(tok); ok {
				candidates = append(candidates, StateUpdate{Condition: cond, Value: val})
			}
		}
		candidates = append(candidates, h.sinceCandidates(state, w)...)
	case updateDependencyUpdate:
		candidates = append(candidates, h.sinceCandidates(state, w)...)
	}

	var changed []StateUpdate
	seen := make(map[uint64]bool, len(candidates))
	for _, c := range candidates {
		tok := c.Condition.ID()
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if old, had := w.StateValues[tok]; had && old.ID() == c.Value.ID() {
			continue
		}
		w.StateValues[tok] = c.Value
		changed = append(changed, c)
	}

	if index != nil {
		w.LatestIndex = index
	}
	if len(changed) == 0 {
		return nil
	}

	if w.Status == WorkerIdle {
		w.PreviousResult = w.LatestResult
		w.Status = WorkerBusy
	}
	return &EvaluateUpdateAction{CacheKey: w.Effect, StateIndex: index, StateUpdates: changed}
}

// sinceCandidates gathers the "(b)" clause shared by SubsequentResult and
// DependencyUpdate: current values from every update batch the worker
// has not yet observed. A worker with no LatestIndex yet has observed
// nothing, so every committed batch counts as new to it.
func (h *Handler) sinceCandidates(state *EvaluateHandlerState, w *Worker) []StateUpdate {
	return state.StateCache.updatesSince(w.LatestIndex, w.ActiveEffects)
}

func diffConditions(previous, next map[uint64]*term.Condition) (added, removed []*term.Condition) {
	for tok, cond := range next {
		if _, ok := previous[tok]; !ok {
			added = append(added, cond)
		}
	}
	for tok, cond := range previous {
		if _, ok := next[tok]; !ok {
			removed = append(removed, cond)
		}
	}
	return added, removed
}

func intersectsTokens(active map[uint64]*term.Condition, touched map[uint64]struct{}) bool {
	for tok := range active {
		if _, ok := touched[tok]; ok {
			return true
		}
	}
	return false
}

// groupSubscribe emits one EffectSubscribeAction per effect_type for every
// added condition not already active in some other worker (spec.md
// §4.4.3 step 4).
func (h *Handler) groupSubscribe(state *EvaluateHandlerState, added []*term.Condition) []Action {
	groups := make(map[uint64]*EffectSubscribeAction)
	var order []uint64
	for _, cond := range added {
		if !state.addEffectRef(cond) {
			continue
		}
		etID := cond.EffectType.ID()
		g, ok := groups[etID]
		if !ok {
			g = &EffectSubscribeAction{EffectType: cond.EffectType}
			groups[etID] = g
			order = append(order, etID)
		}
		g.Effects = append(g.Effects, cond)
	}
	out := make([]Action, 0, len(order))
	for _, id := range order {
		out = append(out, groups[id])
	}
	return out
}

func (h *Handler) groupUnsubscribe(state *EvaluateHandlerState, removed []*term.Condition) []Action {
	_, actions := h.groupUnsubscribeEffects(state, condSliceToMap(removed))
	return actions
}

func condSliceToMap(conds []*term.Condition) map[uint64]*term.Condition {
	m := make(map[uint64]*term.Condition, len(conds))
	for _, c := range conds {
		m[c.ID()] = c
	}
	return m
}

// groupUnsubscribeEffects emits one EffectUnsubscribeAction per effect_type
// for every condition in candidates whose global reference count has
// dropped to zero (spec.md §4.4.3 step 4, §4.4.6).
func (h *Handler) groupUnsubscribeEffects(state *EvaluateHandlerState, candidates map[uint64]*term.Condition) (map[uint64]*term.Condition, []Action) {
	groups := make(map[uint64]*EffectUnsubscribeAction)
	var order []uint64
	for _, cond := range candidates {
		if !state.removeEffectRef(cond.ID()) {
			continue
		}
		etID := cond.EffectType.ID()
		g, ok := groups[etID]
		if !ok {
			g = &EffectUnsubscribeAction{EffectType: cond.EffectType}
			groups[etID] = g
			order = append(order, etID)
		}
		g.Effects = append(g.Effects, cond)
	}
	out := make([]Action, 0, len(order))
	for _, id := range order {
		out = append(out, groups[id])
	}
	return candidates, out
}

func (s *EvaluateHandlerState) addEffectRef(cond *term.Condition) (becameActive bool) {
	tok := cond.ID()
	s.EffectRefCounts[tok]++
	return s.EffectRefCounts[tok] == 1
}

func (s *EvaluateHandlerState) removeEffectRef(tok uint64) (becameInactive bool) {
	if s.EffectRefCounts[tok] <= 1 {
		delete(s.EffectRefCounts, tok)
		return true
	}
	s.EffectRefCounts[tok]--
	return false
}

// minWorkerIndex returns the minimum LatestIndex across all workers, or nil
// if there are no workers or any worker has not taken a snapshot yet (a
// worker that has seen nothing still needs every batch, so GC must not
// drop any of them) — spec.md §4.4.5 step 3.
func (s *EvaluateHandlerState) minWorkerIndex() *MessageOffset {
	if len(s.Workers) == 0 {
		return nil
	}
	var min MessageOffset
	first := true
	for _, w := range s.Workers {
		if w.LatestIndex == nil {
			return nil
		}
		if first || *w.LatestIndex < min {
			min = *w.LatestIndex
			first = false
		}
	}
	return &min
}

func (h *Handler) recordWorkerCount(state *EvaluateHandlerState) {
	h.Metrics.GaugeSet(h.MetricNames.WorkerCount, map[string]string{"effect_type": evaluateEffectType.Str}, float64(len(state.Workers)))
	h.Metrics.GaugeSet(h.MetricNames.StateCacheSize, map[string]string{"effect_type": evaluateEffectType.Str}, float64(state.StateCache.Size()))
}
