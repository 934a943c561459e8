// Package engine wires the scheduler's evaluate handler together with the
// bytecode compiler/interpreter and an EvaluationPool into one runnable
// pipeline: it turns EvaluateStartAction/EvaluateUpdateAction into actual
// compile-and-run work and feeds the result back as an
// EvaluateResultAction, closing the loop spec.md §4.4 describes in terms
// of "an external evaluator" without specifying how one is driven
// (SPEC_FULL.md §11.1: "once an actor-driver wires the two packages
// together").
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/reflex-run/reflex/pkg/compiler"
	"github.com/reflex-run/reflex/pkg/recorder"
	"github.com/reflex-run/reflex/pkg/rewrite"
	"github.com/reflex-run/reflex/pkg/scheduler"
	"github.com/reflex-run/reflex/pkg/term"
	"github.com/reflex-run/reflex/pkg/vm"
)

// stateView adapts a scheduler.GlobalStateCache into vm.StateView by
// stamping it with a snapshot id (spec.md §4.3's "state-id"): two
// evaluations run against the same id share the interpreter's result
// cache, so the id must change whenever the cache's combined_state has
// actually moved.
type stateView struct {
	*scheduler.GlobalStateCache
	id uint64
}

func (s stateView) ID() uint64 { return s.id }

// Engine owns one scheduler actor's worth of state plus the machinery to
// actually execute the evaluations it requests: a compiler/interpreter
// pair, a bounded EvaluationPool to run them concurrently, and an optional
// recorder observing every action that flows through it.
type Engine struct {
	driver   *scheduler.Driver
	state    *scheduler.EvaluateHandlerState
	pool     *EvaluationPool
	registry rewrite.BuiltinRegistry
	heap     *term.Heap
	rec      *recorder.Recorder
	log      *logrus.Entry

	mu      sync.Mutex
	queries map[uint64]*term.Term
}

// New builds an Engine. rec and log may be nil. maxWorkers <= 0 uses
// EvaluationPool's own CPU-count default.
func New(handler *scheduler.Handler, registry rewrite.BuiltinRegistry, heap *term.Heap, rec *recorder.Recorder, log *logrus.Entry, maxWorkers int) *Engine {
	state := scheduler.NewEvaluateHandlerState()
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Engine{
		driver:   scheduler.NewDriver(handler, state),
		state:    state,
		pool:     NewEvaluationPool(maxWorkers, 1),
		registry: registry,
		heap:     heap,
		rec:      rec,
		log:      log,
		queries:  make(map[uint64]*term.Term),
	}
}

// Dispatch runs action through the scheduler and submits an evaluation
// task for every EvaluateStartAction/EvaluateUpdateAction the scheduler
// produces in response, recording every action (inbound and outbound) if
// a recorder is attached.
func (e *Engine) Dispatch(ctx context.Context, pid recorder.Pid, action scheduler.Action) ([]scheduler.Action, error) {
	if e.rec != nil {
		e.rec.Record(pid, action, nil)
	}
	out, err := e.driver.Dispatch(ctx, action)
	if err != nil {
		return nil, err
	}
	for _, a := range out {
		if e.rec != nil {
			e.rec.Record(pid, a, nil)
		}
		e.maybeEvaluate(ctx, pid, a)
	}
	return out, nil
}

func (e *Engine) maybeEvaluate(ctx context.Context, pid recorder.Pid, action scheduler.Action) {
	switch a := action.(type) {
	case *scheduler.EvaluateStartAction:
		e.mu.Lock()
		e.queries[a.CacheKey.ID()] = a.Query
		e.mu.Unlock()
		e.submitEvaluation(ctx, pid, a.CacheKey, a.Query)
	case *scheduler.EvaluateStopAction:
		e.mu.Lock()
		delete(e.queries, a.CacheKey.ID())
		e.mu.Unlock()
	case *scheduler.EvaluateUpdateAction:
		e.mu.Lock()
		query, ok := e.queries[a.CacheKey.ID()]
		e.mu.Unlock()
		if ok {
			e.submitEvaluation(ctx, pid, a.CacheKey, query)
		}
	}
}

func (e *Engine) submitEvaluation(ctx context.Context, pid recorder.Pid, cacheKey *term.Condition, query *term.Term) {
	err := e.pool.Submit(ctx, func() {
		result, deps, err := e.evaluate(query)
		if err != nil {
			e.log.WithError(err).WithField("worker", cacheKey.ID()).Warn("engine: evaluation failed")
			return
		}
		idx := e.state.NextIndex
		if _, dispatchErr := e.Dispatch(ctx, pid, &scheduler.EvaluateResultAction{
			CacheKey:   cacheKey,
			StateIndex: &idx,
			Result:     term.NewEvaluationResult(result, deps),
		}); dispatchErr != nil {
			e.log.WithError(dispatchErr).Warn("engine: failed to dispatch evaluate_result")
		}
	})
	if err != nil {
		e.log.WithError(err).Warn("engine: failed to submit evaluation")
	}
}

func (e *Engine) evaluate(query *term.Term) (*term.Term, term.DependencyList, error) {
	c := compiler.NewCompiler(e.registry)
	prog, entry, err := c.Compile(query)
	if err != nil {
		return nil, term.DependencyList{}, fmt.Errorf("engine: compile: %w", err)
	}
	interp := vm.NewInterpreter(prog, e.registry, e.heap)
	view := stateView{GlobalStateCache: e.state.StateCache, id: uint64(e.state.NextIndex)}
	return interp.Run(entry, view)
}

// Close shuts down the evaluation pool and any pending throttle timer.
func (e *Engine) Close() {
	e.pool.Shutdown()
	e.driver.Close()
}
