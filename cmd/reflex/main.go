// Command reflex runs a minimal end-to-end demonstration of the
// scheduler/compiler/interpreter pipeline: it subscribes a standalone
// evaluate effect computing a small arithmetic expression, lets the
// engine compile and run it on a pooled goroutine, and logs every action
// the scheduler and recorder observe along the way.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/reflex-run/reflex/pkg/engine"
	"github.com/reflex-run/reflex/pkg/metrics"
	"github.com/reflex-run/reflex/pkg/recorder"
	"github.com/reflex-run/reflex/pkg/scheduler"
	"github.com/reflex-run/reflex/pkg/term"
)

// demoBuiltins is the minimal arithmetic calling convention this demo
// needs. The concrete standard library of arithmetic/collection builtins
// is explicitly out of this module's scope (spec.md Non-goals) — only the
// Applicable calling convention matters, so a host application supplies
// its own registry the way this one does.
type demoBuiltins struct{}

const builtinAdd uint32 = 1

func (demoBuiltins) Arity(uid uint32) (term.Arity, bool) {
	if uid == builtinAdd {
		return term.NewArity(2, 0, false, term.Eager), true
	}
	return term.Arity{}, false
}

func (demoBuiltins) Apply(uid uint32, args []*term.Term) (*term.Term, error) {
	if uid != builtinAdd {
		return nil, fmt.Errorf("reflex: unknown builtin %d", uid)
	}
	if args[0].Kind != term.KindInt || args[1].Kind != term.KindInt {
		return nil, fmt.Errorf("reflex: add expects two ints")
	}
	return term.NewInt(args[0].Int + args[1].Int), nil
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(log)

	reg := prometheus.NewRegistry()
	promAdapter := metrics.NewPrometheus(reg)

	handler := scheduler.NewHandler(scheduler.DefaultConfig(), promAdapter, scheduler.DefaultMetricNames(), entry)
	rec := recorder.New(entry)
	eng := engine.New(handler, demoBuiltins{}, term.NewHeap(), rec, entry, 4)
	defer eng.Close()

	query := term.NewApplication(term.NewBuiltin(builtinAdd), []*term.Term{term.NewInt(2), term.NewInt(3)})
	cond := scheduler.CreateEvaluateEffect("two-plus-three", query, scheduler.EvaluationModeStandalone, scheduler.InvalidationCombineUpdates)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := eng.Dispatch(ctx, "cli", &scheduler.EffectSubscribeAction{
		EffectType: scheduler.EvaluateEffectType(),
		Effects:    []*term.Condition{cond},
	}); err != nil {
		entry.WithError(err).Fatal("reflex: subscribe failed")
		os.Exit(1)
	}

	deadline := time.After(2 * time.Second)
	for {
		for _, ev := range rec.Events() {
			if _, ok := ev.Action.(*scheduler.EffectEmitAction); ok {
				entry.Info("reflex: evaluation resolved, see the EffectEmit log line above for the value")
				if _, err := eng.Dispatch(ctx, "cli", &scheduler.EffectUnsubscribeAction{
					EffectType: scheduler.EvaluateEffectType(),
					Effects:    []*term.Condition{cond},
				}); err != nil {
					entry.WithError(err).Warn("reflex: unsubscribe failed")
				}
				return
			}
		}
		select {
		case <-deadline:
			entry.Warn("reflex: timed out waiting for evaluation")
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
