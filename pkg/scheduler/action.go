// Package scheduler implements the evaluate handler: the actor that turns
// subscribe/unsubscribe/emit messages and interpreter results into worker
// lifecycle transitions (spec.md §3.6, §4.4). It depends on pkg/term for
// the Condition/Term vocabulary and on pkg/rewrite only through the
// DynamicState interface GlobalStateCache satisfies; it never imports
// pkg/vm or pkg/compiler — the handler reacts to evaluation results, it
// does not run the interpreter itself, matching §5's actor split between
// "the evaluate handler" and "each worker" as separate conceptual actors.
package scheduler

import "github.com/reflex-run/reflex/pkg/term"

// MessageOffset is the monotonically increasing per-batch index the
// scheduler stamps onto every update it commits (spec.md §4.4.1).
type MessageOffset uint64

// Action is the uniform message vocabulary exchanged between the evaluate
// handler and the rest of the system (spec.md §6.1): the same types both
// arrive as inbound requests (a subscriber's EffectSubscribeAction) and
// leave as outbound instructions (a forwarded EffectSubscribeAction to a
// downstream handler), since actors communicate exclusively through this
// one schema.
type Action interface {
	Kind() string
}

// StateUpdate pairs a Condition with its newly observed value, the unit
// every batch of state changes is expressed in.
type StateUpdate struct {
	Condition *term.Condition
	Value     *term.Term
}

// EffectUpdateBatch groups StateUpdates that share an effect_type, the
// shape EffectEmitAction carries them in (spec.md §6.1).
type EffectUpdateBatch struct {
	EffectType *term.Term
	Updates    []StateUpdate
}

type EffectSubscribeAction struct {
	EffectType *term.Term
	Effects    []*term.Condition
}

func (*EffectSubscribeAction) Kind() string { return "EffectSubscribe" }

type EffectUnsubscribeAction struct {
	EffectType *term.Term
	Effects    []*term.Condition
}

func (*EffectUnsubscribeAction) Kind() string { return "EffectUnsubscribe" }

type EffectEmitAction struct {
	EffectTypes []EffectUpdateBatch
}

func (*EffectEmitAction) Kind() string { return "EffectEmit" }

type EvaluateStartAction struct {
	CacheKey           *term.Condition
	Label              string
	Query              *term.Term
	EvaluationMode     EvaluationMode
	InvalidationPolicy InvalidationStrategy
}

func (*EvaluateStartAction) Kind() string { return "EvaluateStart" }

type EvaluateStopAction struct {
	CacheKey *term.Condition
}

func (*EvaluateStopAction) Kind() string { return "EvaluateStop" }

type EvaluateResultAction struct {
	CacheKey   *term.Condition
	StateIndex *MessageOffset
	Result     term.EvaluationResult
}

func (*EvaluateResultAction) Kind() string { return "EvaluateResult" }

type EvaluateUpdateAction struct {
	CacheKey     *term.Condition
	StateIndex   *MessageOffset
	StateUpdates []StateUpdate
}

func (*EvaluateUpdateAction) Kind() string { return "EvaluateUpdate" }

// EffectThrottleEmitAction is the internal timer-fired signal (spec.md
// §6.1); it carries no payload, only an identity the timer produces.
type EffectThrottleEmitAction struct{}

func (EffectThrottleEmitAction) Kind() string { return "EffectThrottleEmit" }
