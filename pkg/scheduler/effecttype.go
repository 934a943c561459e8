package scheduler

import "github.com/reflex-run/reflex/pkg/term"

// EvaluationMode distinguishes a query evaluated as part of a larger
// subscription graph from one evaluated standalone (spec.md §6.1,
// SPEC_FULL.md §12's `parse_evaluate_effect_query`/`create_evaluate_effect`
// supplement).
type EvaluationMode uint8

const (
	EvaluationModeQuery EvaluationMode = iota
	EvaluationModeStandalone
)

func (m EvaluationMode) String() string {
	if m == EvaluationModeStandalone {
		return "standalone"
	}
	return "query"
}

func evaluationModeFromString(s string) (EvaluationMode, bool) {
	switch s {
	case "query":
		return EvaluationModeQuery, true
	case "standalone":
		return EvaluationModeStandalone, true
	default:
		return 0, false
	}
}

// InvalidationStrategy selects whether a worker's updates may be coalesced
// with others under the throttle window (CombineUpdates) or must always be
// delivered immediately (Exact) — spec.md §4.4.2 step 1, §4.4.4 step 2.
type InvalidationStrategy uint8

const (
	InvalidationCombineUpdates InvalidationStrategy = iota
	InvalidationExact
)

func (s InvalidationStrategy) String() string {
	if s == InvalidationExact {
		return "exact"
	}
	return "combine_updates"
}

func invalidationStrategyFromString(s string) (InvalidationStrategy, bool) {
	switch s {
	case "combine_updates":
		return InvalidationCombineUpdates, true
	case "exact":
		return InvalidationExact, true
	default:
		return 0, false
	}
}

// evaluateEffectType is the distinguished effect type every evaluate-handler
// subscription routes through (spec.md §6.2): the interned string
// "reflex::core::evaluate". Terms are content-addressed, so any two calls
// produce an identical id — a package-level cached value just avoids
// rebuilding the same String term on every call.
var evaluateEffectType = term.NewString("reflex::core::evaluate")

// EvaluateEffectType returns the distinguished "evaluate" effect type term.
func EvaluateEffectType() *term.Term { return evaluateEffectType }

// IsEvaluateEffectType reports whether t names the distinguished "evaluate"
// effect type, used by effect_subscribe/effect_unsubscribe (§4.4.2 step 1)
// to decide whether to handle a subscription itself or forward it verbatim
// to a downstream, non-evaluate handler.
func IsEvaluateEffectType(t *term.Term) bool {
	return t != nil && t.Kind == term.KindString && t.Str == evaluateEffectType.Str
}

// CreateEvaluateEffect builds the Custom condition a caller subscribes with
// to register a query: payload is [label, query, mode, strategy] and token
// is Nil (spec.md §6.2).
func CreateEvaluateEffect(label string, query *term.Term, mode EvaluationMode, strategy InvalidationStrategy) *term.Condition {
	payload := term.NewList(
		term.NewString(label),
		query,
		term.NewString(mode.String()),
		term.NewString(strategy.String()),
	)
	return term.NewCustomCondition(evaluateEffectType, payload, term.NewNil())
}

// ParseEvaluateEffectQuery decodes a condition built by CreateEvaluateEffect
// back into its four fields, reporting false if cond is not a well-formed
// evaluate-effect condition (spec.md §4.4.2 step 2).
func ParseEvaluateEffectQuery(cond *term.Condition) (label string, query *term.Term, mode EvaluationMode, strategy InvalidationStrategy, ok bool) {
	if cond == nil || cond.Kind != term.ConditionCustom {
		return "", nil, 0, 0, false
	}
	if !IsEvaluateEffectType(cond.EffectType) {
		return "", nil, 0, 0, false
	}
	payload := cond.Payload
	if payload == nil || payload.Kind != term.KindList || len(payload.Items) != 4 {
		return "", nil, 0, 0, false
	}
	labelTerm, queryTerm, modeTerm, strategyTerm := payload.Items[0], payload.Items[1], payload.Items[2], payload.Items[3]
	if labelTerm.Kind != term.KindString || modeTerm.Kind != term.KindString || strategyTerm.Kind != term.KindString {
		return "", nil, 0, 0, false
	}
	mode, ok = evaluationModeFromString(modeTerm.Str)
	if !ok {
		return "", nil, 0, 0, false
	}
	strategy, ok = invalidationStrategyFromString(strategyTerm.Str)
	if !ok {
		return "", nil, 0, 0, false
	}
	return labelTerm.Str, queryTerm, mode, strategy, true
}

// serializeEvaluateResult encodes an EvaluationResult as the two-element
// [value, dependencies] List carried back out in an EffectEmitAction
// (spec.md §6.2): dependencies are state-token bit-casts, u64 reinterpreted
// as i64 so they fit the Int term kind.
func serializeEvaluateResult(result term.EvaluationResult) *term.Term {
	tokens := result.Dependencies.Tokens()
	deps := make([]*term.Term, len(tokens))
	for i, tok := range tokens {
		deps[i] = term.NewInt(int64(tok))
	}
	return term.NewList(result.Result, term.NewList(deps...))
}
