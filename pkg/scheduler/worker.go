package scheduler

import "github.com/reflex-run/reflex/pkg/term"

// ResultStatus classifies a worker's latest result (SPEC_FULL.md §12,
// "WorkerResultStatus... implemented as scheduler.ResultStatus"). The
// classification itself — Resolved | Unresolved | Error — already exists
// as term.WorkerResultStatus (built alongside the Arity/Eagerness model
// that shares its home in pkg/term), so this package aliases it rather
// than redeclaring the same three-way enum a second time.
type ResultStatus = term.WorkerResultStatus

const (
	ResultResolved   = term.WorkerResolved
	ResultUnresolved = term.WorkerUnresolved
	ResultError      = term.WorkerError
)

// CurrentResultStatus classifies an EvaluationResult the way the original
// evaluate_handler's current_result_status helper does: an Error-only
// signal is a permanent failure, any other unresolved signal is still
// pending, and anything else is a resolved value (spec.md §3.2, §4.4.3
// step 6).
func CurrentResultStatus(result *term.EvaluationResult) ResultStatus {
	if result == nil || result.Result == nil {
		return ResultUnresolved
	}
	if result.Result.Kind != term.KindSignal {
		return ResultResolved
	}
	hasNonError := false
	for _, c := range result.Result.Conditions {
		if !c.IsError() {
			hasNonError = true
			break
		}
	}
	if hasNonError {
		return ResultUnresolved
	}
	return ResultError
}

// WorkerStatus distinguishes a worker awaiting its next evaluation (Busy)
// from one sitting on a usable result (Idle) — spec.md §3.6.
type WorkerStatus uint8

const (
	WorkerIdle WorkerStatus = iota
	WorkerBusy
)

func (s WorkerStatus) String() string {
	if s == WorkerBusy {
		return "Busy"
	}
	return "Idle"
}

// Worker is one subscribed query (spec.md §3.6). Effect is the condition
// whose id doubles as the worker's cache_key throughout the handler. Query
// is retained from the subscribing payload so evaluate_result can recover
// full Condition objects for plain dependency tokens via
// term.CollectConditions (DependencyList itself only carries bare tokens).
type Worker struct {
	SubscriptionCount int
	Effect            *term.Condition
	Query             *term.Term
	Label             string
	EvaluationMode    EvaluationMode
	Invalidation      InvalidationStrategy
	Status            WorkerStatus

	// LatestResult/LatestIndex are valid once the worker has produced at
	// least one result, Idle or Busy.
	LatestResult *term.EvaluationResult
	LatestIndex  *MessageOffset

	// PreviousResult is preserved across an Idle->Busy transition so a
	// caller can still show a stale value while a fresher one computes.
	PreviousResult *term.EvaluationResult

	// ActiveEffects is the Custom-condition subset of the worker's current
	// dependency set, keyed by state-token (spec.md §3.6 invariant).
	ActiveEffects map[uint64]*term.Condition

	// StateValues is the worker's own snapshot cache: the most recent
	// value this worker has observed per state-token, used by
	// workerStateUpdate to detect which updates are actually new to it.
	StateValues map[uint64]*term.Term

	MetricLabels map[string]string
}

func newWorker(effect *term.Condition, label string, query *term.Term, mode EvaluationMode, strategy InvalidationStrategy, labels map[string]string) *Worker {
	return &Worker{
		SubscriptionCount: 1,
		Effect:            effect,
		Query:             query,
		Label:             label,
		EvaluationMode:    mode,
		Invalidation:      strategy,
		Status:            WorkerBusy,
		ActiveEffects:     make(map[uint64]*term.Condition),
		StateValues:       make(map[uint64]*term.Term),
		MetricLabels:      labels,
	}
}
