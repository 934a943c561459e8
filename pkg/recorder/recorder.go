// Package recorder implements the event-sink contract of spec.md §4.5 (H):
// an ordered stream of (pid, action, metadata) events, with terms and
// conditions cached by id so a repeated reference serializes as a cheap
// cache-hit marker instead of the full value again. It never runs
// evaluation itself — it only observes scheduler.Actions a driver hands it
// — so it depends on pkg/scheduler and pkg/term but nothing upstream of
// them.
package recorder

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reflex-run/reflex/pkg/scheduler"
	"github.com/reflex-run/reflex/pkg/term"
)

// Pid identifies the actor that emitted a recorded event (spec.md §4.5).
// Actors in this codebase are driven by ordinary goroutines rather than a
// distributed process registry, so a Pid is just a stable label a caller
// assigns per actor (e.g. "evaluate-handler", or a worker's cache-key id
// formatted as a string).
type Pid string

// Event is one recorded (pid, action, metadata) triple. NewTerms/NewConditions
// list the ids whose full values this event is the first sighting of;
// CacheHitTerms/CacheHitConditions list ids this event referenced that an
// earlier event in the same session already recorded in full. Because the
// Action field always holds the live Go value, a reader can reconstruct
// every term this event names purely by replaying NewTerms/NewConditions in
// order and resolving CacheHit* against that running cache — the property
// spec.md §4.5 requires ("replay must be able to reconstruct equivalent
// term values from the event stream alone").
type Event struct {
	Pid                Pid
	Action             scheduler.Action
	Metadata           map[string]string
	NewTerms           []uint64
	NewConditions      []uint64
	CacheHitTerms      []uint64
	CacheHitConditions []uint64
}

// Recorder is one recording session (spec.md §4.5, "shared-resource
// policy": the recorder's cache is owned by the recorder actor — nothing
// else mutates it). SessionID disambiguates concurrent recorders sharing a
// process, e.g. one per test run, so their logged events never collide in
// a shared fixture.
type Recorder struct {
	SessionID uuid.UUID
	Log       *logrus.Entry

	mu        sync.Mutex
	seenTerms map[uint64]bool
	seenConds map[uint64]bool
	events    []Event
}

// New returns an empty recorder tagged with a fresh session id. log may be
// nil, in which case a discarding logrus.Entry is used.
func New(log *logrus.Entry) *Recorder {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Recorder{
		SessionID: uuid.New(),
		Log:       log,
		seenTerms: make(map[uint64]bool),
		seenConds: make(map[uint64]bool),
	}
}

// Record caches every term/condition action references by id, appends the
// resulting Event, and logs a structured summary of it.
func (r *Recorder) Record(pid Pid, action scheduler.Action, metadata map[string]string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	terms, conds := extractRefs(action)

	ev := Event{Pid: pid, Action: action, Metadata: metadata}
	for _, t := range terms {
		id := t.ID()
		if r.seenTerms[id] {
			ev.CacheHitTerms = append(ev.CacheHitTerms, id)
			continue
		}
		r.seenTerms[id] = true
		ev.NewTerms = append(ev.NewTerms, id)
	}
	for _, c := range conds {
		id := c.ID()
		if r.seenConds[id] {
			ev.CacheHitConditions = append(ev.CacheHitConditions, id)
			continue
		}
		r.seenConds[id] = true
		ev.NewConditions = append(ev.NewConditions, id)
	}

	r.events = append(r.events, ev)
	r.Log.WithFields(logrus.Fields{
		"session":    r.SessionID,
		"pid":        pid,
		"action":     action.Kind(),
		"new_terms":  len(ev.NewTerms),
		"new_conds":  len(ev.NewConditions),
		"cache_hits": len(ev.CacheHitTerms) + len(ev.CacheHitConditions),
	}).Info("recorder: event")
	return ev
}

// Events returns a copy of every event recorded so far, in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// extractRefs lists the terms and conditions action's payload names
// directly. It deliberately does not deep-walk into a Query/Result term's
// own subterms the way term.CollectConditions does: the event stream
// records the payload shape an actor actually exchanged, and a replayed
// term.Term value already carries its own substructure once reconstructed
// from the heap, so caching at the payload-field granularity is enough to
// satisfy spec.md §4.5 without duplicating component-A's term hashing.
func extractRefs(action scheduler.Action) (terms []*term.Term, conds []*term.Condition) {
	switch a := action.(type) {
	case *scheduler.EffectSubscribeAction:
		conds = append(conds, a.Effects...)
	case *scheduler.EffectUnsubscribeAction:
		conds = append(conds, a.Effects...)
	case *scheduler.EffectEmitAction:
		for _, batch := range a.EffectTypes {
			terms = append(terms, batch.EffectType)
			for _, u := range batch.Updates {
				conds = append(conds, u.Condition)
				terms = append(terms, u.Value)
			}
		}
	case *scheduler.EvaluateStartAction:
		conds = append(conds, a.CacheKey)
		terms = append(terms, a.Query)
	case *scheduler.EvaluateStopAction:
		conds = append(conds, a.CacheKey)
	case *scheduler.EvaluateResultAction:
		conds = append(conds, a.CacheKey)
		if a.Result.Result != nil {
			terms = append(terms, a.Result.Result)
		}
	case *scheduler.EvaluateUpdateAction:
		conds = append(conds, a.CacheKey)
		for _, u := range a.StateUpdates {
			conds = append(conds, u.Condition)
			terms = append(terms, u.Value)
		}
	}
	return terms, conds
}
