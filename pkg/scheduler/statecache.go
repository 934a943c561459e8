package scheduler

import "github.com/reflex-run/reflex/pkg/term"

type updateBatch struct {
	index   MessageOffset
	updates []StateUpdate
}

// GlobalStateCache is the scheduler's combined view of every resolved
// effect value plus the ordered history of update batches workers may
// still need to catch up on (spec.md §3.6). It implements
// rewrite.DynamicState directly, so a GlobalStateCache can be handed to
// the interpreter's Run as-is once an actor-driver wires the two packages
// together.
type GlobalStateCache struct {
	combined map[uint64]StateUpdate
	batches  []updateBatch
}

// NewGlobalStateCache returns an empty cache.
func NewGlobalStateCache() *GlobalStateCache {
	return &GlobalStateCache{combined: make(map[uint64]StateUpdate)}
}

// Get implements rewrite.DynamicState.
func (c *GlobalStateCache) Get(stateToken uint64) (*term.Term, bool) {
	u, ok := c.combined[stateToken]
	if !ok {
		return nil, false
	}
	return u.Value, true
}

// apply commits a batch of updates at index, recording it in combined_state
// and appending it to update_batches (spec.md §4.4.5 step 1).
func (c *GlobalStateCache) apply(index MessageOffset, updates []StateUpdate) {
	for _, u := range updates {
		c.combined[u.Condition.ID()] = u
	}
	c.batches = append(c.batches, updateBatch{index: index, updates: updates})
}

// updatesSince returns, for every token in keep, the most recent value
// committed in a batch with index > since — the "(b)" clause shared by
// SubsequentResult and DependencyUpdate in the worker-state-update
// algorithm (spec.md §4.4.5). A nil since means the worker has not taken
// any snapshot yet, so every committed batch counts as new to it. Batches
// are applied in increasing index order, so a later batch's entry for a
// token overwrites an earlier one.
func (c *GlobalStateCache) updatesSince(since *MessageOffset, keep map[uint64]*term.Condition) []StateUpdate {
	if len(keep) == 0 {
		return nil
	}
	latest := make(map[uint64]StateUpdate)
	for _, b := range c.batches {
		if since != nil && b.index <= *since {
			continue
		}
		for _, u := range b.updates {
			tok := u.Condition.ID()
			if _, wanted := keep[tok]; wanted {
				latest[tok] = u
			}
		}
	}
	out := make([]StateUpdate, 0, len(latest))
	for _, u := range latest {
		out = append(out, u)
	}
	return out
}

// gc drops every batch whose index is at or below minIndex — the minimum
// state_index any remaining worker still needs (spec.md §4.4.5 step 3). A
// nil minIndex means some worker has not taken a snapshot yet and still
// needs every batch, so nothing is dropped.
func (c *GlobalStateCache) gc(minIndex *MessageOffset) {
	if minIndex == nil {
		return
	}
	kept := c.batches[:0]
	for _, b := range c.batches {
		if b.index > *minIndex {
			kept = append(kept, b)
		}
	}
	c.batches = kept
}

// retain drops every combined_state entry whose token is not in keep — the
// retention-set GC run after a worker unsubscribes (spec.md §4.4.6: "union
// of all remaining workers' effects and dependencies").
func (c *GlobalStateCache) retain(keep map[uint64]struct{}) {
	for tok := range c.combined {
		if _, ok := keep[tok]; !ok {
			delete(c.combined, tok)
		}
	}
}

// Size reports the number of distinct state-tokens currently cached, used
// for the state-cache-size gauge (SPEC_FULL.md §12's EvaluateHandlerMetricNames).
func (c *GlobalStateCache) Size() int { return len(c.combined) }
