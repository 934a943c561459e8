package term

import (
	"fmt"
	"sort"
)

// ConditionKind distinguishes the three kinds of effectful request handle.
type ConditionKind uint8

const (
	// ConditionCustom routes to an external handler keyed by effect type.
	ConditionCustom ConditionKind = iota
	// ConditionPending marks a subscription acknowledged without a value.
	ConditionPending
	// ConditionError is a permanent failure; never retried.
	ConditionError
)

func (k ConditionKind) String() string {
	switch k {
	case ConditionCustom:
		return "Custom"
	case ConditionPending:
		return "Pending"
	case ConditionError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Condition is the handle identifying an effectful request. Its id is its
// structural hash and is the state-token key used throughout the
// scheduler (§3.2).
type Condition struct {
	Kind ConditionKind
	id   uint64

	// Custom
	EffectType *Term
	Payload    *Term
	Token      *Term

	// Error
	ErrorPayload *Term
}

// NewCustomCondition builds a Custom condition: effect_type routes to a
// handler, payload parameterises the request, token disambiguates
// otherwise-identical requests.
func NewCustomCondition(effectType, payload, token *Term) *Condition {
	c := &Condition{Kind: ConditionCustom, EffectType: effectType, Payload: payload, Token: token}
	c.id = hashCondition(c)
	return c
}

// NewPendingCondition builds the sentinel "not yet resolved" condition.
func NewPendingCondition() *Condition {
	c := &Condition{Kind: ConditionPending}
	c.id = hashCondition(c)
	return c
}

// NewErrorCondition builds a permanent-failure condition carrying payload.
func NewErrorCondition(payload *Term) *Condition {
	c := &Condition{Kind: ConditionError, ErrorPayload: payload}
	c.id = hashCondition(c)
	return c
}

// ID returns the condition's structural hash, used as the scheduler's
// state-token.
func (c *Condition) ID() uint64 {
	if c == nil {
		return 0
	}
	return c.id
}

// IsError reports whether this is a permanent-failure condition.
func (c *Condition) IsError() bool { return c != nil && c.Kind == ConditionError }

// IsPending reports whether this condition is an unresolved placeholder
// (either the bare Pending sentinel, or a Custom condition has no bearing
// on pending-ness by itself — Pending is always the sentinel kind).
func (c *Condition) IsPending() bool { return c != nil && c.Kind == ConditionPending }

func (c *Condition) Equal(o *Condition) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil {
		return false
	}
	return c.ID() == o.ID()
}

func (c *Condition) String() string {
	switch c.Kind {
	case ConditionCustom:
		return fmt.Sprintf("Custom(%s, %s, %s)", c.EffectType, c.Payload, c.Token)
	case ConditionPending:
		return "Pending"
	case ConditionError:
		return fmt.Sprintf("Error(%s)", c.ErrorPayload)
	default:
		return "<unknown condition>"
	}
}

// canonicalizeConditions orders a condition set by id so that a SignalList's
// identity hash is independent of the order conditions were supplied in.
// Duplicate ids are kept (the set is a multiset per spec.md §3.2).
func canonicalizeConditions(conditions []*Condition) []*Condition {
	canon := make([]*Condition, len(conditions))
	copy(canon, conditions)
	sort.Slice(canon, func(i, j int) bool { return canon[i].ID() < canon[j].ID() })
	return canon
}

// IsUnresolved reports whether a signal's condition set still contains at
// least one non-error condition. Error dominates Pending: if every
// condition is an Error, the signal is considered resolved (permanently
// failed) rather than unresolved (spec.md §3.2).
func (t *Term) IsUnresolved() bool {
	if t == nil || t.Kind != KindSignal {
		return false
	}
	for _, c := range t.Conditions {
		if !c.IsError() {
			return true
		}
	}
	return false
}

// CombineSignals merges the condition sets of one or more Signal terms into
// a single canonicalized Signal, as required whenever an operator's
// arguments contain more than one signal (spec.md §3.2).
func CombineSignals(signals ...*Term) *Term {
	var all []*Condition
	for _, s := range signals {
		if s == nil || s.Kind != KindSignal {
			continue
		}
		all = append(all, s.Conditions...)
	}
	return NewSignal(all...)
}
